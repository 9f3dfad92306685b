package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
	"golang.org/x/sync/semaphore"
)

// Concurrency limits for batch parsing.
const (
	DefaultConcurrency = 4
	MinConcurrency     = 1
	MaxConcurrency     = 32
)

// ErrInvalidConcurrency is returned for a concurrency outside 1..32.
var ErrInvalidConcurrency = errors.New("concurrency must be between 1 and 32")

// Scope selects which axes a batch parse updates.
type Scope string

// Parse scopes.
const (
	ScopeUnit Scope = "unit"
	ScopeFood Scope = "food"
	ScopeBoth Scope = "both"
)

// ParseScope validates a scope name. Empty means both.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeUnit, ScopeFood, ScopeBoth:
		return sc, nil
	case "":
		return ScopeBoth, nil
	default:
		return "", fmt.Errorf("unknown scope %q (valid: unit, food, both)", s)
	}
}

// Axes returns the axes covered by the scope.
func (s Scope) Axes() []model.Axis {
	switch s {
	case ScopeUnit:
		return []model.Axis{model.AxisUnit}
	case ScopeFood:
		return []model.Axis{model.AxisFood}
	default:
		return []model.Axis{model.AxisUnit, model.AxisFood}
	}
}

// ParseOptions configures one batch parse.
type ParseOptions struct {
	// OnProgress is called after each selected index finishes. Calls are serialized.
	OnProgress  func(done, total int)
	// OnParsed receives each pattern once its task has finished with it,
	// before OnProgress. Calls are serialized.
	OnParsed    func(p *model.Pattern)
	Method      model.ParseMethod
	Scope       Scope
	Concurrency int
}

func (o ParseOptions) normalize() (ParseOptions, error) {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Concurrency < MinConcurrency || o.Concurrency > MaxConcurrency {
		return o, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, o.Concurrency)
	}
	if o.Method == "" {
		o.Method = model.MethodNLP
	}
	if o.Scope == "" {
		o.Scope = ScopeBoth
	}
	return o, nil
}

// ParseSummary reports the outcome of a batch parse.
type ParseSummary struct {
	Failures  []common.ItemFailure
	Total     int
	Matched   int
	Unmatched int
	Errors    int
	Skipped   int
	Duration  time.Duration
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeMatched
	outcomeUnmatched
	outcomeError
	outcomeInvalid
)

func (o outcome) String() string {
	switch o {
	case outcomeMatched:
		return "matched"
	case outcomeUnmatched:
		return "unmatched"
	case outcomeError:
		return "error"
	case outcomeInvalid:
		return "invalid"
	default:
		return "skipped"
	}
}

type taskResult struct {
	err     error
	id      string
	outcome outcome
}

// BatchParser parses many patterns with a bounded number of parser calls in flight.
// Each pattern is owned by exactly one task for the duration of a batch.
type BatchParser struct {
	parser   Parser
	units    *pattern.Resolver
	foods    *pattern.Resolver
	recorder Recorder
}

// NewBatchParser creates a batch parser resolving against the given catalogs.
// A nil recorder disables metrics.
func NewBatchParser(parser Parser, units, foods *pattern.Resolver, recorder Recorder) *BatchParser {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if units == nil {
		units = pattern.NewResolver(nil)
	}
	if foods == nil {
		foods = pattern.NewResolver(nil)
	}
	return &BatchParser{parser: parser, units: units, foods: foods, recorder: recorder}
}

// SetCatalog replaces the resolvers, typically after entities were created.
// It must not be called while a batch is running.
func (b *BatchParser) SetCatalog(units, foods *pattern.Resolver) {
	b.units, b.foods = units, foods
}

func (b *BatchParser) resolver(axis model.Axis) *pattern.Resolver {
	if axis == model.AxisFood {
		return b.foods
	}
	return b.units
}

// eligibleAxes returns the axes of p in scope that may be parsed now.
func eligibleAxes(p *model.Pattern, scope Scope) []model.Axis {
	var axes []model.Axis
	for _, axis := range scope.Axes() {
		switch p.Status(axis) {
		case model.StatusPending, model.StatusUnmatched, model.StatusError:
			axes = append(axes, axis)
		}
	}
	return axes
}

// ParseBatch parses the patterns at indices. Every selected pattern ends the
// batch in matched, unmatched, error or its previous non-parseable status;
// none is left parsing. The returned error reports state-machine violations only.
func (b *BatchParser) ParseBatch(ctx context.Context, patterns []*model.Pattern, indices []int, opts ParseOptions) (*ParseSummary, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]taskResult, len(indices))
	seen := make(map[int]bool, len(indices))
	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
		done       int
	)
	report := func(p *model.Pattern) {
		if opts.OnProgress == nil && opts.OnParsed == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if p != nil && opts.OnParsed != nil {
			opts.OnParsed(p)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(done, len(indices))
		}
	}

	slog.Info("Starting batch parse",
		"selected", len(indices),
		"method", opts.Method,
		"scope", opts.Scope,
		"concurrency", opts.Concurrency)

	for slot, idx := range indices {
		if idx < 0 || idx >= len(patterns) || patterns[idx] == nil {
			results[slot] = taskResult{
				outcome: outcomeInvalid,
				id:      fmt.Sprintf("index %d", idx),
				err:     fmt.Errorf("index %d out of range (0..%d)", idx, len(patterns)-1),
			}
			report(nil)
			continue
		}
		p := patterns[idx]
		if seen[idx] {
			results[slot] = taskResult{outcome: outcomeSkipped, id: p.Text}
			report(nil)
			continue
		}
		seen[idx] = true

		axes := eligibleAxes(p, opts.Scope)
		if len(axes) == 0 {
			slog.Debug("Skipping pattern", "pattern", p.Text, "unit_status", p.UnitStatus, "food_status", p.FoodStatus)
			results[slot] = taskResult{outcome: outcomeSkipped, id: p.Text}
			report(nil)
			continue
		}

		// the driving goroutine hands the pattern to its task in the parsing state
		if err := transitionAll(p, axes, model.StatusParsing, ""); err != nil {
			results[slot] = taskResult{outcome: outcomeInvalid, id: p.Text, err: err}
			report(nil)
			continue
		}

		wg.Add(1)
		go func(slot int, p *model.Pattern, axes []model.Axis) {
			defer wg.Done()
			results[slot] = b.parseOne(ctx, sem, p, axes, opts.Method)
			report(p)
		}(slot, p, axes)
	}

	wg.Wait()

	summary := &ParseSummary{Total: len(indices), Duration: time.Since(start)}
	var violations []error
	for _, r := range results {
		switch r.outcome {
		case outcomeMatched:
			summary.Matched++
		case outcomeUnmatched:
			summary.Unmatched++
		case outcomeError:
			summary.Errors++
			summary.Failures = append(summary.Failures, common.ItemFailure{ID: r.id, Error: errorText(r.err)})
		case outcomeInvalid:
			summary.Errors++
			summary.Failures = append(summary.Failures, common.ItemFailure{ID: r.id, Error: errorText(r.err)})
			if errors.Is(r.err, model.ErrInvalidTransition) || errors.Is(r.err, model.ErrErrorMessageRequired) {
				violations = append(violations, r.err)
			}
		default:
			summary.Skipped++
		}
	}

	slog.Info("Batch parse complete",
		"total", summary.Total,
		"matched", summary.Matched,
		"unmatched", summary.Unmatched,
		"errors", summary.Errors,
		"skipped", summary.Skipped,
		"duration", summary.Duration)

	return summary, errors.Join(violations...)
}

// parseOne runs in its own goroutine and is the only writer of p until it returns.
func (b *BatchParser) parseOne(ctx context.Context, sem *semaphore.Weighted, p *model.Pattern, axes []model.Axis, method model.ParseMethod) taskResult {
	if err := sem.Acquire(ctx, 1); err != nil {
		return b.fail(p, axes, "canceled", err)
	}

	b.recorder.ParseStarted()
	start := time.Now()
	parsed, err := b.parser.Parse(ctx, []string{p.Text}, method)
	sem.Release(1)

	var result taskResult
	switch {
	case err != nil:
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "canceled"
		}
		slog.Warn("Failed to parse pattern", "pattern", p.Text, "error", err)
		result = b.fail(p, axes, msg, err)
	case len(parsed) == 0:
		result = b.fail(p, axes, common.ErrEmptyResult.Error(), common.ErrEmptyResult)
	default:
		result = b.apply(p, axes, parsed[0])
	}

	b.recorder.ParseFinished(result.outcome.String(), time.Since(start))
	return result
}

// apply resolves one parse result for every eligible axis of p.
func (b *BatchParser) apply(p *model.Pattern, axes []model.Axis, res model.ParseResult) taskResult {
	allMatched := true
	for _, axis := range axes {
		name := res.Name(axis)
		p.SetParsed(axis, name, res.Confidence(axis))

		if id, ok := b.resolver(axis).Resolve(name); ok {
			if err := p.SetMatchedAxis(axis, id); err != nil {
				return taskResult{outcome: outcomeInvalid, id: p.Text, err: err}
			}
			continue
		}
		allMatched = false
		if err := p.Transition(axis, model.StatusUnmatched, ""); err != nil {
			return taskResult{outcome: outcomeInvalid, id: p.Text, err: err}
		}
	}

	slog.Debug("Parsed pattern",
		"pattern", p.Text,
		"unit", p.ParsedUnit,
		"unit_status", p.UnitStatus,
		"food", p.ParsedFood,
		"food_status", p.FoodStatus)

	if allMatched {
		return taskResult{outcome: outcomeMatched, id: p.Text}
	}
	return taskResult{outcome: outcomeUnmatched, id: p.Text}
}

func (b *BatchParser) fail(p *model.Pattern, axes []model.Axis, msg string, cause error) taskResult {
	if err := transitionAll(p, axes, model.StatusError, msg); err != nil {
		return taskResult{outcome: outcomeInvalid, id: p.Text, err: err}
	}
	return taskResult{outcome: outcomeError, id: p.Text, err: cause}
}

func transitionAll(p *model.Pattern, axes []model.Axis, to model.PatternStatus, msg string) error {
	for _, axis := range axes {
		if err := p.Transition(axis, to, msg); err != nil {
			return fmt.Errorf("pattern %q: %w", p.Text, err)
		}
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
