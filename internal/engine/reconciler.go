package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
)

// Reconciler errors.
var (
	ErrQuit           = errors.New("user quit")
	ErrPatternLocked  = errors.New("pattern is being parsed")
	ErrNotResolvable  = errors.New("pattern axis is not awaiting a decision")
	ErrMissingTarget  = errors.New("alias requires a target entity")
	ErrUnknownAction  = errors.New("unknown action")
	ErrNothingApplied = errors.New("no ingredients were updated")
)

// Outcome describes what applying one decision did.
type Outcome struct {
	Report   *common.ErrorReport
	Result   *common.BatchResult
	EntityID string
	Action   model.Action
}

// ResolveSummary totals a ResolveAll run.
type ResolveSummary struct {
	Reports   []common.ErrorReport
	Processed int
	Skipped   int
	Reparsed  int
	Failed    int
	Quit      bool
}

// Reconciler turns user decisions into catalog writes, ingredient updates,
// pattern transitions and session checkpoints.
type Reconciler struct {
	store    EntityStore
	updater  IngredientUpdater
	parser   *BatchParser
	sessions SessionSaver
	patterns PatternSink
	reports  ReportSink
	recorder Recorder
	units    []model.KnownEntity
	foods    []model.KnownEntity
}

// ReconcilerConfig wires a Reconciler. Patterns, Reports and Recorder are optional.
type ReconcilerConfig struct {
	Store    EntityStore
	Updater  IngredientUpdater
	Parser   *BatchParser
	Sessions SessionSaver
	Patterns PatternSink
	Reports  ReportSink
	Recorder Recorder
}

// NewReconciler creates a reconciler. Call LoadCatalog before applying decisions.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{
		store:    cfg.Store,
		updater:  cfg.Updater,
		parser:   cfg.Parser,
		sessions: cfg.Sessions,
		patterns: cfg.Patterns,
		reports:  cfg.Reports,
		recorder: recorder,
	}
}

// LoadCatalog fetches units and foods and points the batch parser at them.
func (r *Reconciler) LoadCatalog(ctx context.Context) error {
	units, err := r.store.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("failed to load units: %w", err)
	}
	foods, err := r.store.ListFoods(ctx)
	if err != nil {
		return fmt.Errorf("failed to load foods: %w", err)
	}
	r.units = model.UnitEntities(units)
	r.foods = model.FoodEntities(foods)
	r.syncParser()

	slog.Info("Loaded catalog", "units", len(r.units), "foods", len(r.foods))
	return nil
}

// Catalog returns the known entities of one axis.
func (r *Reconciler) Catalog(axis model.Axis) []model.KnownEntity {
	if axis == model.AxisFood {
		return r.foods
	}
	return r.units
}

func (r *Reconciler) syncParser() {
	if r.parser != nil {
		r.parser.SetCatalog(pattern.NewResolver(r.units), pattern.NewResolver(r.foods))
	}
}

func (r *Reconciler) addToCatalog(axis model.Axis, e model.KnownEntity) {
	if axis == model.AxisFood {
		r.foods = append(r.foods, e)
	} else {
		r.units = append(r.units, e)
	}
	r.syncParser()
}

// checkpoint saves the session and then the stored rows of changed.
// A crash between the two writes is repaired by RestoreProgress.
func (r *Reconciler) checkpoint(ctx context.Context, state *model.SessionState, changed ...*model.Pattern) error {
	if r.sessions != nil && state != nil {
		if err := r.sessions.Save(state); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	if r.patterns != nil && len(changed) > 0 {
		if err := r.patterns.UpdatePatterns(context.WithoutCancel(ctx), changed); err != nil {
			return fmt.Errorf("failed to save patterns: %w", err)
		}
	}
	return nil
}

// RestoreProgress marks axes the session already linked as matched, for
// snapshots written before the last decision reached them. Restored patterns
// are written back to the pattern sink.
func (r *Reconciler) RestoreProgress(ctx context.Context, state *model.SessionState, patterns []*model.Pattern) (int, error) {
	if state == nil {
		return 0, nil
	}
	var restored []*model.Pattern
	for _, p := range patterns {
		if !state.IsHandled(p.Text) || !p.CanBeProcessed() {
			continue
		}
		changed := false
		for _, axis := range []model.Axis{model.AxisUnit, model.AxisFood} {
			id := state.LinkedID(axis, p.Text)
			if id == "" {
				continue
			}
			if s := p.Status(axis); s != model.StatusUnmatched && s != model.StatusQueued {
				continue
			}
			if err := queue(p, axis); err != nil {
				return len(restored), err
			}
			if err := p.SetMatchedAxis(axis, id); err != nil {
				return len(restored), err
			}
			changed = true
		}
		if changed {
			restored = append(restored, p)
		}
	}
	if len(restored) == 0 {
		return 0, nil
	}

	slog.Info("Restored linked patterns from session", "patterns", len(restored))
	return len(restored), r.checkpoint(ctx, nil, restored...)
}

// Unskip forgets skipped patterns that still have an axis in scope awaiting a
// decision, so ResolveAll offers them again. Ignored axes stay ignored.
func (r *Reconciler) Unskip(ctx context.Context, state *model.SessionState, patterns []*model.Pattern, scope Scope) (int, error) {
	n := 0
	for _, p := range patterns {
		if !state.IsSkipped(p.Text) {
			continue
		}
		for _, axis := range scope.Axes() {
			if awaitingDecision(p, axis) && state.LinkedID(axis, p.Text) == "" {
				state.Unskip(p.Text)
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, r.checkpoint(ctx, state)
}

// ResolveAll asks the decider about every unmatched or failed axis in scope
// whose pattern the session has neither skipped nor linked, and applies each
// decision. Quitting checkpoints the session and stops without error.
func (r *Reconciler) ResolveAll(ctx context.Context, state *model.SessionState, patterns []*model.Pattern, decider Decider, scope Scope) (*ResolveSummary, error) {
	summary := &ResolveSummary{}
	if _, err := r.RestoreProgress(ctx, state, patterns); err != nil {
		return summary, err
	}
	views := NewViews(patterns)

	for _, axis := range scope.Axes() {
		indices := views.ByUnit()
		if axis == model.AxisFood {
			indices = views.ByFood()
		}

		for _, i := range indices {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			p := patterns[i]
			if !awaitingDecision(p, axis) || state.IsSkipped(p.Text) || state.LinkedID(axis, p.Text) != "" {
				continue
			}

			decision, err := decider.Decide(ctx, p, axis)
			if err != nil {
				return summary, fmt.Errorf("failed to get decision: %w", err)
			}
			if decision.Action == model.ActionQuit {
				summary.Quit = true
				return summary, r.checkpoint(ctx, state)
			}

			outcome, err := r.Apply(ctx, state, p, axis, decision)
			if err != nil {
				var apiErr *common.APIError
				switch {
				case errors.Is(err, pattern.ErrValidation),
					errors.Is(err, ErrMissingTarget),
					errors.Is(err, ErrNotResolvable):
					slog.Warn("Decision rejected", "pattern", p.Text, "error", err)
				case errors.As(err, &apiErr):
					common.LogError(err, "Failed to apply decision", common.Fields{"pattern": p.Text, "axis": axis})
				default:
					return summary, err
				}
				summary.Failed++
				continue
			}

			switch outcome.Action {
			case model.ActionSkip:
				summary.Skipped++
			case model.ActionReparse:
				summary.Reparsed++
			default:
				summary.Processed++
			}
			if outcome.Report != nil {
				summary.Reports = append(summary.Reports, *outcome.Report)
			}
		}
		views.Refresh()
	}

	return summary, nil
}

func awaitingDecision(p *model.Pattern, axis model.Axis) bool {
	switch p.Status(axis) {
	case model.StatusUnmatched, model.StatusQueued, model.StatusError:
		return true
	}
	return false
}

// Apply carries out one decision for one axis of p and checkpoints the session.
func (r *Reconciler) Apply(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, d model.Decision) (*Outcome, error) {
	if state == nil {
		return nil, errors.New("session state is required")
	}
	if !p.CanBeProcessed() {
		return nil, fmt.Errorf("%w: %q", ErrPatternLocked, p.Text)
	}

	switch d.Action {
	case model.ActionSkip:
		return r.skip(ctx, state, p, axis)
	case model.ActionReparse:
		return r.reparse(ctx, state, p, axis, d.Method)
	case model.ActionCreate, model.ActionCreateWithAlias:
		return r.create(ctx, state, p, axis, d)
	case model.ActionAlias:
		return r.alias(ctx, state, p, axis, d)
	case model.ActionQuit:
		return nil, ErrQuit
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, d.Action)
	}
}

func (r *Reconciler) skip(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis) (*Outcome, error) {
	if p.Status(axis) == model.StatusError {
		if err := p.Transition(axis, model.StatusIgnore, ""); err != nil {
			return nil, err
		}
	}
	state.MarkSkipped(p.Text)
	return &Outcome{Action: model.ActionSkip}, r.checkpoint(ctx, state, p)
}

func (r *Reconciler) reparse(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, method model.ParseMethod) (*Outcome, error) {
	if r.parser == nil {
		return nil, errors.New("reparse requires a batch parser")
	}
	scope := ScopeUnit
	if axis == model.AxisFood {
		scope = ScopeFood
	}
	summary, err := r.parser.ParseBatch(ctx, []*model.Pattern{p}, []int{0}, ParseOptions{
		Method:      method,
		Scope:       scope,
		Concurrency: 1,
	})
	if err != nil {
		return nil, err
	}
	if summary.Skipped > 0 {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResolvable, axis, p.Status(axis))
	}
	return &Outcome{Action: model.ActionReparse}, r.checkpoint(ctx, state, p)
}

// queue moves the axis to queued ahead of a catalog write.
func queue(p *model.Pattern, axis model.Axis) error {
	switch p.Status(axis) {
	case model.StatusQueued:
		return nil
	case model.StatusUnmatched:
		return p.Transition(axis, model.StatusQueued, "")
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotResolvable, axis, p.Status(axis))
	}
}

// defaultName picks the parsed name for the axis, falling back to the pattern text.
func defaultName(p *model.Pattern, axis model.Axis) string {
	if name, _ := p.Parsed(axis); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return p.Text
}

func (r *Reconciler) create(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, d model.Decision) (*Outcome, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = defaultName(p, axis)
	}

	check := pattern.ValidateName(axis, name, r.Catalog(axis))
	if axis == model.AxisUnit {
		abbr := pattern.ValidateAbbreviation(d.Abbreviation)
		check.Errors = append(check.Errors, abbr.Errors...)
	}
	if err := check.Err(); err != nil {
		return nil, err
	}
	if err := queue(p, axis); err != nil {
		return nil, err
	}

	var (
		entity model.KnownEntity
		opType model.OperationType
	)
	if axis == model.AxisFood {
		food, err := r.store.CreateFood(ctx, model.FoodInput{Name: name, Description: d.Description})
		if err != nil {
			return nil, r.failAxis(ctx, state, p, axis, err)
		}
		entity, opType = food.Entity(), model.OpCreateFood
		state.RecordCreatedFood(p.Text, food.ID)
	} else {
		unit, err := r.store.CreateUnit(ctx, model.UnitInput{Name: name, Abbreviation: d.Abbreviation, Description: d.Description})
		if err != nil {
			return nil, r.failAxis(ctx, state, p, axis, err)
		}
		entity, opType = unit.Entity(), model.OpCreateUnit
		state.RecordCreatedUnit(p.Text, unit.ID)
	}

	if d.Action == model.ActionCreateWithAlias {
		alias := strings.TrimSpace(d.Alias)
		if alias == "" {
			alias = p.Text
		}
		if err := r.addAlias(ctx, axis, entity.ID, alias); err != nil {
			// the entity exists, so ingredients are still linked to it
			slog.Warn("Failed to add alias to new entity", "entity_id", entity.ID, "alias", alias, "error", err)
		} else {
			entity.Aliases = append(entity.Aliases, alias)
		}
	}
	r.addToCatalog(axis, entity)

	return r.assign(ctx, state, p, axis, d.Action, opType, entity.ID)
}

func (r *Reconciler) alias(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, d model.Decision) (*Outcome, error) {
	if strings.TrimSpace(d.TargetID) == "" {
		return nil, ErrMissingTarget
	}
	alias := strings.TrimSpace(d.Alias)
	if alias == "" {
		alias = defaultName(p, axis)
	}
	if check := pattern.ValidatePatternText(alias); !check.Valid() {
		return nil, check.Err()
	}
	if err := queue(p, axis); err != nil {
		return nil, err
	}

	opType := model.OpAddUnitAlias
	if axis == model.AxisFood {
		opType = model.OpAddFoodAlias
	}
	if err := r.addAlias(ctx, axis, d.TargetID, alias); err != nil {
		return nil, r.failAxis(ctx, state, p, axis, err)
	}

	return r.assign(ctx, state, p, axis, model.ActionAlias, opType, d.TargetID)
}

func (r *Reconciler) addAlias(ctx context.Context, axis model.Axis, id, alias string) error {
	if axis == model.AxisFood {
		_, err := r.store.AddFoodAlias(ctx, id, alias)
		return err
	}
	_, err := r.store.AddUnitAlias(ctx, id, alias)
	return err
}

// assign links every ingredient of p to entityID, bracketed by the session's
// in-flight operation so an interrupted run can tell what was under way.
func (r *Reconciler) assign(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, action model.Action, opType model.OperationType, entityID string) (*Outcome, error) {
	op, err := model.NewBatchOperation(opType, p.Text, p.IngredientIDs)
	if err != nil {
		return nil, err
	}
	op.EntityID = entityID
	state.BeginOperation(op)
	if err := r.checkpoint(ctx, state, p); err != nil {
		return nil, err
	}

	var result *common.BatchResult
	if axis == model.AxisFood {
		result = r.updater.AssignFood(ctx, entityID, p.IngredientIDs, nil)
	} else {
		result = r.updater.AssignUnit(ctx, entityID, p.IngredientIDs, nil)
	}
	r.recorder.BulkFinished(string(opType), len(result.Successful), len(result.Failed))

	outcome := &Outcome{Action: action, EntityID: entityID, Result: result}
	if result.HasFailures() {
		report := common.NewErrorReport(result, string(opType), p.Text)
		outcome.Report = &report
		if r.reports != nil {
			if err := r.reports.SaveReport(ctx, report); err != nil {
				slog.Warn("Failed to store error report", "pattern", p.Text, "error", err)
			}
		}
	}

	if len(result.Successful) == 0 {
		msg := fmt.Sprintf("%s: %s", ErrNothingApplied, result.Summary())
		if err := p.Transition(axis, model.StatusError, msg); err != nil {
			return nil, err
		}
	} else {
		if err := p.SetMatchedAxis(axis, entityID); err != nil {
			return nil, err
		}
		state.RecordLinked(axis, p.Text, entityID)
		state.MarkProcessed(p.Text)
	}

	state.EndOperation()
	slog.Info("Applied decision",
		"pattern", p.Text,
		"axis", axis,
		"action", action,
		"entity_id", entityID,
		"result", result.Summary())

	return outcome, r.checkpoint(ctx, state, p)
}

// failAxis records a failed catalog write on the pattern and returns err.
func (r *Reconciler) failAxis(ctx context.Context, state *model.SessionState, p *model.Pattern, axis model.Axis, err error) error {
	if terr := p.Transition(axis, model.StatusError, common.UserMessage(err)); terr != nil {
		return errors.Join(err, terr)
	}
	if cerr := r.checkpoint(ctx, state, p); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}
