package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/engine"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
)

const (
	suggestionLimit = 5
	knownNamesLimit = 20
)

// CatalogFunc returns the known entities of one axis at the time of asking.
type CatalogFunc func(axis model.Axis) []model.KnownEntity

// Prompter asks the user what to do with each unmatched pattern axis.
// It implements engine.Decider over line-based terminal input.
type Prompter struct {
	startTime time.Time
	writer    io.Writer
	reader    *NonBlockingReader
	catalog   CatalogFunc
	patterns  []*model.Pattern
	counts    map[model.Action]int
	asked     int
	mu        sync.Mutex
}

var _ engine.Decider = (*Prompter)(nil)

// NewPrompter creates a prompter. Nil reader and writer default to stdin and stdout.
func NewPrompter(reader io.Reader, writer io.Writer, catalog CatalogFunc) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	if catalog == nil {
		catalog = func(model.Axis) []model.KnownEntity { return nil }
	}
	return &Prompter{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		catalog:   catalog,
		counts:    make(map[model.Action]int),
		startTime: time.Now(),
	}
}

// SetPatterns gives the prompter the full pattern list, so similar patterns
// are shown with their current status.
func (p *Prompter) SetPatterns(patterns []*model.Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = patterns
}

// Decide shows one pattern axis and reads the user's decision.
// End of input is treated as quit so the session is checkpointed.
func (p *Prompter) Decide(ctx context.Context, pat *model.Pattern, axis model.Axis) (model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return model.Decision{}, err
	}

	decision, err := p.decide(ctx, pat, axis)
	if errors.Is(err, io.EOF) {
		slog.Info("Input closed, stopping")
		decision, err = model.Decision{Action: model.ActionQuit}, nil
	}
	if err != nil {
		return model.Decision{}, err
	}

	p.mu.Lock()
	p.asked++
	p.counts[decision.Action]++
	p.mu.Unlock()
	return decision, nil
}

func (p *Prompter) decide(ctx context.Context, pat *model.Pattern, axis model.Axis) (model.Decision, error) {
	title := fmt.Sprintf("Unmatched %s", axis)
	if pat.Status(axis) == model.StatusError {
		title = fmt.Sprintf("Failed %s", axis)
	}
	if _, err := fmt.Fprintln(p.writer, RenderBox(title, p.formatPattern(pat, axis))); err != nil {
		return model.Decision{}, fmt.Errorf("failed to write pattern box: %w", err)
	}

	options := []struct{ key, label string }{
		{"c", fmt.Sprintf("Create new %s '%s'", axis, defaultName(pat, axis))},
		{"n", fmt.Sprintf("Create new %s with a custom name", axis)},
		{"w", fmt.Sprintf("Create new %s and keep this text as an alias", axis)},
		{"a", fmt.Sprintf("Add as alias of an existing %s", axis)},
		{"r", "Re-parse"},
		{"s", "Skip this pattern"},
		{"q", "Save and quit"},
	}
	if pat.Status(axis) == model.StatusError {
		// a failed axis has to be parsed again before it can be linked
		options = options[4:]
	}

	if _, err := fmt.Fprintln(p.writer, FormatPrompt("Options:")); err != nil {
		return model.Decision{}, fmt.Errorf("failed to write options: %w", err)
	}
	valid := make([]string, 0, len(options))
	for _, o := range options {
		if _, err := fmt.Fprintf(p.writer, "  [%s] %s\n", strings.ToUpper(o.key), o.label); err != nil {
			return model.Decision{}, fmt.Errorf("failed to write option: %w", err)
		}
		valid = append(valid, o.key)
	}

	choice, err := p.promptChoice(ctx, "Choice", valid)
	if err != nil {
		return model.Decision{}, err
	}

	switch choice {
	case "c":
		return p.createDecision(ctx, model.ActionCreate, axis, defaultName(pat, axis))
	case "n":
		name, err := p.promptRequired(ctx, fmt.Sprintf("New %s name", axis))
		if err != nil {
			return model.Decision{}, err
		}
		return p.createDecision(ctx, model.ActionCreate, axis, name)
	case "w":
		d, err := p.createDecision(ctx, model.ActionCreateWithAlias, axis, defaultName(pat, axis))
		d.Alias = pat.Text
		return d, err
	case "a":
		id, err := p.promptTarget(ctx, pat, axis)
		if err != nil {
			return model.Decision{}, err
		}
		return model.Decision{Action: model.ActionAlias, TargetID: id}, nil
	case "r":
		method, err := p.promptMethod(ctx)
		if err != nil {
			return model.Decision{}, err
		}
		return model.Decision{Action: model.ActionReparse, Method: method}, nil
	case "s":
		return model.Decision{Action: model.ActionSkip}, nil
	default:
		return model.Decision{Action: model.ActionQuit}, nil
	}
}

func (p *Prompter) createDecision(ctx context.Context, action model.Action, axis model.Axis, name string) (model.Decision, error) {
	d := model.Decision{Action: action, Name: name}
	if axis != model.AxisUnit {
		return d, nil
	}
	abbr, err := p.promptLine(ctx, fmt.Sprintf("Abbreviation (Enter for '%s')", pattern.DefaultAbbreviation(name)))
	if err != nil {
		return model.Decision{}, err
	}
	d.Abbreviation = abbr
	return d, nil
}

func (p *Prompter) formatPattern(pat *model.Pattern, axis model.Axis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Text:        %s\n", BoldStyle.Render(pat.Text))
	fmt.Fprintf(&b, "Status:      %s\n", FormatStatus(pat.Status(axis)))
	if name, confidence := pat.Parsed(axis); name != "" {
		fmt.Fprintf(&b, "Parsed %s: %s (%.0f%%)\n", axis, name, confidence*100)
	}
	if msg := pat.ErrorMessage(axis); msg != "" {
		fmt.Fprintf(&b, "Error:       %s\n", ErrorStyle.Render(msg))
	}
	fmt.Fprintf(&b, "Ingredients: %d in %d recipes", len(pat.IngredientIDs), len(pat.RecipeIDs))
	if similar := p.similar(pat, axis); len(similar) > 0 {
		fmt.Fprintf(&b, "\nSimilar:     %s", SubtleStyle.Render(strings.Join(similar, ", ")))
	}
	return b.String()
}

// similar lists the patterns suggested as similar to pat, with their status
// on axis when the full pattern list is known.
func (p *Prompter) similar(pat *model.Pattern, axis model.Axis) []string {
	p.mu.Lock()
	all := p.patterns
	p.mu.Unlock()
	if all == nil {
		return pat.SimilarPatterns
	}

	related := pattern.SimilarTo(pat, all)
	out := make([]string, 0, len(related))
	for _, other := range related {
		out = append(out, fmt.Sprintf("%s (%s)", other.Text, other.Status(axis)))
	}
	return out
}

// promptTarget lists close catalog entries and reads a number or an exact name.
func (p *Prompter) promptTarget(ctx context.Context, pat *model.Pattern, axis model.Axis) (string, error) {
	resolver := pattern.NewResolver(p.catalog(axis))
	if resolver.Len() == 0 {
		return "", fmt.Errorf("no existing %s to alias", axis)
	}

	suggestions := resolver.Suggest(defaultName(pat, axis), suggestionLimit)
	for i, e := range suggestions {
		if _, err := fmt.Fprintf(p.writer, "  %d. %s\n", i+1, e.Name); err != nil {
			return "", fmt.Errorf("failed to write suggestion: %w", err)
		}
	}

	for {
		input, err := p.promptRequired(ctx, fmt.Sprintf("Existing %s (number or name)", axis))
		if err != nil {
			return "", err
		}
		id := ""
		if n, convErr := strconv.Atoi(input); convErr == nil && n >= 1 && n <= len(suggestions) {
			id = suggestions[n-1].ID
		} else if found, ok := resolver.Resolve(input); ok {
			id = found
		}
		if e, ok := resolver.Lookup(id); ok {
			if _, err := fmt.Fprintln(p.writer, FormatInfo(fmt.Sprintf("Aliasing to %s '%s'", axis, e.Name))); err != nil {
				return "", fmt.Errorf("failed to write selection: %w", err)
			}
			return id, nil
		}

		p.printError(fmt.Sprintf("No %s named '%s'.", axis, input))
		if names := resolver.Names(); len(names) <= knownNamesLimit {
			p.printError(fmt.Sprintf("Known: %s", strings.Join(names, ", ")))
		}
	}
}

func (p *Prompter) promptMethod(ctx context.Context) (model.ParseMethod, error) {
	for {
		input, err := p.promptLine(ctx, "Parser (nlp, brute, openai; Enter for nlp)")
		if err != nil {
			return "", err
		}
		method, err := model.ParseMethodFromString(input)
		if err == nil {
			return method, nil
		}
		p.printError(err.Error())
	}
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		input, err := p.promptLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}
		p.printError("Invalid choice. Please try again.")
	}
}

func (p *Prompter) promptRequired(ctx context.Context, prompt string) (string, error) {
	for {
		input, err := p.promptLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		if input != "" {
			return input, nil
		}
		p.printError("A value is required.")
	}
}

func (p *Prompter) promptLine(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	return p.reader.ReadLine(ctx)
}

func (p *Prompter) printError(msg string) {
	if _, err := fmt.Fprintln(p.writer, FormatError(msg)); err != nil {
		slog.Warn("Failed to write error message", "error", err)
	}
}

// Counts returns how often each action was chosen.
func (p *Prompter) Counts() map[model.Action]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[model.Action]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// ShowCompletion prints the totals of a resolve run.
func (p *Prompter) ShowCompletion(summary *engine.ResolveSummary, state *model.SessionState) {
	if summary == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Decisions:  %d in %s\n", p.asked, time.Since(p.startTime).Round(time.Second))
	fmt.Fprintf(&b, "Applied:    %s\n", SuccessStyle.Render(strconv.Itoa(summary.Processed)))
	fmt.Fprintf(&b, "Re-parsed:  %d\n", summary.Reparsed)
	fmt.Fprintf(&b, "Skipped:    %d\n", summary.Skipped)
	fmt.Fprintf(&b, "Failed:     %s", ErrorStyle.Render(strconv.Itoa(summary.Failed)))
	if len(summary.Reports) > 0 {
		fmt.Fprintf(&b, "\nReports:    %d bulk updates had failures", len(summary.Reports))
	}
	if state != nil {
		fmt.Fprintf(&b, "\n\n%s", SubtleStyle.Render(state.Summary()))
	}

	title := ChartIcon + " Resolve Complete"
	if summary.Quit {
		title = ChartIcon + " Resolve Paused"
	}
	if _, err := fmt.Fprintln(p.writer, RenderBox(title, b.String())); err != nil {
		slog.Warn("Failed to write completion summary", "error", err)
	}
}

// defaultName is the parsed name for the axis, or the whole text when the parser found none.
func defaultName(pat *model.Pattern, axis model.Axis) string {
	if name, _ := pat.Parsed(axis); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return pat.Text
}
