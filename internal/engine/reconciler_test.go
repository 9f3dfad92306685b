package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReports struct {
	reports []common.ErrorReport
	mu      sync.Mutex
}

func (m *memReports) SaveReport(_ context.Context, r common.ErrorReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

// memPatterns keeps the last written copy of each pattern.
type memPatterns struct {
	saved map[string]model.Pattern
	mu    sync.Mutex
}

func (m *memPatterns) UpdatePatterns(_ context.Context, patterns []*model.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]model.Pattern{}
	}
	for _, p := range patterns {
		m.saved[p.Text] = *p
	}
	return nil
}

func (m *memPatterns) get(text string) (model.Pattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.saved[text]
	return p, ok
}

type reconcilerFixture struct {
	reconciler *Reconciler
	store      *MockStore
	parser     *MockParser
	sessions   *session.Store
	patterns   *memPatterns
	reports    *memReports
	recorder   *countingRecorder
	state      *model.SessionState
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	store := NewMockStore(
		[]model.Unit{{ID: "u-cup", Name: "cup"}},
		[]model.Food{{ID: "f-flour", Name: "flour"}},
	)
	parser := NewMockParser()
	recorder := newCountingRecorder()
	sessions := session.NewStore(t.TempDir())
	patterns := &memPatterns{}
	reports := &memReports{}

	r := NewReconciler(ReconcilerConfig{
		Store:    store,
		Updater:  store,
		Parser:   NewBatchParser(parser, nil, nil, recorder),
		Sessions: sessions,
		Patterns: patterns,
		Reports:  reports,
		Recorder: recorder,
	})
	require.NoError(t, r.LoadCatalog(context.Background()))

	return &reconcilerFixture{
		reconciler: r,
		store:      store,
		parser:     parser,
		sessions:   sessions,
		patterns:   patterns,
		reports:    reports,
		recorder:   recorder,
		state:      model.NewSessionState(),
	}
}

// unmatchedPattern returns a pattern already parsed with neither axis resolved.
func unmatchedPattern(t *testing.T, text, unit, food string, ingredientIDs ...string) *model.Pattern {
	t.Helper()
	p, err := model.NewPattern(text)
	require.NoError(t, err)
	p.MissingUnit, p.MissingFood = true, true
	p.UnitStatus, p.FoodStatus = model.StatusUnmatched, model.StatusUnmatched
	p.ParsedUnit, p.ParsedFood = unit, food
	p.IngredientIDs = ingredientIDs
	return p
}

func TestReconciler_CreateUnit(t *testing.T) {
	f := newReconcilerFixture(t)
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1", "ing-2")

	outcome, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch", Abbreviation: "pn"})
	require.NoError(t, err)

	assert.Equal(t, "unit-1", outcome.EntityID)
	assert.Nil(t, outcome.Report)
	assert.Equal(t, 2, len(outcome.Result.Successful))
	assert.Equal(t, "unit-1", f.store.Assigned(model.AxisUnit, "ing-1"))
	assert.Equal(t, "unit-1", f.store.Assigned(model.AxisUnit, "ing-2"))

	assert.Equal(t, model.StatusMatched, p.UnitStatus)
	assert.Equal(t, "unit-1", p.MatchedID(model.AxisUnit))
	assert.Equal(t, model.StatusUnmatched, p.FoodStatus)

	assert.Equal(t, "unit-1", f.state.CreatedUnits["1 pinch salt"])
	assert.Contains(t, f.state.ProcessedPatterns, "1 pinch salt")
	assert.Nil(t, f.state.CurrentOperation)
	assert.Equal(t, 1, f.recorder.bulk)

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, f.state.ID, saved.ID)
	assert.Equal(t, "unit-1", saved.CreatedUnits["1 pinch salt"])
	assert.Nil(t, saved.CurrentOperation)

	names := make([]string, 0)
	for _, e := range f.reconciler.Catalog(model.AxisUnit) {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"cup", "pinch"}, names)
}

func TestReconciler_CreatedUnitResolvesOnReparse(t *testing.T) {
	f := newReconcilerFixture(t)
	first := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")
	second := unmatchedPattern(t, "2 pinch pepper", "pinch", "pepper", "ing-2")
	f.parser.SetResult("2 pinch pepper", "Pinch", "pepper", 0.9)

	_, err := f.reconciler.Apply(context.Background(), f.state, first, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch"})
	require.NoError(t, err)

	outcome, err := f.reconciler.Apply(context.Background(), f.state, second, model.AxisUnit,
		model.Decision{Action: model.ActionReparse})
	require.NoError(t, err)
	assert.Equal(t, model.ActionReparse, outcome.Action)
	assert.Equal(t, model.StatusMatched, second.UnitStatus)
	assert.Equal(t, "unit-1", second.MatchedID(model.AxisUnit))
	assert.Equal(t, model.StatusUnmatched, second.FoodStatus)
}

func TestReconciler_CreateRejected(t *testing.T) {
	tests := []struct {
		name     string
		decision model.Decision
	}{
		{name: "duplicate name", decision: model.Decision{Action: model.ActionCreate, Name: "CUP"}},
		{name: "disallowed characters", decision: model.Decision{Action: model.ActionCreate, Name: "pinch<script>"}},
		{name: "abbreviation with spaces", decision: model.Decision{Action: model.ActionCreate, Name: "pinch", Abbreviation: "p n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t)
			p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")

			_, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisUnit, tt.decision)
			require.Error(t, err)
			assert.ErrorIs(t, err, pattern.ErrValidation)
			assert.Equal(t, model.StatusUnmatched, p.UnitStatus)
			assert.Equal(t, []string{"cup"}, f.store.UnitNames())
			assert.Empty(t, f.state.ProcessedPatterns)
		})
	}
}

func TestReconciler_CreateFails(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.FailCreate = common.ClassifyStatus("Create unit", 500)
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")

	_, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch"})
	require.Error(t, err)

	var apiErr *common.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.StatusError, p.UnitStatus)
	assert.NotEmpty(t, p.ErrorMessage(model.AxisUnit))
	assert.Empty(t, f.state.CreatedUnits)
}

func TestReconciler_Alias(t *testing.T) {
	f := newReconcilerFixture(t)
	p := unmatchedPattern(t, "1 cup plain flour", "cup", "plain flour", "ing-1")
	other := unmatchedPattern(t, "2 cups plain flour", "cups", "plain flour", "ing-2")

	outcome, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionAlias, TargetID: "f-flour"})
	require.NoError(t, err)
	assert.Equal(t, "f-flour", outcome.EntityID)
	assert.Equal(t, model.StatusMatched, p.FoodStatus)
	assert.Equal(t, "f-flour", f.store.Assigned(model.AxisFood, "ing-1"))
	assert.Equal(t, 1, f.store.AliasUpdates())

	// the alias is already present, so no second write happens
	_, err = f.reconciler.Apply(context.Background(), f.state, other, model.AxisFood,
		model.Decision{Action: model.ActionAlias, TargetID: "f-flour", Alias: "Plain Flour"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.AliasUpdates())
	assert.Equal(t, "f-flour", f.store.Assigned(model.AxisFood, "ing-2"))
}

func TestReconciler_AliasErrors(t *testing.T) {
	f := newReconcilerFixture(t)
	p := unmatchedPattern(t, "1 cup plain flour", "cup", "plain flour", "ing-1")

	_, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionAlias})
	assert.ErrorIs(t, err, ErrMissingTarget)
	assert.Equal(t, model.StatusUnmatched, p.FoodStatus)

	_, err = f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionAlias, TargetID: "f-missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, model.StatusError, p.FoodStatus)

	// a failed axis must be reparsed or skipped before it can be aliased again
	_, err = f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionAlias, TargetID: "f-flour"})
	assert.ErrorIs(t, err, ErrNotResolvable)
}

func TestReconciler_CreateWithAlias(t *testing.T) {
	f := newReconcilerFixture(t)
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")

	outcome, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionCreateWithAlias, Name: "sea salt"})
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreateWithAlias, outcome.Action)
	assert.Equal(t, "food-1", f.state.CreatedFoods["1 pinch salt"])
	assert.Equal(t, 1, f.store.AliasUpdates())

	foods := f.reconciler.Catalog(model.AxisFood)
	created := foods[len(foods)-1]
	assert.Equal(t, "sea salt", created.Name)
	assert.Equal(t, []string{"1 pinch salt"}, created.Aliases)

	resolver := pattern.NewResolver(foods)
	id, ok := resolver.Resolve("sea salt")
	assert.True(t, ok)
	assert.Equal(t, "food-1", id)
}

func TestReconciler_Skip(t *testing.T) {
	f := newReconcilerFixture(t)

	failed := unmatchedPattern(t, "a handful of love", "", "", "ing-1")
	require.NoError(t, failed.TransitionUnit(model.StatusParsing, ""))
	require.NoError(t, failed.TransitionUnit(model.StatusError, "parser timeout"))

	outcome, err := f.reconciler.Apply(context.Background(), f.state, failed, model.AxisUnit,
		model.Decision{Action: model.ActionSkip})
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkip, outcome.Action)
	assert.Equal(t, model.StatusIgnore, failed.UnitStatus)
	assert.True(t, f.state.IsSkipped("a handful of love"))

	unmatched := unmatchedPattern(t, "salt to taste", "", "salt", "ing-2")
	_, err = f.reconciler.Apply(context.Background(), f.state, unmatched, model.AxisUnit,
		model.Decision{Action: model.ActionSkip})
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, unmatched.UnitStatus)
	assert.Equal(t, []string{"a handful of love", "salt to taste"}, f.state.SkippedPatterns)

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, f.state.SkippedPatterns, saved.SkippedPatterns)
}

func TestReconciler_PartialFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.FailIngredients["ing-2"] = common.ClassifyStatus("Update ingredient ing-2", 404)
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1", "ing-2", "ing-3")

	outcome, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch"})
	require.NoError(t, err)

	require.NotNil(t, outcome.Report)
	assert.Equal(t, 3, outcome.Report.TotalItems)
	assert.Equal(t, 2, outcome.Report.Succeeded)
	assert.Equal(t, 1, outcome.Report.Failed)
	assert.Equal(t, "ing-2", outcome.Report.Errors[0].ID)
	assert.Equal(t, string(model.OpCreateUnit), outcome.Report.OperationType)
	require.Len(t, f.reports.reports, 1)

	assert.Equal(t, model.StatusMatched, p.UnitStatus)
}

func TestReconciler_NothingApplied(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.FailIngredients["ing-1"] = errors.New("boom")
	f.store.FailIngredients["ing-2"] = errors.New("boom")
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1", "ing-2")

	outcome, err := f.reconciler.Apply(context.Background(), f.state, p, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, 0, outcome.Report.Succeeded)

	assert.Equal(t, model.StatusError, p.UnitStatus)
	assert.Contains(t, p.ErrorMessage(model.AxisUnit), ErrNothingApplied.Error())
	assert.Nil(t, f.state.CurrentOperation)
	assert.NotContains(t, f.state.ProcessedPatterns, "1 pinch salt")
	assert.Empty(t, f.state.LinkedID(model.AxisUnit, "1 pinch salt"))

	saved, ok := f.patterns.get("1 pinch salt")
	require.True(t, ok)
	assert.Equal(t, model.StatusError, saved.UnitStatus)
}

func TestReconciler_ApplyGuards(t *testing.T) {
	f := newReconcilerFixture(t)

	locked := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")
	locked.FoodStatus = model.StatusParsing
	_, err := f.reconciler.Apply(context.Background(), f.state, locked, model.AxisUnit,
		model.Decision{Action: model.ActionCreate, Name: "pinch"})
	assert.ErrorIs(t, err, ErrPatternLocked)

	matched := unmatchedPattern(t, "1 cup flour", "cup", "flour", "ing-2")
	matched.UnitStatus = model.StatusMatched
	_, err = f.reconciler.Apply(context.Background(), f.state, matched, model.AxisUnit,
		model.Decision{Action: model.ActionReparse})
	assert.ErrorIs(t, err, ErrNotResolvable)

	p := unmatchedPattern(t, "2 eggs", "", "eggs", "ing-3")
	_, err = f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: "merge"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = f.reconciler.Apply(context.Background(), f.state, p, model.AxisFood,
		model.Decision{Action: model.ActionQuit})
	assert.ErrorIs(t, err, ErrQuit)

	_, err = f.reconciler.Apply(context.Background(), nil, p, model.AxisFood,
		model.Decision{Action: model.ActionSkip})
	assert.Error(t, err)
}

func TestReconciler_ResolveAll(t *testing.T) {
	f := newReconcilerFixture(t)
	salt := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")
	bitters := unmatchedPattern(t, "3 dashes bitters", "dash", "", "ing-2")
	bitters.MissingFood = false
	bitters.FoodStatus = model.StatusMatched
	done := unmatchedPattern(t, "1 cup flour", "cup", "flour", "ing-3")
	done.UnitStatus, done.FoodStatus = model.StatusMatched, model.StatusMatched

	decider := &MockDecider{Decisions: []model.Decision{
		{Action: model.ActionCreate, Name: "pinch"},
		{Action: model.ActionSkip},
	}}

	summary, err := f.reconciler.ResolveAll(context.Background(), f.state,
		[]*model.Pattern{salt, bitters, done}, decider, ScopeBoth)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"unit:1 pinch salt",
		"unit:3 dashes bitters",
		"food:1 pinch salt",
	}, decider.Asked)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, summary.Quit)
	assert.Equal(t, model.StatusMatched, salt.UnitStatus)
	assert.Equal(t, model.StatusUnmatched, salt.FoodStatus)

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"3 dashes bitters"}, saved.SkippedPatterns)
	assert.Equal(t, []string{"1 pinch salt"}, saved.ProcessedPatterns)
}

func TestReconciler_ResolveAllCountsRejections(t *testing.T) {
	f := newReconcilerFixture(t)
	p := unmatchedPattern(t, "1 pinch salt", "pinch", "salt", "ing-1")
	f.state.MarkSkipped("ignored pattern")
	ignored := unmatchedPattern(t, "ignored pattern", "", "", "ing-2")

	decider := &MockDecider{Decisions: []model.Decision{
		{Action: model.ActionAlias},
	}}

	summary, err := f.reconciler.ResolveAll(context.Background(), f.state,
		[]*model.Pattern{p, ignored}, decider, ScopeFood)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Processed)
	assert.False(t, summary.Quit)
	assert.Equal(t, []string{"food:1 pinch salt"}, decider.Asked)
	assert.Equal(t, model.StatusUnmatched, p.FoodStatus)
}

func TestReconciler_ResolveAllResumesAfterCrash(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	flour := unmatchedPattern(t, "2 cups flour", "cups", "flour", "ing-1", "ing-2")

	first := &MockDecider{Decisions: []model.Decision{
		{Action: model.ActionAlias, TargetID: "u-cup"},
	}}
	summary, err := f.reconciler.ResolveAll(ctx, f.state, []*model.Pattern{flour}, first, ScopeBoth)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.True(t, summary.Quit)

	stored, ok := f.patterns.get("2 cups flour")
	require.True(t, ok)
	assert.Equal(t, model.StatusMatched, stored.UnitStatus)
	assert.Equal(t, "u-cup", stored.MatchedID(model.AxisUnit))

	// the process dies before the caller writes its own snapshot
	state, err := f.sessions.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "u-cup", state.LinkedID(model.AxisUnit, "2 cups flour"))

	stale := unmatchedPattern(t, "2 cups flour", "cups", "flour", "ing-1", "ing-2")
	second := &MockDecider{Decisions: []model.Decision{{Action: model.ActionSkip}}}
	_, err = f.reconciler.ResolveAll(ctx, state, []*model.Pattern{stale}, second, ScopeBoth)
	require.NoError(t, err)

	assert.Equal(t, []string{"food:2 cups flour"}, second.Asked)
	assert.Equal(t, model.StatusMatched, stale.UnitStatus)
	assert.Equal(t, "u-cup", stale.MatchedID(model.AxisUnit))
	assert.Equal(t, model.StatusUnmatched, stale.FoodStatus)
}

func TestReconciler_RestoreProgress(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	f.state.RecordLinked(model.AxisFood, "1 cup sugar", "f-sugar")
	f.state.MarkProcessed("1 cup sugar")
	sugar := unmatchedPattern(t, "1 cup sugar", "cup", "sugar", "ing-1")

	f.state.RecordLinked(model.AxisUnit, "a pinch of salt", "u-pinch")
	f.state.MarkProcessed("a pinch of salt")
	salt := unmatchedPattern(t, "a pinch of salt", "pinch", "salt", "ing-2")
	require.NoError(t, salt.TransitionUnit(model.StatusParsing, ""))
	require.NoError(t, salt.TransitionUnit(model.StatusError, "parser timeout"))

	untouched := unmatchedPattern(t, "2 eggs", "", "eggs", "ing-3")

	n, err := f.reconciler.RestoreProgress(ctx, f.state, []*model.Pattern{sugar, salt, untouched})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.StatusMatched, sugar.FoodStatus)
	assert.Equal(t, "f-sugar", sugar.MatchedID(model.AxisFood))
	assert.Equal(t, model.StatusUnmatched, sugar.UnitStatus)
	assert.Equal(t, model.StatusError, salt.UnitStatus)
	assert.Equal(t, model.StatusUnmatched, untouched.FoodStatus)

	_, ok := f.patterns.get("1 cup sugar")
	assert.True(t, ok)
	_, ok = f.patterns.get("2 eggs")
	assert.False(t, ok)

	// a linked axis is never offered again, even when it failed afterwards
	decider := &MockDecider{Decisions: []model.Decision{{Action: model.ActionSkip}, {Action: model.ActionSkip}}}
	_, err = f.reconciler.ResolveAll(ctx, f.state, []*model.Pattern{salt}, decider, ScopeUnit)
	require.NoError(t, err)
	assert.Empty(t, decider.Asked)
}

func TestReconciler_Unskip(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	salt := unmatchedPattern(t, "salt to taste", "", "salt", "ing-1")
	failed := unmatchedPattern(t, "a handful of love", "", "", "ing-2")
	require.NoError(t, failed.TransitionUnit(model.StatusParsing, ""))
	require.NoError(t, failed.TransitionUnit(model.StatusError, "parser timeout"))
	failed.FoodStatus = model.StatusMatched
	patterns := []*model.Pattern{salt, failed}

	for _, p := range patterns {
		_, err := f.reconciler.Apply(ctx, f.state, p, model.AxisUnit, model.Decision{Action: model.ActionSkip})
		require.NoError(t, err)
	}
	require.Equal(t, model.StatusIgnore, failed.UnitStatus)

	hidden := &MockDecider{}
	_, err := f.reconciler.ResolveAll(ctx, f.state, patterns, hidden, ScopeUnit)
	require.NoError(t, err)
	assert.Empty(t, hidden.Asked)

	n, err := f.reconciler.Unskip(ctx, f.state, patterns, ScopeUnit)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a handful of love"}, f.state.SkippedPatterns)

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a handful of love"}, saved.SkippedPatterns)

	offered := &MockDecider{Decisions: []model.Decision{{Action: model.ActionAlias, TargetID: "u-cup", Alias: "to taste"}}}
	summary, err := f.reconciler.ResolveAll(ctx, f.state, patterns, offered, ScopeUnit)
	require.NoError(t, err)
	assert.Equal(t, []string{"unit:salt to taste"}, offered.Asked)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, model.StatusMatched, salt.UnitStatus)
	assert.Equal(t, model.StatusIgnore, failed.UnitStatus)
}
