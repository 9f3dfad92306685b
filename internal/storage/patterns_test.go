package storage

import (
	"context"
	"testing"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotPatterns(t *testing.T) []*model.Pattern {
	t.Helper()

	flour, err := model.NewPattern("2 cups flour")
	require.NoError(t, err)
	flour.MissingUnit, flour.MissingFood = true, true
	flour.IngredientIDs = []string{"i-1", "i-4"}
	flour.RecipeIDs = []string{"r-1", "r-2"}
	flour.SimilarPatterns = []string{"2 cups flours"}
	require.NoError(t, flour.TransitionUnit(model.StatusParsing, ""))
	require.NoError(t, flour.TransitionFood(model.StatusParsing, ""))
	flour.SetParsed(model.AxisUnit, "cup", 0.9)
	flour.SetParsed(model.AxisFood, "flour", 0.8)
	require.NoError(t, flour.SetMatched("u-cup", "f-flour"))

	salt, err := model.NewPattern("a pinch of salt")
	require.NoError(t, err)
	salt.MissingUnit = true
	salt.IngredientIDs = []string{"i-2"}
	require.NoError(t, salt.TransitionUnit(model.StatusParsing, ""))
	require.NoError(t, salt.TransitionUnit(model.StatusError, "parser timeout"))

	egg, err := model.NewPattern("1 egg")
	require.NoError(t, err)
	egg.MissingFood = true
	egg.IngredientIDs = []string{"i-3"}

	return []*model.Pattern{flour, salt, egg}
}

func TestSavePatterns_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	patterns := snapshotPatterns(t)

	require.NoError(t, store.SavePatterns(ctx, patterns))

	loaded, err := store.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	assert.Equal(t, "2 cups flour", loaded[0].Text)
	assert.Equal(t, model.StatusMatched, loaded[0].UnitStatus)
	assert.Equal(t, "u-cup", loaded[0].MatchedID(model.AxisUnit))
	assert.Equal(t, "f-flour", loaded[0].MatchedID(model.AxisFood))
	assert.Equal(t, []string{"i-1", "i-4"}, loaded[0].IngredientIDs)
	assert.Equal(t, []string{"2 cups flours"}, loaded[0].SimilarPatterns)
	assert.InDelta(t, 0.9, loaded[0].UnitConfidence, 1e-9)

	assert.Equal(t, model.StatusError, loaded[1].UnitStatus)
	assert.Equal(t, "parser timeout", loaded[1].ErrorMessage(model.AxisUnit))
	assert.NotNil(t, loaded[1].ErrorAt)

	assert.Equal(t, "1 egg", loaded[2].Text)
	assert.Equal(t, model.StatusPending, loaded[2].FoodStatus)
}

func TestSavePatterns_Replaces(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	patterns := snapshotPatterns(t)

	require.NoError(t, store.SavePatterns(ctx, patterns))
	require.NoError(t, store.SavePatterns(ctx, patterns[1:2]))

	loaded, err := store.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a pinch of salt", loaded[0].Text)
}

func TestUpdatePatterns(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	patterns := snapshotPatterns(t)
	require.NoError(t, store.SavePatterns(ctx, patterns))

	egg := patterns[2]
	require.NoError(t, egg.TransitionFood(model.StatusParsing, ""))
	egg.SetParsed(model.AxisFood, "egg", 0.95)
	require.NoError(t, egg.TransitionFood(model.StatusUnmatched, ""))

	stray, err := model.NewPattern("1 cup sugar")
	require.NoError(t, err)

	require.NoError(t, store.UpdatePatterns(ctx, []*model.Pattern{egg, stray}))

	loaded, err := store.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "1 egg", loaded[2].Text)
	assert.Equal(t, model.StatusUnmatched, loaded[2].FoodStatus)
	assert.Equal(t, "egg", loaded[2].ParsedFood)
	assert.Equal(t, model.StatusMatched, loaded[0].UnitStatus)

	counts, err := store.PatternCounts(ctx, model.AxisFood)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusUnmatched])

	assert.ErrorIs(t, store.UpdatePatterns(ctx, []*model.Pattern{nil}), ErrNilParameter)
}

func TestSavePatterns_Invalid(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	broken, err := model.NewPattern("3 eggs")
	require.NoError(t, err)
	broken.UnitStatus = model.StatusError

	tests := []struct {
		name     string
		patterns []*model.Pattern
		wantErr  error
	}{
		{name: "nil pattern", patterns: []*model.Pattern{nil}, wantErr: ErrNilParameter},
		{name: "error without message", patterns: []*model.Pattern{broken}, wantErr: model.ErrErrorMessageRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SavePatterns(ctx, tt.patterns)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadPatterns_ResetsParsing(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	p, err := model.NewPattern("1 tbsp butter")
	require.NoError(t, err)
	require.NoError(t, p.TransitionFood(model.StatusParsing, ""))
	require.NoError(t, store.SavePatterns(ctx, []*model.Pattern{p}))

	loaded, err := store.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, model.StatusError, loaded[0].FoodStatus)
	assert.Equal(t, interruptedMessage, loaded[0].ErrorMessage(model.AxisFood))
	assert.Equal(t, model.StatusPending, loaded[0].UnitStatus)
	assert.True(t, loaded[0].CanBeProcessed())
}

func TestPatternCounts(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.SavePatterns(ctx, snapshotPatterns(t)))

	units, err := store.PatternCounts(ctx, model.AxisUnit)
	require.NoError(t, err)
	assert.Equal(t, map[model.PatternStatus]int{
		model.StatusMatched: 1,
		model.StatusError:   1,
		model.StatusPending: 1,
	}, units)

	foods, err := store.PatternCounts(ctx, model.AxisFood)
	require.NoError(t, err)
	assert.Equal(t, 2, foods[model.StatusPending])

	require.NoError(t, store.ClearPatterns(ctx))
	loaded, err := store.LoadPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
