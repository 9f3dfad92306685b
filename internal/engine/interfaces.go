package engine

import (
	"context"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Parser defines the contract for the recipe manager's ingredient parser.
type Parser interface {
	Parse(ctx context.Context, texts []string, method model.ParseMethod) ([]model.ParseResult, error)
}

// EntityStore defines the contract for reading and extending the unit and food catalog.
type EntityStore interface {
	ListUnits(ctx context.Context) ([]model.Unit, error)
	ListFoods(ctx context.Context) ([]model.Food, error)
	CreateUnit(ctx context.Context, in model.UnitInput) (model.Unit, error)
	CreateFood(ctx context.Context, in model.FoodInput) (model.Food, error)
	AddUnitAlias(ctx context.Context, unitID, alias string) (model.Unit, error)
	AddFoodAlias(ctx context.Context, foodID, alias string) (model.Food, error)
}

// IngredientUpdater links ingredients to catalog entities in bulk.
// Bulk calls process every item and never abort on an item failure.
type IngredientUpdater interface {
	AssignUnit(ctx context.Context, unitID string, ingredientIDs []string, progress func(done, total int)) *common.BatchResult
	AssignFood(ctx context.Context, foodID string, ingredientIDs []string, progress func(done, total int)) *common.BatchResult
}

// RecipeSource lists recipes and fetches their ingredients.
type RecipeSource interface {
	ListRecipes(ctx context.Context) ([]model.Recipe, error)
	GetRecipe(ctx context.Context, slug string) (model.Recipe, error)
}

// Decider chooses what to do with an unresolved pattern axis.
type Decider interface {
	Decide(ctx context.Context, p *model.Pattern, axis model.Axis) (model.Decision, error)
}

// Recorder observes parser calls and bulk operations.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ParseStarted()
	ParseFinished(outcome string, elapsed time.Duration)
	BulkFinished(operation string, succeeded, failed int)
}

// SessionSaver checkpoints session state.
type SessionSaver interface {
	Save(state *model.SessionState) error
}

// PatternSink rewrites stored patterns after their status changed.
type PatternSink interface {
	UpdatePatterns(ctx context.Context, patterns []*model.Pattern) error
}

// ReportSink keeps error reports of bulk operations.
type ReportSink interface {
	SaveReport(ctx context.Context, report common.ErrorReport) error
}

type nopRecorder struct{}

func (nopRecorder) ParseStarted()                          {}
func (nopRecorder) ParseFinished(_ string, _ time.Duration) {}
func (nopRecorder) BulkFinished(_ string, _, _ int)         {}
