package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// MockStore is an in-memory catalog and recipe source for tests.
// It implements EntityStore, IngredientUpdater and RecipeSource.
type MockStore struct {
	// FailIngredients makes updates of these ingredient ids fail.
	FailIngredients map[string]error
	// FailCreate makes every create call fail.
	FailCreate   error
	recipes      map[string]model.Recipe
	assignments  map[string]string
	units        []model.Unit
	foods        []model.Food
	recipeSlugs  []string
	aliasUpdates int
	nextID       int
	mu           sync.Mutex
}

// NewMockStore creates a store holding the given catalog.
func NewMockStore(units []model.Unit, foods []model.Food) *MockStore {
	return &MockStore{
		FailIngredients: make(map[string]error),
		recipes:         make(map[string]model.Recipe),
		assignments:     make(map[string]string),
		units:           units,
		foods:           foods,
	}
}

// AddRecipe registers a recipe by slug.
func (m *MockStore) AddRecipe(r model.Recipe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[r.Slug]; !ok {
		m.recipeSlugs = append(m.recipeSlugs, r.Slug)
	}
	m.recipes[r.Slug] = r
}

// ListRecipes implements RecipeSource. Summaries carry no ingredients.
func (m *MockStore) ListRecipes(_ context.Context) ([]model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Recipe, 0, len(m.recipeSlugs))
	for _, slug := range m.recipeSlugs {
		r := m.recipes[slug]
		out = append(out, model.Recipe{ID: r.ID, Slug: r.Slug, Name: r.Name})
	}
	return out, nil
}

// GetRecipe implements RecipeSource.
func (m *MockStore) GetRecipe(_ context.Context, slug string) (model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[slug]
	if !ok {
		return model.Recipe{}, common.ClassifyStatus(fmt.Sprintf("Fetch recipe '%s'", slug), 404)
	}
	return r, nil
}

// ListUnits implements EntityStore.
func (m *MockStore) ListUnits(_ context.Context) ([]model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Unit(nil), m.units...), nil
}

// ListFoods implements EntityStore.
func (m *MockStore) ListFoods(_ context.Context) ([]model.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Food(nil), m.foods...), nil
}

func (m *MockStore) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// CreateUnit implements EntityStore.
func (m *MockStore) CreateUnit(_ context.Context, in model.UnitInput) (model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return model.Unit{}, m.FailCreate
	}
	u := model.Unit{ID: m.newID("unit"), Name: in.Name, Abbreviation: in.Abbreviation, Description: in.Description, Fraction: true}
	m.units = append(m.units, u)
	return u, nil
}

// CreateFood implements EntityStore.
func (m *MockStore) CreateFood(_ context.Context, in model.FoodInput) (model.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return model.Food{}, m.FailCreate
	}
	f := model.Food{ID: m.newID("food"), Name: in.Name, Description: in.Description}
	m.foods = append(m.foods, f)
	return f, nil
}

// AddUnitAlias implements EntityStore.
func (m *MockStore) AddUnitAlias(_ context.Context, unitID, alias string) (model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.units {
		if m.units[i].ID != unitID {
			continue
		}
		if !model.HasAlias(m.units[i].Aliases, alias) {
			m.units[i].Aliases = append(m.units[i].Aliases, model.Alias{Name: alias})
			m.aliasUpdates++
		}
		return m.units[i], nil
	}
	return model.Unit{}, common.ClassifyStatus("Fetch unit "+unitID, 404)
}

// AddFoodAlias implements EntityStore.
func (m *MockStore) AddFoodAlias(_ context.Context, foodID, alias string) (model.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.foods {
		if m.foods[i].ID != foodID {
			continue
		}
		if !model.HasAlias(m.foods[i].Aliases, alias) {
			m.foods[i].Aliases = append(m.foods[i].Aliases, model.Alias{Name: alias})
			m.aliasUpdates++
		}
		return m.foods[i], nil
	}
	return model.Food{}, common.ClassifyStatus("Fetch food "+foodID, 404)
}

// AssignUnit implements IngredientUpdater.
func (m *MockStore) AssignUnit(ctx context.Context, unitID string, ids []string, progress func(done, total int)) *common.BatchResult {
	return m.assign(ctx, "unit", unitID, ids, progress)
}

// AssignFood implements IngredientUpdater.
func (m *MockStore) AssignFood(ctx context.Context, foodID string, ids []string, progress func(done, total int)) *common.BatchResult {
	return m.assign(ctx, "food", foodID, ids, progress)
}

func (m *MockStore) assign(_ context.Context, field, entityID string, ids []string, progress func(done, total int)) *common.BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := common.NewBatchResult(len(ids))
	for i, id := range ids {
		if err, ok := m.FailIngredients[id]; ok {
			result.AddFailure(id, err)
		} else {
			m.assignments[field+":"+id] = entityID
			result.AddSuccess(id)
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return result
}

// Assigned returns the entity an ingredient was linked to on one axis.
func (m *MockStore) Assigned(axis model.Axis, ingredientID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignments[string(axis)+":"+ingredientID]
}

// AliasUpdates counts alias writes that changed an entity.
func (m *MockStore) AliasUpdates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aliasUpdates
}

// UnitNames returns current unit names.
func (m *MockStore) UnitNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.units))
	for i, u := range m.units {
		names[i] = strings.ToLower(u.Name)
	}
	return names
}

// MockDecider returns scripted decisions in order and records what it was asked.
type MockDecider struct {
	Decisions []model.Decision
	Asked     []string
}

// Decide implements Decider. When the script runs out it quits.
func (d *MockDecider) Decide(_ context.Context, p *model.Pattern, axis model.Axis) (model.Decision, error) {
	d.Asked = append(d.Asked, string(axis)+":"+p.Text)
	if len(d.Decisions) == 0 {
		return model.Decision{Action: model.ActionQuit}, nil
	}
	next := d.Decisions[0]
	d.Decisions = d.Decisions[1:]
	return next, nil
}
