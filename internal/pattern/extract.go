package pattern

import (
	"log/slog"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// UnparsedIngredient is one ingredient that still lacks a unit or food link.
type UnparsedIngredient struct {
	Ingredient   model.Ingredient
	RecipeID     string
	IngredientID string
	Text         string
	MissingUnit  bool
	MissingFood  bool
}

// ExtractUnparsed returns every ingredient that has free text but is missing
// a unit id or a food id, in recipe order.
func ExtractUnparsed(recipes []model.Recipe) []UnparsedIngredient {
	var out []UnparsedIngredient
	for _, recipe := range recipes {
		for _, ing := range recipe.Ingredients {
			if !ing.IsUnparsed() {
				continue
			}
			out = append(out, UnparsedIngredient{
				Ingredient:   ing,
				RecipeID:     recipe.ID,
				IngredientID: ing.Key(),
				Text:         ing.Text(),
				MissingUnit:  !ing.HasUnitID(),
				MissingFood:  !ing.HasFoodID(),
			})
		}
	}
	slog.Debug("Extracted unparsed ingredients", "recipes", len(recipes), "unparsed", len(out))
	return out
}

// GroupPatterns merges unparsed ingredients whose text canonicalizes to the
// same key. The first-seen text is kept for display and patterns are returned
// in order of first appearance.
func GroupPatterns(items []UnparsedIngredient) []*model.Pattern {
	return group(items, func(it UnparsedIngredient) (string, bool) {
		return it.Text, true
	})
}

// GroupByEntityText groups ingredients by the unlinked unit or food name the
// ingredient already carries, restricted to ingredients missing that axis.
func GroupByEntityText(items []UnparsedIngredient, axis model.Axis) []*model.Pattern {
	return group(items, func(it UnparsedIngredient) (string, bool) {
		if axis == model.AxisFood && !it.MissingFood {
			return "", false
		}
		if axis == model.AxisUnit && !it.MissingUnit {
			return "", false
		}
		return it.Ingredient.EntityText(axis), true
	})
}

func group(items []UnparsedIngredient, textOf func(UnparsedIngredient) (string, bool)) []*model.Pattern {
	byKey := make(map[string]*model.Pattern)
	seenIngredients := make(map[string]map[string]bool)
	seenRecipes := make(map[string]map[string]bool)
	var ordered []*model.Pattern

	for _, it := range items {
		text, ok := textOf(it)
		if !ok {
			continue
		}
		key := model.Canonicalize(text)
		if key == "" {
			continue
		}

		p, exists := byKey[key]
		if !exists {
			var err error
			p, err = model.NewPattern(text)
			if err != nil {
				continue
			}
			byKey[key] = p
			seenIngredients[key] = make(map[string]bool)
			seenRecipes[key] = make(map[string]bool)
			ordered = append(ordered, p)
		}

		if it.IngredientID != "" && !seenIngredients[key][it.IngredientID] {
			seenIngredients[key][it.IngredientID] = true
			p.IngredientIDs = append(p.IngredientIDs, it.IngredientID)
		}
		if it.RecipeID != "" && !seenRecipes[key][it.RecipeID] {
			seenRecipes[key][it.RecipeID] = true
			p.RecipeIDs = append(p.RecipeIDs, it.RecipeID)
		}
		p.MissingUnit = p.MissingUnit || it.MissingUnit
		p.MissingFood = p.MissingFood || it.MissingFood
	}

	return ordered
}
