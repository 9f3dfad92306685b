package model

import "strings"

// Recipe is a recipe as returned by the recipe manager.
type Recipe struct {
	ID          string       `json:"id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Ingredients []Ingredient `json:"recipeIngredient"`
}

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Unit         *EntityRef `json:"unit,omitempty"`
	Food         *EntityRef `json:"food,omitempty"`
	ID           string     `json:"id"`
	ReferenceID  string     `json:"referenceId,omitempty"`
	Note         string     `json:"note"`
	OriginalText string     `json:"originalText"`
	Display      string     `json:"display,omitempty"`
	Quantity     float64    `json:"quantity,omitempty"`
}

// EntityRef is a unit or food reference embedded in an ingredient.
// An unlinked reference may carry a name without an id.
type EntityRef struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

// Key returns the identifier used for bulk updates.
func (i Ingredient) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return i.ReferenceID
}

// Text returns the ingredient's free text, preferring the note.
func (i Ingredient) Text() string {
	if t := strings.TrimSpace(i.Note); t != "" {
		return t
	}
	return strings.TrimSpace(i.OriginalText)
}

// HasUnitID reports whether the unit reference is linked.
func (i Ingredient) HasUnitID() bool {
	return i.Unit != nil && i.Unit.ID != ""
}

// HasFoodID reports whether the food reference is linked.
func (i Ingredient) HasFoodID() bool {
	return i.Food != nil && i.Food.ID != ""
}

// IsUnparsed reports whether the ingredient has text but lacks a unit or food link.
func (i Ingredient) IsUnparsed() bool {
	return i.Text() != "" && (!i.HasUnitID() || !i.HasFoodID())
}

// EntityText returns the unlinked name carried by one axis' reference.
// Units fall back to the abbreviation.
func (i Ingredient) EntityText(axis Axis) string {
	if axis == AxisFood {
		if i.Food == nil {
			return ""
		}
		return strings.TrimSpace(i.Food.Name)
	}
	if i.Unit == nil {
		return ""
	}
	if n := strings.TrimSpace(i.Unit.Name); n != "" {
		return n
	}
	return strings.TrimSpace(i.Unit.Abbreviation)
}
