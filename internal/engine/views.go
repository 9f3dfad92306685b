package engine

import (
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Views projects one shared pattern slice into a unit list and a food list.
// Both lists hold indices, so a status change is visible through either after Refresh.
type Views struct {
	patterns    []*model.Pattern
	byUnit      []int
	byFood      []int
	hideMatched bool
}

// NewViews builds the projections for patterns.
func NewViews(patterns []*model.Pattern) *Views {
	v := &Views{patterns: patterns}
	v.Refresh()
	return v
}

// SetHideMatched toggles hiding of matched patterns and refreshes.
func (v *Views) SetHideMatched(hide bool) {
	v.hideMatched = hide
	v.Refresh()
}

// Refresh recomputes both projections from current statuses.
func (v *Views) Refresh() {
	v.byUnit = v.project(model.AxisUnit)
	v.byFood = v.project(model.AxisFood)
}

func (v *Views) project(axis model.Axis) []int {
	indices := []int{}
	for i, p := range v.patterns {
		if !relevant(p, axis) {
			continue
		}
		if v.hideMatched && p.Status(axis) == model.StatusMatched {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}

func relevant(p *model.Pattern, axis model.Axis) bool {
	if p == nil {
		return false
	}
	if axis == model.AxisFood {
		return p.MissingFood
	}
	return p.MissingUnit
}

// ByUnit returns indices of patterns missing a unit.
func (v *Views) ByUnit() []int {
	return v.byUnit
}

// ByFood returns indices of patterns missing a food.
func (v *Views) ByFood() []int {
	return v.byFood
}

// Pattern returns the shared pattern at index i.
func (v *Views) Pattern(i int) *model.Pattern {
	return v.patterns[i]
}

// Counts tallies statuses of one axis over every relevant pattern, hidden or not.
func (v *Views) Counts(axis model.Axis) map[model.PatternStatus]int {
	counts := make(map[model.PatternStatus]int, len(model.AllStatuses))
	for _, p := range v.patterns {
		if relevant(p, axis) {
			counts[p.Status(axis)]++
		}
	}
	return counts
}
