package engine

import (
	"fmt"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Filter chooses which patterns a resumed run parses.
type Filter string

// Parse filters.
const (
	FilterPending          Filter = "pending"
	FilterPendingUnmatched Filter = "pending_unmatched"
	FilterAll              Filter = "all"
)

// ParseFilter validates a filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterPending, FilterPendingUnmatched, FilterAll:
		return f, nil
	case "":
		return FilterAll, nil
	default:
		return "", fmt.Errorf("unknown filter %q (valid: pending, pending_unmatched, all)", s)
	}
}

// SelectOptions controls SelectIndices.
type SelectOptions struct {
	Filter   Filter
	Scope    Scope
	Limit    int
	FirstRun bool
}

// SelectIndices returns the indices to hand to ParseBatch, in order.
// A first run selects everything. Later runs apply the filter to the axes in
// scope. Limit caps the result; zero or negative means no cap.
func SelectIndices(patterns []*model.Pattern, opts SelectOptions) []int {
	scope := opts.Scope
	if scope == "" {
		scope = ScopeBoth
	}

	var indices []int
	for i, p := range patterns {
		if p == nil {
			continue
		}
		if opts.FirstRun || selected(p, scope, opts.Filter) {
			indices = append(indices, i)
		}
		if opts.Limit > 0 && len(indices) == opts.Limit {
			break
		}
	}
	return indices
}

func selected(p *model.Pattern, scope Scope, filter Filter) bool {
	for _, axis := range scope.Axes() {
		switch status := p.Status(axis); filter {
		case FilterPending:
			if status == model.StatusPending {
				return true
			}
		case FilterPendingUnmatched:
			if status == model.StatusPending || status == model.StatusUnmatched || status == model.StatusError {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// FirstUnparsed returns the index of the first pattern with a pending axis in scope, or -1.
func FirstUnparsed(patterns []*model.Pattern, scope Scope) int {
	for i, p := range patterns {
		if p != nil && selected(p, scope, FilterPending) {
			return i
		}
	}
	return -1
}
