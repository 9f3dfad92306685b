package pattern

import (
	"sort"
	"strings"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Resolver decides whether a parsed name refers to a known unit or food.
// Matching is exact after trimming and case folding, against entity names only.
type Resolver struct {
	byName   map[string]string
	entities []model.KnownEntity
}

// NewResolver indexes entities by folded name. The first entity wins on duplicates.
func NewResolver(entities []model.KnownEntity) *Resolver {
	r := &Resolver{
		byName:   make(map[string]string, len(entities)),
		entities: entities,
	}
	for _, e := range entities {
		key := fold(e.Name)
		if key == "" || e.ID == "" {
			continue
		}
		if _, exists := r.byName[key]; !exists {
			r.byName[key] = e.ID
		}
	}
	return r
}

// Resolve returns the id of the entity whose name equals name, ignoring case
// and surrounding whitespace.
func (r *Resolver) Resolve(name string) (string, bool) {
	key := fold(name)
	if key == "" {
		return "", false
	}
	id, ok := r.byName[key]
	return id, ok
}

// Contains reports whether name resolves.
func (r *Resolver) Contains(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Len returns the number of indexed entities.
func (r *Resolver) Len() int {
	return len(r.entities)
}

// Lookup returns the entity with the given id.
func (r *Resolver) Lookup(id string) (model.KnownEntity, bool) {
	for _, e := range r.entities {
		if e.ID == id {
			return e, true
		}
	}
	return model.KnownEntity{}, false
}

// Names returns entity names sorted case-insensitively.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.entities))
	for _, e := range r.entities {
		names = append(names, e.Name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

// Suggest returns up to limit entities ordered by similarity to name, for display only.
func (r *Resolver) Suggest(name string, limit int) []model.KnownEntity {
	key := fold(name)
	if key == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		entity model.KnownEntity
		score  float64
	}
	candidates := make([]scored, 0, len(r.entities))
	for _, e := range r.entities {
		best := SimilarityRatio(key, fold(e.Name))
		for _, a := range e.Aliases {
			best = max(best, SimilarityRatio(key, fold(a)))
		}
		if best > 0 {
			candidates = append(candidates, scored{entity: e, score: best})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]model.KnownEntity, 0, min(limit, len(candidates)))
	for i := 0; i < len(candidates) && i < limit; i++ {
		out = append(out, candidates[i].entity)
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
