package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/pattern"
	"golang.org/x/sync/errgroup"
)

// LoadOptions controls LoadPatterns.
type LoadOptions struct {
	// OnRecipe is called after each recipe detail fetch. Calls are serialized.
	OnRecipe            func(done, total int)
	Concurrency         int
	SimilarityThreshold float64
}

// LoadResult is the grouped work for a run.
type LoadResult struct {
	// EntityNames groups ingredients missing an axis by the unit or food
	// name they already carry, for reporting.
	EntityNames map[model.Axis][]*model.Pattern
	Patterns    []*model.Pattern
	Failures    []common.ItemFailure
	Recipes     int
}

// LoadPatterns fetches every recipe with its ingredients, groups unparsed
// ingredient text into patterns and links similar ones. A recipe that cannot
// be fetched is recorded as a failure and left out.
func LoadPatterns(ctx context.Context, src RecipeSource, opts LoadOptions) (*LoadResult, error) {
	summaries, err := src.ListRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	recipes := make([]model.Recipe, len(summaries))
	fetched := make([]bool, len(summaries))
	var (
		mu       sync.Mutex
		done     int
		failures []common.ItemFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, summary := range summaries {
		i, summary := i, summary
		g.Go(func() error {
			recipe, err := src.GetRecipe(gctx, summary.Slug)

			mu.Lock()
			defer mu.Unlock()
			done++
			if opts.OnRecipe != nil {
				opts.OnRecipe(done, len(summaries))
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("Failed to fetch recipe", "slug", summary.Slug, "error", err)
				failures = append(failures, common.ItemFailure{ID: summary.Slug, Error: err.Error()})
				return nil
			}
			recipes[i] = recipe
			fetched[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]model.Recipe, 0, len(recipes))
	for i, r := range recipes {
		if fetched[i] {
			kept = append(kept, r)
		}
	}

	unparsed := pattern.ExtractUnparsed(kept)
	patterns := pattern.GroupPatterns(unparsed)
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = pattern.DefaultSimilarityThreshold
	}
	if err := pattern.LinkSimilar(patterns, threshold); err != nil {
		return nil, err
	}

	slog.Info("Loaded patterns",
		"recipes", len(kept),
		"failed_recipes", len(failures),
		"patterns", len(patterns))

	return &LoadResult{
		EntityNames: map[model.Axis][]*model.Pattern{
			model.AxisUnit: pattern.GroupByEntityText(unparsed, model.AxisUnit),
			model.AxisFood: pattern.GroupByEntityText(unparsed, model.AxisFood),
		},
		Patterns: patterns,
		Failures: failures,
		Recipes:  len(kept),
	}, nil
}
