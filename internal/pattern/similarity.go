package pattern

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// DefaultSimilarityThreshold is the ratio at or above which two patterns are linked.
const DefaultSimilarityThreshold = 0.85

// ErrInvalidThreshold is returned for thresholds outside (0, 1].
var ErrInvalidThreshold = errors.New("similarity threshold must be in (0, 1]")

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// SimilarityRatio returns 1 - distance/maxLen. Two empty strings are identical;
// exactly one empty string scores zero.
func SimilarityRatio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1.0
	}
	if la == 0 || lb == 0 {
		return 0.0
	}
	return 1.0 - float64(Levenshtein(a, b))/float64(max(la, lb))
}

// LinkSimilar records, on both sides, every pair of patterns whose canonical
// texts score at least threshold. Links are advisory and patterns are never merged.
// Pairs whose length difference alone rules out the threshold are skipped.
func LinkSimilar(patterns []*model.Pattern, threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}

	keys := make([]string, len(patterns))
	lens := make([]int, len(patterns))
	for i, p := range patterns {
		keys[i] = p.Key()
		lens[i] = len([]rune(keys[i]))
	}

	links := 0
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			longer := max(lens[i], lens[j])
			if float64(abs(lens[i]-lens[j])) > float64(longer)*(1-threshold) {
				continue
			}
			if SimilarityRatio(keys[i], keys[j]) < threshold {
				continue
			}
			addSimilar(patterns[i], patterns[j].Text)
			addSimilar(patterns[j], patterns[i].Text)
			links++
		}
	}

	slog.Debug("Linked similar patterns", "patterns", len(patterns), "links", links, "threshold", threshold)
	return nil
}

// SimilarTo returns the patterns whose text appears in p's similar list.
func SimilarTo(p *model.Pattern, all []*model.Pattern) []*model.Pattern {
	if len(p.SimilarPatterns) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(p.SimilarPatterns))
	for _, s := range p.SimilarPatterns {
		wanted[s] = true
	}
	var out []*model.Pattern
	for _, other := range all {
		if other != p && wanted[other.Text] {
			out = append(out, other)
		}
	}
	return out
}

func addSimilar(p *model.Pattern, text string) {
	for _, s := range p.SimilarPatterns {
		if s == text {
			return
		}
	}
	p.SimilarPatterns = append(p.SimilarPatterns, text)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
