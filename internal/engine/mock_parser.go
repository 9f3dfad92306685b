package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// MockParser is a test implementation of the Parser interface.
// Results are looked up by exact text; unknown texts return an empty result.
type MockParser struct {
	results map[string]model.ParseResult
	errs    map[string]error
	// Delay is slept inside every call, honoring context cancellation.
	Delay    time.Duration
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

// NewMockParser creates an empty mock parser.
func NewMockParser() *MockParser {
	return &MockParser{
		results: make(map[string]model.ParseResult),
		errs:    make(map[string]error),
	}
}

// SetResult makes text parse into the given unit and food names.
func (m *MockParser) SetResult(text, unit, food string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[text] = model.ParseResult{
		Input:          text,
		UnitName:       unit,
		FoodName:       food,
		UnitConfidence: confidence,
		FoodConfidence: confidence,
	}
}

// SetError makes parsing text fail with err.
func (m *MockParser) SetError(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[text] = err
}

// Parse implements Parser.
func (m *MockParser) Parse(ctx context.Context, texts []string, _ model.ParseMethod) ([]model.ParseResult, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if current <= peak || m.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, strings.Join(texts, "|"))
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ParseResult
	for _, text := range texts {
		if err, ok := m.errs[text]; ok {
			return nil, err
		}
		if r, ok := m.results[text]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Calls returns the texts passed to Parse, in call order.
func (m *MockParser) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// PeakInFlight returns the highest number of concurrent Parse calls observed.
func (m *MockParser) PeakInFlight() int {
	return int(m.peak.Load())
}
