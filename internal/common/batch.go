package common

import (
	"fmt"
	"sync"
)

// ItemFailure records why one item of a bulk operation failed.
type ItemFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult aggregates per-item outcomes of a bulk operation.
// Total is fixed up front. A bulk operation never aborts on an item failure.
type BatchResult struct {
	Successful []string      `json:"successful"`
	Failed     []ItemFailure `json:"failed"`
	Total      int           `json:"total"`
	Retries    int           `json:"retries"`
	mu         sync.Mutex
}

// NewBatchResult creates a result for total items.
func NewBatchResult(total int) *BatchResult {
	return &BatchResult{
		Total:      total,
		Successful: []string{},
		Failed:     []ItemFailure{},
	}
}

// AddSuccess records a successful item. Recording past Total is refused.
func (r *BatchResult) AddSuccess(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full() {
		return false
	}
	r.Successful = append(r.Successful, id)
	return true
}

// AddFailure records a failed item. Recording past Total is refused.
func (r *BatchResult) AddFailure(id string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full() {
		return false
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.Failed = append(r.Failed, ItemFailure{ID: id, Error: msg})
	return true
}

// AddRetries adds to the retry counter.
func (r *BatchResult) AddRetries(n int) {
	r.mu.Lock()
	r.Retries += n
	r.mu.Unlock()
}

func (r *BatchResult) full() bool {
	return r.Total > 0 && len(r.Successful)+len(r.Failed) >= r.Total
}

// SuccessRate is the percentage of Total that succeeded, 0 when Total is 0.
func (r *BatchResult) SuccessRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Successful)) / float64(r.Total) * 100
}

// HasFailures reports whether any item failed.
func (r *BatchResult) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failed) > 0
}

// Summary returns a one-line description.
func (r *BatchResult) Summary() string {
	rate := r.SuccessRate()
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("%d/%d succeeded, %d failed (%.1f%%)",
		len(r.Successful), r.Total, len(r.Failed), rate)
}
