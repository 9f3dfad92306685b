package model

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Session modes.
const (
	ModeBatch      = "batch"
	ModeSequential = "sequential"
)

// ErrInvalidSession is returned when a decoded session fails validation.
var ErrInvalidSession = errors.New("invalid session state")

// SessionState is the resumable record of a reconciliation run.
// It is only mutated by the goroutine driving the run, never by parse workers.
type SessionState struct {
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"last_updated"`
	CurrentOperation  *BatchOperation   `json:"current_operation"`
	CreatedUnits      map[string]string `json:"created_units"`
	CreatedFoods      map[string]string `json:"created_foods"`
	LinkedUnits       map[string]string `json:"linked_units"`
	LinkedFoods       map[string]string `json:"linked_foods"`
	ID                string            `json:"session_id"`
	Mode              string            `json:"mode"`
	ProcessedPatterns []string          `json:"processed_patterns"`
	SkippedPatterns   []string          `json:"skipped_patterns"`
	ParsingStarted    bool              `json:"parsing_started"`
}

// NewSessionState creates an empty batch-mode session.
func NewSessionState() *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		ID:                uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
		Mode:              ModeBatch,
		ProcessedPatterns: []string{},
		SkippedPatterns:   []string{},
		CreatedUnits:      map[string]string{},
		CreatedFoods:      map[string]string{},
		LinkedUnits:       map[string]string{},
		LinkedFoods:       map[string]string{},
	}
}

// Touch bumps the last-updated timestamp.
func (s *SessionState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// MarkProcessed records a completed pattern once.
func (s *SessionState) MarkProcessed(text string) {
	if contains(s.ProcessedPatterns, text) {
		return
	}
	s.ProcessedPatterns = append(s.ProcessedPatterns, text)
	s.Touch()
	slog.Info("Marked pattern as processed", "pattern", text)
}

// MarkSkipped records a skipped pattern once.
func (s *SessionState) MarkSkipped(text string) {
	if contains(s.SkippedPatterns, text) {
		return
	}
	s.SkippedPatterns = append(s.SkippedPatterns, text)
	s.Touch()
	slog.Info("Marked pattern as skipped", "pattern", text)
}

// IsHandled reports whether the pattern was processed or skipped in this session.
func (s *SessionState) IsHandled(text string) bool {
	return contains(s.ProcessedPatterns, text) || contains(s.SkippedPatterns, text)
}

// Unskip forgets a skipped pattern. It reports whether the pattern was skipped.
func (s *SessionState) Unskip(text string) bool {
	for i, v := range s.SkippedPatterns {
		if v == text {
			s.SkippedPatterns = append(s.SkippedPatterns[:i:i], s.SkippedPatterns[i+1:]...)
			s.Touch()
			slog.Info("Unskipped pattern", "pattern", text)
			return true
		}
	}
	return false
}

// IsSkipped reports whether the pattern was skipped in this session.
func (s *SessionState) IsSkipped(text string) bool {
	return contains(s.SkippedPatterns, text)
}

// RecordCreatedUnit maps a pattern to the unit created for it.
func (s *SessionState) RecordCreatedUnit(text, unitID string) {
	if s.CreatedUnits == nil {
		s.CreatedUnits = map[string]string{}
	}
	s.CreatedUnits[text] = unitID
	s.Touch()
	slog.Info("Recorded created unit", "pattern", text, "unit_id", unitID)
}

// RecordCreatedFood maps a pattern to the food created for it.
func (s *SessionState) RecordCreatedFood(text, foodID string) {
	if s.CreatedFoods == nil {
		s.CreatedFoods = map[string]string{}
	}
	s.CreatedFoods[text] = foodID
	s.Touch()
	slog.Info("Recorded created food", "pattern", text, "food_id", foodID)
}

// RecordLinked maps a pattern axis to the entity its ingredients were linked to.
func (s *SessionState) RecordLinked(axis Axis, text, entityID string) {
	links := &s.LinkedUnits
	if axis == AxisFood {
		links = &s.LinkedFoods
	}
	if *links == nil {
		*links = map[string]string{}
	}
	(*links)[text] = entityID
	s.Touch()
}

// LinkedID returns the entity a pattern axis was linked to in this session, or "".
func (s *SessionState) LinkedID(axis Axis, text string) string {
	if axis == AxisFood {
		return s.LinkedFoods[text]
	}
	return s.LinkedUnits[text]
}

// BeginOperation records an in-flight bulk operation.
func (s *SessionState) BeginOperation(op BatchOperation) {
	s.CurrentOperation = &op
	s.Touch()
}

// EndOperation clears the in-flight operation.
func (s *SessionState) EndOperation() {
	s.CurrentOperation = nil
	s.Touch()
}

// TotalHandled is processed plus skipped.
func (s *SessionState) TotalHandled() int {
	return len(s.ProcessedPatterns) + len(s.SkippedPatterns)
}

// Summary returns a one-line human-readable description.
func (s *SessionState) Summary() string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Session %s: %d processed, %d skipped, %d units created, %d foods created",
		id, len(s.ProcessedPatterns), len(s.SkippedPatterns), len(s.CreatedUnits), len(s.CreatedFoods))
}

// Validate rejects decoded sessions that cannot be resumed.
func (s *SessionState) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidSession)
	}
	if s.Mode != ModeBatch && s.Mode != ModeSequential {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSession, s.Mode)
	}
	if s.CurrentOperation != nil {
		if err := s.CurrentOperation.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSession, err)
		}
	}
	return nil
}

// Normalize replaces nil collections left by older or hand-edited files.
func (s *SessionState) Normalize() {
	if s.ProcessedPatterns == nil {
		s.ProcessedPatterns = []string{}
	}
	if s.SkippedPatterns == nil {
		s.SkippedPatterns = []string{}
	}
	if s.CreatedUnits == nil {
		s.CreatedUnits = map[string]string{}
	}
	if s.CreatedFoods == nil {
		s.CreatedFoods = map[string]string{}
	}
	if s.LinkedUnits == nil {
		s.LinkedUnits = map[string]string{}
	}
	if s.LinkedFoods == nil {
		s.LinkedFoods = map[string]string{}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
