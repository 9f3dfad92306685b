// Package model defines the core domain types: recipes, ingredients, patterns and session state.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// PatternStatus is the lifecycle state of one axis (unit or food) of a Pattern.
type PatternStatus string

// Pattern status constants.
const (
	StatusPending   PatternStatus = "pending"
	StatusParsing   PatternStatus = "parsing"
	StatusMatched   PatternStatus = "matched"
	StatusUnmatched PatternStatus = "unmatched"
	StatusQueued    PatternStatus = "queued"
	StatusIgnore    PatternStatus = "ignore"
	StatusError     PatternStatus = "error"
)

// AllStatuses lists every status in display order.
var AllStatuses = []PatternStatus{
	StatusPending,
	StatusParsing,
	StatusMatched,
	StatusUnmatched,
	StatusQueued,
	StatusIgnore,
	StatusError,
}

// Errors returned by pattern state changes.
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrErrorMessageRequired = errors.New("error message required when moving to error status")
	ErrUnknownStatus        = errors.New("unknown pattern status")
)

// transitions is the only source of truth for allowed status changes.
var transitions = map[PatternStatus][]PatternStatus{
	StatusPending:   {StatusParsing},
	StatusParsing:   {StatusMatched, StatusUnmatched, StatusError},
	StatusUnmatched: {StatusQueued, StatusParsing},
	StatusQueued:    {StatusMatched, StatusError, StatusUnmatched},
	StatusError:     {StatusIgnore, StatusParsing},
	StatusMatched:   {},
	StatusIgnore:    {},
}

// Valid reports whether s is a known status.
func (s PatternStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s PatternStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// NextStates returns the statuses reachable from s in one step.
func (s PatternStatus) NextStates() []PatternStatus {
	next := transitions[s]
	out := make([]PatternStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether the table allows s -> to.
func (s PatternStatus) CanTransitionTo(to PatternStatus) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a stored name back into a status.
func ParseStatus(s string) (PatternStatus, error) {
	status := PatternStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// Axis names one of the two independent status tracks of a Pattern.
type Axis string

// Axis constants.
const (
	AxisUnit Axis = "unit"
	AxisFood Axis = "food"
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	Axis    Axis
	From    PatternStatus
	To      PatternStatus
	Allowed []PatternStatus
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		allowed[i] = string(a)
	}
	valid := "none"
	if len(allowed) > 0 {
		valid = strings.Join(allowed, ", ")
	}
	return fmt.Sprintf("invalid %s status transition from %s to %s (valid: %s)", e.Axis, e.From, e.To, valid)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidateTransition returns a *TransitionError if from -> to is not in the table.
func ValidateTransition(axis Axis, from, to PatternStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{Axis: axis, From: from, To: to, Allowed: from.NextStates()}
}
