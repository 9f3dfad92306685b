// Package storage provides the local run history for the parser: runs,
// pattern snapshots for resumed runs, and bulk-update error reports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrNilParameter  = errors.New("parameter cannot be nil")
	ErrInvalidRun    = errors.New("invalid run")
	ErrInvalidReport = errors.New("invalid error report")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRun(run *Run) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidRun)
	}
	if run.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidRun)
	}
	return nil
}

// validatePatterns rejects nil entries and patterns that break their own invariants.
func validatePatterns(patterns []*model.Pattern) error {
	for i, p := range patterns {
		if p == nil {
			return fmt.Errorf("%w: pattern at index %d", ErrNilParameter, i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern at index %d: %w", i, err)
		}
	}
	return nil
}

func validateReport(report common.ErrorReport) error {
	if strings.TrimSpace(report.OperationType) == "" {
		return fmt.Errorf("%w: missing operation type", ErrInvalidReport)
	}
	if strings.TrimSpace(report.PatternText) == "" {
		return fmt.Errorf("%w: missing pattern text", ErrInvalidReport)
	}
	if report.Succeeded+report.Failed > report.TotalItems {
		return fmt.Errorf("%w: %d succeeded and %d failed exceeds %d items",
			ErrInvalidReport, report.Succeeded, report.Failed, report.TotalItems)
	}
	return nil
}
