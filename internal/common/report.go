package common

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrorReport is an exportable summary of a bulk operation's failures.
type ErrorReport struct {
	Timestamp     time.Time     `json:"timestamp"`
	OperationType string        `json:"operation_type"`
	PatternText   string        `json:"pattern_text"`
	Errors        []ItemFailure `json:"errors"`
	TotalItems    int           `json:"total_ingredients"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	TotalRetries  int           `json:"total_retries"`
}

// NewErrorReport builds a report from a finished bulk operation.
func NewErrorReport(result *BatchResult, operationType, patternText string) ErrorReport {
	result.mu.Lock()
	defer result.mu.Unlock()

	errs := make([]ItemFailure, len(result.Failed))
	copy(errs, result.Failed)

	report := ErrorReport{
		Timestamp:     time.Now().UTC(),
		OperationType: operationType,
		PatternText:   patternText,
		TotalItems:    result.Total,
		Succeeded:     len(result.Successful),
		Failed:        len(result.Failed),
		TotalRetries:  result.Retries,
		Errors:        errs,
	}

	slog.Info("Generated error report",
		"operation", operationType,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	return report
}

// ExportErrorReport writes the report as indented JSON to path.
func ExportErrorReport(report ErrorReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write error report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move error report into place: %w", err)
	}

	slog.Info("Exported error report", "path", path)
	return nil
}
