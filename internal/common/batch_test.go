package common

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchResult_SuccessRate(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		succeeded int
		failed    int
		want      float64
	}{
		{name: "empty batch", total: 0, want: 0},
		{name: "all succeeded", total: 4, succeeded: 4, want: 100},
		{name: "half", total: 4, succeeded: 2, failed: 2, want: 50},
		{name: "none", total: 3, failed: 3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBatchResult(tt.total)
			for i := 0; i < tt.succeeded; i++ {
				r.AddSuccess("ok")
			}
			for i := 0; i < tt.failed; i++ {
				r.AddFailure("bad", errors.New("nope"))
			}
			assert.InDelta(t, tt.want, r.SuccessRate(), 0.001)
		})
	}
}

func TestBatchResult_RefusesPastTotal(t *testing.T) {
	r := NewBatchResult(2)
	assert.True(t, r.AddSuccess("a"))
	assert.True(t, r.AddFailure("b", nil))
	assert.False(t, r.AddSuccess("c"))
	assert.False(t, r.AddFailure("d", errors.New("x")))

	assert.Len(t, r.Successful, 1)
	require.Len(t, r.Failed, 1)
	assert.Equal(t, "unknown error", r.Failed[0].Error)
	assert.True(t, r.HasFailures())
	assert.Equal(t, "1/2 succeeded, 1 failed (50.0%)", r.Summary())
}

func TestErrorReport_Export(t *testing.T) {
	r := NewBatchResult(3)
	r.AddSuccess("ing-1")
	r.AddFailure("ing-2", errors.New("Update ingredient ing-2 failed with status 500"))
	r.AddFailure("ing-3", errors.New("timeout"))
	r.AddRetries(2)

	report := NewErrorReport(r, "unit_assignment", "cup")
	assert.Equal(t, 3, report.TotalItems)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.TotalRetries)
	assert.False(t, report.Timestamp.IsZero())

	path := filepath.Join(t.TempDir(), "reports", "errors.json")
	require.NoError(t, ExportErrorReport(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"operation_type\": \"unit_assignment\"")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "cup", decoded["pattern_text"])
	assert.EqualValues(t, 3, decoded["total_ingredients"])
	errs, ok := decoded["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 2)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
