package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(pattern string, at time.Time) common.ErrorReport {
	result := common.NewBatchResult(3)
	result.AddSuccess("i-1")
	result.AddFailure("i-2", errors.New("404 not found"))
	result.AddSuccess("i-3")
	result.AddRetries(2)
	report := common.NewErrorReport(result, "create_unit", pattern)
	report.Timestamp = at
	return report
}

func TestSaveReport_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveReport(ctx, testReport("1 pinch salt", at)))

	reports, err := store.ListReports(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	got := reports[0]
	assert.Equal(t, "create_unit", got.OperationType)
	assert.Equal(t, "1 pinch salt", got.PatternText)
	assert.Equal(t, 3, got.TotalItems)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 2, got.TotalRetries)
	assert.Equal(t, []common.ItemFailure{{ID: "i-2", Error: "404 not found"}}, got.Errors)
	assert.True(t, at.Equal(got.Timestamp))

	byID, err := store.GetReport(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.PatternText, byID.PatternText)
}

func TestListReports_FilterAndOrder(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveReport(ctx, testReport("1 pinch salt", base)))
	require.NoError(t, store.SaveReport(ctx, testReport("2 cups flour", base.Add(time.Minute))))
	require.NoError(t, store.SaveReport(ctx, testReport("1 pinch salt", base.Add(2*time.Minute))))

	all, err := store.ListReports(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))

	salt, err := store.ListReports(ctx, "1 pinch salt", 0)
	require.NoError(t, err)
	assert.Len(t, salt, 2)

	latest, err := store.ListReports(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "1 pinch salt", latest[0].PatternText)
}

func TestSaveReport_Invalid(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		report common.ErrorReport
	}{
		{name: "missing operation", report: common.ErrorReport{PatternText: "x", TotalItems: 1}},
		{name: "missing pattern", report: common.ErrorReport{OperationType: "create_unit", TotalItems: 1}},
		{name: "counts exceed total", report: common.ErrorReport{OperationType: "create_unit", PatternText: "x", TotalItems: 1, Succeeded: 1, Failed: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.SaveReport(ctx, tt.report), ErrInvalidReport)
		})
	}
}

func TestGetReport_NotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetReport(context.Background(), 42)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestRuns(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := NewRun("session-1", "nlp", "both", 4)
	first.StartedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.StartRun(ctx, first))

	second := NewRun("session-1", "brute", "unit", 8)
	second.StartedAt = first.StartedAt.Add(time.Hour)
	require.NoError(t, store.StartRun(ctx, second))

	counts := RunCounts{Total: 10, Matched: 6, Unmatched: 3, Errors: 1}
	require.NoError(t, store.FinishRun(ctx, first.ID, counts, 1500*time.Millisecond))

	got, err := store.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, counts, got.Counts)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, "session-1", got.SessionID)
	require.NotNil(t, got.FinishedAt)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)

	assert.ErrorIs(t, store.FinishRun(ctx, "missing", counts, 0), ErrRunNotFound)
	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.StartRun(ctx, &Run{ID: "x"}), ErrInvalidRun)
}
