package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name         string
		wantCategory ErrorCategory
		status       int
		wantKind     ErrorKind
	}{
		{name: "internal server error", status: 500, wantKind: KindTransient, wantCategory: CategoryServer},
		{name: "bad gateway", status: 502, wantKind: KindTransient, wantCategory: CategoryServer},
		{name: "service unavailable", status: 503, wantKind: KindTransient, wantCategory: CategoryServer},
		{name: "too many requests", status: 429, wantKind: KindTransient, wantCategory: CategoryRateLimit},
		{name: "unauthorized", status: 401, wantKind: KindPermanent, wantCategory: CategoryAuth},
		{name: "forbidden", status: 403, wantKind: KindPermanent, wantCategory: CategoryAuth},
		{name: "not found", status: 404, wantKind: KindPermanent, wantCategory: CategoryClient},
		{name: "bad request", status: 400, wantKind: KindPermanent, wantCategory: CategoryClient},
		{name: "unexpected redirect", status: 302, wantKind: KindPermanent, wantCategory: CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus("fetch units", tt.status)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantKind == KindTransient, err.Retryable())
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ClassifyStatus("create unit", 429))
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrPermanent)

	err = ClassifyStatus("get food", 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrPermanent)

	assert.ErrorIs(t, ClassifyStatus("list", 401), ErrUnauthorized)
	assert.ErrorIs(t, ClassifyStatus("list", 403), ErrForbidden)
}

func TestClassifyError(t *testing.T) {
	t.Run("api error passes through", func(t *testing.T) {
		orig := ClassifyStatus("op", 500)
		got := ClassifyError(fmt.Errorf("ctx: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("net error is transient", func(t *testing.T) {
		got := ClassifyError(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
		assert.Equal(t, KindTransient, got.Kind)
		assert.Equal(t, CategoryNetwork, got.Category)
		assert.False(t, got.Unclassified)
	})

	t.Run("deadline is transient", func(t *testing.T) {
		got := ClassifyError(context.DeadlineExceeded)
		assert.True(t, got.Retryable())
	})

	t.Run("canceled is permanent", func(t *testing.T) {
		got := ClassifyError(context.Canceled)
		assert.False(t, got.Retryable())
		assert.False(t, got.Unclassified)
	})

	t.Run("unknown is unclassified permanent", func(t *testing.T) {
		got := ClassifyError(errors.New("boom"))
		assert.False(t, got.Retryable())
		assert.True(t, got.Unclassified)
	})

	t.Run("nil", func(t *testing.T) {
		require.Nil(t, ClassifyError(nil))
		assert.False(t, IsRetryable(nil))
	})
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want string
	}{
		{name: "rate limit", err: ClassifyStatus("op", 429), want: "Server busy - waiting before retry..."},
		{name: "server", err: ClassifyStatus("op", 503), want: "Server error - retrying automatically..."},
		{name: "timeout", err: NewNetworkError("op", context.DeadlineExceeded), want: "Network timeout - retrying automatically..."},
		{name: "connection", err: NewNetworkError("op", errors.New("connection refused")), want: "Cannot reach Mealie server - retrying..."},
		{name: "unauthorized", err: ClassifyStatus("op", 401), want: "Authentication failed - check API key in .env file"},
		{name: "forbidden", err: ClassifyStatus("op", 403), want: "Access denied - check API key permissions"},
		{name: "not found", err: ClassifyStatus("op", 404), want: "Resource not found - may have been deleted"},
		{name: "bad request", err: ClassifyStatus("op", 400), want: "Invalid request - please check your input"},
		{name: "other client", err: ClassifyStatus("op", 422), want: "Request failed - please try again"},
		{name: "unclassified", err: errors.New("weird"), want: "An unexpected error occurred - check logs for details"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}

	assert.Empty(t, UserMessage(nil))
}
