package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Retry classification sentinels. An *APIError matches these with errors.Is.
var (
	ErrTransient   = errors.New("transient error")
	ErrPermanent   = errors.New("permanent error")
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind tells the retry policy whether an operation may succeed if repeated.
type ErrorKind int

// Error kinds.
const (
	KindPermanent ErrorKind = iota
	KindTransient
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// ErrorCategory groups failures for display and reporting.
type ErrorCategory string

// Error categories.
const (
	CategoryNetwork   ErrorCategory = "network"
	CategoryServer    ErrorCategory = "server"
	CategoryClient    ErrorCategory = "client"
	CategoryAuth      ErrorCategory = "auth"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryUnknown   ErrorCategory = "unknown"
)

// APIError is a classified failure from the recipe manager.
type APIError struct {
	Err        error
	Op         string
	Category   ErrorCategory
	StatusCode int
	Kind       ErrorKind
	// Unclassified is set when the failure did not come from an HTTP status or
	// a known transport error. Such errors are never retried.
	Unclassified bool
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers test the classification with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermanent:
		return e.Kind == KindPermanent
	case ErrRateLimited:
		return e.Category == CategoryRateLimit
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Retryable reports whether the retry policy should try again.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient
}

// ClassifyStatus maps an HTTP status code onto the transient/permanent split.
// 5xx and 429 are transient. Everything else, including unexpected codes, is permanent.
func ClassifyStatus(op string, statusCode int) *APIError {
	e := &APIError{Op: op, StatusCode: statusCode}
	switch {
	case statusCode >= http.StatusInternalServerError:
		e.Kind = KindTransient
		e.Category = CategoryServer
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindTransient
		e.Category = CategoryRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindPermanent
		e.Category = CategoryAuth
	case statusCode >= http.StatusBadRequest:
		e.Kind = KindPermanent
		e.Category = CategoryClient
	default:
		e.Kind = KindPermanent
		e.Category = CategoryUnknown
	}
	return e
}

// NewNetworkError wraps a transport failure as a transient error.
func NewNetworkError(op string, err error) *APIError {
	return &APIError{Op: op, Err: err, Kind: KindTransient, Category: CategoryNetwork}
}

// ClassifyError returns the APIError view of err. Transport errors become
// transient network errors. Anything else is marked unclassified and permanent.
func ClassifyError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.Canceled) {
		return &APIError{Op: "request", Err: err, Kind: KindPermanent, Category: CategoryUnknown}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return NewNetworkError("request", err)
	}

	return &APIError{
		Op:           "request",
		Err:          err,
		Kind:         KindPermanent,
		Category:     CategoryUnknown,
		Unclassified: true,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable()
}

// UserMessage converts a failure into short, actionable text for the terminal.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	apiErr := ClassifyError(err)
	if apiErr.Unclassified {
		return "An unexpected error occurred - check logs for details"
	}

	text := strings.ToLower(apiErr.Error())

	if apiErr.Kind == KindTransient {
		switch {
		case apiErr.Category == CategoryRateLimit:
			return "Server busy - waiting before retry..."
		case strings.Contains(text, "timeout") || errors.Is(err, context.DeadlineExceeded):
			return "Network timeout - retrying automatically..."
		case apiErr.Category == CategoryNetwork:
			return "Cannot reach Mealie server - retrying..."
		default:
			return "Server error - retrying automatically..."
		}
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return "Authentication failed - check API key in .env file"
	case http.StatusForbidden:
		return "Access denied - check API key permissions"
	case http.StatusNotFound:
		return "Resource not found - may have been deleted"
	case http.StatusBadRequest:
		return "Invalid request - please check your input"
	}
	if apiErr.Category == CategoryUnknown && apiErr.StatusCode == 0 {
		return "An unexpected error occurred - check logs for details"
	}
	return "Request failed - please try again"
}
