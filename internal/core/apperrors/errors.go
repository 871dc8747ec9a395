// Package apperrors provides centralized error definitions for the
// application.
//
// Naming conventions:
//   - Exported errors (Err*): for errors callers check with errors.Is
//   - All sentinel errors are variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package apperrors

import "errors"

// Source fetch errors.
var (
	// ErrFetchFailed indicates the disclosure source was unreachable or
	// returned a malformed response. The symbol is skipped for the sweep.
	ErrFetchFailed = errors.New("announcement fetch failed")

	// ErrParseFailed indicates a single record could not be parsed. The
	// record is dropped and the sweep continues.
	ErrParseFailed = errors.New("announcement parse failed")
)

// Store errors.
var (
	// ErrStoreUnavailable indicates the persistence layer is unreachable.
	// Dedup checks fail closed on this error: the recipient is skipped
	// rather than risking a duplicate send.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Dispatch errors.
var (
	// ErrDispatchFailed indicates a channel send failed for one recipient.
	ErrDispatchFailed = errors.New("dispatch failed")
)

// Analyzer errors.
var (
	// ErrAnalyzerUnavailable indicates the summarizer is disabled,
	// unconfigured, or gated by resource pressure.
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

	// ErrCircuitBreakerOpen indicates the analyzer circuit breaker has
	// tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrEmptyResponse indicates the analyzer returned no usable content.
	ErrEmptyResponse = errors.New("empty response")
)

// Deep-link token errors.
var (
	// ErrInvalidToken indicates a malformed or tampered token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
