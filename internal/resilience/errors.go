// Package resilience provides the circuit breaker, retry policy and error
// taxonomy shared by all provider adapters.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError marks an error as safe to retry (timeout, connection
// reset, 408/429/5xx).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitedError reports quota exhaustion together with an estimated
// wait until capacity frees up. Not retried by the adapter; the caller
// decides whether the estimate is worth waiting out.
type RateLimitedError struct {
	Provider      string
	EstimatedWait time.Duration
}

func (e *RateLimitedError) Error() string {
	return "rate limited: " + e.Provider
}

// MalformedError marks an unparseable provider payload. Never retried:
// the same bytes would fail again.
type MalformedError struct {
	Provider string
	Err      error
}

func (e *MalformedError) Error() string {
	return "malformed payload from " + e.Provider + ": " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything in its chain) should be
// retried: an explicit TransientError, a network timeout, a connection
// level failure, or one of the usual transport error strings surfaced by
// HTTP clients.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var me *MalformedError
	if errors.As(err, &me) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
