// Package resilience provides provider error classification and retry
// support for the external search and LLM calls the pipeline depends on.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ProviderError is a failure from an external provider call, classified for
// circuit-breaker bookkeeping. Fatal errors (quota exhaustion, auth,
// sustained rate limiting) count toward opening the provider's circuit;
// transient errors degrade gracefully without affecting it.
type ProviderError struct {
	Provider string
	Status   int
	Fatal    bool
	Err      error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, kind, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies an HTTP-level provider failure. Quota, auth,
// and rate-limit statuses are fatal; everything else is transient.
func NewProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Status:   status,
		Fatal:    isFatalStatus(status),
		Err:      err,
	}
}

func isFatalStatus(status int) bool {
	switch status {
	case 401, 402, 403, 429:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error chain contains a fatal ProviderError.
func IsFatal(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Fatal
}

// ProviderOf returns the provider name attached to the error chain, or "".
func ProviderOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Provider
	}
	return ""
}

// IsTransient reports whether an error is safe to retry: a non-fatal
// ProviderError, a network timeout, or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Fatal
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

	// String heuristics for errors wrapped by HTTP clients.
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

// IsTransientHTTPStatus reports whether an HTTP status indicates a
// server-side issue safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
