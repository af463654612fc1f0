package pool

import (
	"errors"
	"fmt"

	"rwsplit/internal/routing"
)

var (
	// ErrConfiguration matches every ConfigurationError.
	ErrConfiguration = errors.New("pool configuration error")
	// ErrUnavailable matches every UnavailableError.
	ErrUnavailable = errors.New("pool unavailable")

	errMarkedDown = errors.New("marked down by health check")
)

// ConfigurationError is fatal at startup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnavailableError reports a failed or timed out acquisition. It is
// retryable; the registry only recovers from it locally when the fallback
// policy allows.
type UnavailableError struct {
	Role     routing.Role
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s pool unavailable (%s): %v", e.Role, e.Endpoint, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }

// Retryable always reports true.
func (e *UnavailableError) Retryable() bool { return true }

// IsRetryable reports whether err, or anything it wraps, is retryable.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
