package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrDisabled     = fmt.Errorf("disabled")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")

	ErrNoRemoteFound     = fmt.Errorf("no wii remote found")
	ErrNotConnected      = fmt.Errorf("remote not connected")
	ErrAlreadyConnected  = fmt.Errorf("remote already connected")
	ErrRetriesExhausted  = fmt.Errorf("connect retry budget exhausted")
	ErrDevicePathUnknown = fmt.Errorf("device path could not be resolved")
	ErrControllerDown    = fmt.Errorf("bluetooth controller unavailable")
	ErrRegistryWrite     = fmt.Errorf("registry write failed")
	ErrWatcherClosed     = fmt.Errorf("input watcher closed")
)

// DomainError wraps a sentinel error with the operation that produced it.
type DomainError struct {
	Op     string // operation name, e.g. "Manager.Connect"
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// IsRetryable reports whether an operation that failed with err is worth
// retrying. Retry budget exhaustion and bad input are terminal.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRetriesExhausted),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDisabled):
		return false
	}
	return true
}
