package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStaleVersion      = errors.New("stale version")
	ErrConflict          = errors.New("conflict")
	ErrStorageFailure    = errors.New("storage failure")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports malformed or unknown input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InsufficientStockError reports the first key that would go negative.
type InsufficientStockError struct {
	Key       StockKey
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Key, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsRetryable reports whether err is a transient storage problem rather than a domain outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStaleVersion),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}
