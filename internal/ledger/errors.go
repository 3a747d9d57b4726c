package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for a key
	ErrNotFound = errors.New("ledger: not found")

	// ErrInvalidInput is the base for every validation failure
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrInsufficientBalance is returned when an append would take a running total below its floor
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrAlreadyReversed is returned when a reversal targets an entry that was already compensated
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")

	// ErrConflict is returned when a conditional write lost to a concurrent one
	ErrConflict = errors.New("ledger: concurrent update")

	// ErrChainBroken is returned when running totals do not follow prior total plus delta
	ErrChainBroken = errors.New("ledger: running total chain broken")

	// ErrInternal marks store failures that are not the caller's fault
	ErrInternal = errors.New("ledger: internal error")
)

// StoreError is a failed store operation. It matches both ErrInternal and the
// underlying driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// Internal wraps a store failure of op.
func Internal(op string, err error) error {
	return StoreError{Op: op, Err: err}
}

// ValidationError carries the offending field of a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...interface{}) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err should be surfaced as a rejected request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
