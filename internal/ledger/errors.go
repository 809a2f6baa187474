package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for mutations attempted after Close.
	ErrClosed = errors.New("ledger: closed")
	// ErrInvalidSource is returned when a transaction source is unknown.
	ErrInvalidSource = errors.New("ledger: invalid transaction source")
	// ErrNoAccrualTime is returned by NewLedger when the loaded state has a
	// zero LastAccrual.
	ErrNoAccrualTime = errors.New("ledger: persisted state has no last accrual time")
)

// ValidationError is returned when an input violates a ledger constraint.
// Nothing is mutated when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Message)
}

// PersistenceError is returned when the durable write failed. The in-memory
// state is left exactly as it was before the call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPersistence reports whether err is or wraps a *PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
