// Package errors defines the sentinel errors shared by the index write and
// read paths, plus the typed StoreError that carries table and row context
// for failed store round trips.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExhausted  = errors.New("document id space exhausted")
	ErrNotFound           = errors.New("not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrDecode             = errors.New("malformed encoded value")
	ErrInvalidSort        = errors.New("invalid sort")
	ErrInvalidInput       = errors.New("invalid input")
	ErrClosed             = errors.New("already closed")
	ErrNotInitialized     = errors.New("not initialized")
	ErrTableExists        = errors.New("table already exists")
	ErrTableNotFound      = errors.New("table not found")
	ErrCodecMismatch      = errors.New("codec does not match index")
	ErrPositionsExhausted = errors.New("no more positions for current document")
)

// StoreError reports a failed round trip against the backing store. It
// unwraps to both ErrStoreUnavailable and the underlying cause.
type StoreError struct {
	Op    string
	Table string
	Row   []byte
	Err   error
}

func (e *StoreError) Error() string {
	if len(e.Row) == 0 {
		return fmt.Sprintf("store %s on table %q: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("store %s on table %q row %q: %v", e.Op, e.Table, e.Row, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// Store wraps err as a StoreError unless it is nil or already a
// not-found/closed condition, which callers branch on directly.
func Store(op, table string, row []byte, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) || errors.Is(err, ErrTableNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Table: table, Row: append([]byte(nil), row...), Err: err}
}

// Permanent reports whether err can never succeed on retry: capacity
// exhaustion, decode failures and usage errors.
func Permanent(err error) bool {
	return errors.Is(err, ErrCapacityExhausted) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrInvalidSort) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrCodecMismatch)
}

// Retryable reports whether a higher-level caller may retry the operation
// that produced err: only store round-trip failures that are not permanent.
func Retryable(err error) bool {
	if err == nil || Permanent(err) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable)
}

// Is, As and Join re-export the standard helpers so callers can import a
// single errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
