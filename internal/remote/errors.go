package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("remote: not found")

// ValidationError means the backend rejected a write because of a constraint
// violation. Never retried.
type ValidationError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote: %s rejected: %s", e.Op, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError means the backend or network failed with no indication of
// whether the write applied. Reads may be retried; writes must not be,
// re-issuing a write of unknown outcome risks duplicated side effects.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("remote: %s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError means the operation exceeded its wall-clock budget. Treated as
// transient for retry purposes but kept distinct for diagnosis.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remote: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// classify maps a raw driver error onto the gateway taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 22 = data exception, 23 = integrity constraint violation.
		if cls := pqErr.Code.Class(); cls == "22" || cls == "23" {
			return &ValidationError{Op: op, Detail: pqErr.Message, Err: err}
		}
	}
	return &TransientError{Op: op, Err: err}
}

// retryable reports whether a read may be re-issued after this error.
func retryable(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
