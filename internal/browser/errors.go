package browser

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the service's failure taxonomy. HTTP status mapping
// happens at the API layer; everything below deals in these values.
var (
	// ErrNotFound covers a missing tab or session. A tab owned by another
	// tenant reports the same error so existence never leaks across
	// tenants.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded reports a session or per-session tab cap.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidInput reports a rejected request before any mutation.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError wraps a failure from the underlying page driver, including
// timeouts. The wrapped message surfaces to the caller.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
