package aicontext

import (
	"fmt"

	"github.com/creastat/aicontext/record"
)

// ErrNotFound is returned when an operation targets a record that does not
// exist or, for projections, a key without an active record. Records are
// never created implicitly on read.
var ErrNotFound = record.ErrNotFound

// ValidationError rejects a call before anything is read or written.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// StorageError wraps a failure of the record store. Nothing from the failed
// call is committed. Unwrap exposes the driver error, e.g.
// record.ErrVersionConflict.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "context store " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(id string) error {
	return fmt.Errorf("context record %s: %w", id, ErrNotFound)
}

func validateKey(key record.Key) error {
	if key.TenantID == "" {
		return &ValidationError{Field: "tenantId", Reason: "is required"}
	}
	if !key.ContextType.Valid() {
		return &ValidationError{Field: "contextType", Value: string(key.ContextType), Reason: "is not a known context type"}
	}
	if key.SessionID == "" {
		return &ValidationError{Field: "sessionId", Reason: "is required"}
	}
	return nil
}
