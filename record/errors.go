package record

import "errors"

// Common errors for context store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("context record version conflict")
	ErrNotFound         = errors.New("context record not found")
	ErrDuplicateActive  = errors.New("active context record already exists")
	ErrClosed           = errors.New("context store closed")
)
