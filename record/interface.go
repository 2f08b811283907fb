package record

import "context"

// Store defines the interface for context record storage operations.
type Store interface {
	// Create persists a new record with Version set to 1. It assigns an ID
	// when empty, stamps CreatedAt/UpdatedAt and defaults ExpiresAt.
	// Returns ErrDuplicateActive if an active record already owns the key.
	// The check is atomic within the backend.
	Create(ctx context.Context, rec *ContextRecord) error

	// Get retrieves a record by ID.
	// Returns nil if the record is not found (not an error).
	Get(ctx context.Context, id string) (*ContextRecord, error)

	// GetActive retrieves the active record for key.
	// Returns nil if there is none (not an error).
	GetActive(ctx context.Context, key Key) (*ContextRecord, error)

	// Update updates an existing record with optimistic locking.
	// Verifies the Version matches the stored version, increments Version,
	// updates the UpdatedAt timestamp, and persists the record.
	// A record written with IsActive=false releases its key.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the record does not exist.
	Update(ctx context.Context, rec *ContextRecord) error

	// Delete deletes a record by ID.
	Delete(ctx context.Context, id string) error

	// DeleteExpired hard-deletes every record the policy marks expired and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, policy RetentionPolicy) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}
