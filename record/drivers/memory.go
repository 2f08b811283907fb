package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/creastat/aicontext/record"
)

// InMemoryStore implements record.Store using in-memory maps with optimistic locking.
// Records are cloned on the way in and out so callers never alias stored state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record.ContextRecord
	active  map[record.Key]string
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory context store.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	config := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(config)
	}
	return &InMemoryStore{
		records: make(map[string]*record.ContextRecord),
		active:  make(map[record.Key]string),
		now:     config.now,
	}
}

// Create implements record.Store.
// The active index is checked and claimed under the same lock.
func (s *InMemoryStore) Create(ctx context.Context, rec *record.ContextRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return record.ErrClosed
	}

	key := rec.Key()
	if rec.IsActive {
		if _, taken := s.active[key]; taken {
			return record.ErrDuplicateActive
		}
	}

	record.PrepareCreate(rec, s.now())
	if _, exists := s.records[rec.ID]; exists {
		return record.ErrDuplicateActive
	}

	s.records[rec.ID] = rec.Clone()
	if rec.IsActive {
		s.active[key] = rec.ID
	}
	return nil
}

// Get implements record.Store.
// Returns nil if the record is not found (not an error).
func (s *InMemoryStore) Get(ctx context.Context, id string) (*record.ContextRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.records == nil {
		return nil, record.ErrClosed
	}
	rec, exists := s.records[id]
	if !exists {
		return nil, nil // Not found
	}
	return rec.Clone(), nil
}

// GetActive implements record.Store.
func (s *InMemoryStore) GetActive(ctx context.Context, key record.Key) (*record.ContextRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.records == nil {
		return nil, record.ErrClosed
	}
	id, exists := s.active[key]
	if !exists {
		return nil, nil
	}
	return s.records[id].Clone(), nil
}

// Update implements record.Store.
// Implements optimistic locking: verifies Version matches, increments it,
// updates UpdatedAt, and persists the record.
func (s *InMemoryStore) Update(ctx context.Context, rec *record.ContextRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return record.ErrClosed
	}
	stored, exists := s.records[rec.ID]
	if !exists {
		return record.ErrNotFound
	}

	// Check version for optimistic locking
	if stored.Version != rec.Version {
		return record.ErrVersionConflict
	}

	rec.Version++
	rec.UpdatedAt = s.now()

	s.records[rec.ID] = rec.Clone()
	if !rec.IsActive && s.active[rec.Key()] == rec.ID {
		delete(s.active, rec.Key())
	}
	return nil
}

// Delete implements record.Store.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(id)
	return nil
}

// DeleteExpired implements record.Store.
func (s *InMemoryStore) DeleteExpired(ctx context.Context, policy record.RetentionPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return 0, record.ErrClosed
	}
	removed := 0
	for id, rec := range s.records {
		if policy.Expired(rec) {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed, nil
}

// Close implements record.Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.active = nil
	return nil
}

func (s *InMemoryStore) deleteLocked(id string) {
	rec, exists := s.records[id]
	if !exists {
		return
	}
	if s.active[rec.Key()] == id {
		delete(s.active, rec.Key())
	}
	delete(s.records, id)
}

// Compile-time check that InMemoryStore implements record.Store.
var _ record.Store = (*InMemoryStore)(nil)
