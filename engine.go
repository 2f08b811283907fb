// Package aicontext is the per-session AI context engine. It keeps one
// active ContextRecord per (tenant, context type, session), accumulates the
// conversation, merges extracted business context and serves bounded
// projections to generation chains. Retention is handled by Sweeper.
//
// Mutations on the same key are serialised in-process and re-read the
// stored record under the lock; the store's optimistic version check
// rejects writers in other processes that raced with us.
package aicontext

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/creastat/aicontext/vectorstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Engine implements the context operations on top of a record.Store.
type Engine struct {
	store   record.Store
	vectors vectorstore.VectorStore
	log     logrus.FieldLogger
	now     func() time.Time

	locks   *keyLock
	creates singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithClock replaces time.Now for message, pattern and sentiment timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithVectorStore makes LinkVectorDocuments reject ids unknown to the index.
func WithVectorStore(vs vectorstore.VectorStore) Option {
	return func(e *Engine) {
		e.vectors = vs
	}
}

// New creates an Engine over store.
func New(store record.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   logrus.StandardLogger(),
		now:   time.Now,
		locks: newKeyLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveOrCreate returns the active record for the key, creating and
// persisting an empty one when none exists. Concurrent callers in this
// process share one lookup; across processes the store's uniqueness
// constraint decides the winner and losers re-read it.
func (e *Engine) ResolveOrCreate(ctx context.Context, tenantID string, contextType record.ContextType, sessionID string) (*record.ContextRecord, error) {
	key := record.Key{TenantID: tenantID, ContextType: contextType, SessionID: sessionID}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// The lookup is shared, so one caller giving up must not fail the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.creates.Do(key.Encode(), func() (any, error) {
		return e.resolve(shared, key)
	})
	if err != nil {
		return nil, err
	}
	// The result is shared between singleflight callers.
	return v.(*record.ContextRecord).Clone(), nil
}

func (e *Engine) resolve(ctx context.Context, key record.Key) (*record.ContextRecord, error) {
	rec, err := e.store.GetActive(ctx, key)
	if err != nil {
		return nil, storageError("resolve", err)
	}
	if rec != nil {
		return rec, nil
	}

	rec = record.New(key)
	err = e.store.Create(ctx, rec)
	if errors.Is(err, record.ErrDuplicateActive) {
		e.fields(rec).Debug("context record created concurrently, using winner")
		winner, err := e.store.GetActive(ctx, key)
		if err != nil {
			return nil, storageError("resolve", err)
		}
		if winner == nil {
			return nil, storageError("resolve", record.ErrDuplicateActive)
		}
		return winner, nil
	}
	if err != nil {
		return nil, storageError("create", err)
	}

	e.fields(rec).Debug("created context record")
	return rec, nil
}

// AppendMessage adds a message stamped with the server time, bumps the
// interaction counters and keeps the newest record.MaxHistory messages.
func (e *Engine) AppendMessage(ctx context.Context, rec *record.ContextRecord, role record.Role, content string, metadata record.MessageMetadata) (*record.ContextRecord, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Value: string(role), Reason: "must be user, assistant or system"}
	}

	return e.mutate(ctx, rec, "append message", func(r *record.ContextRecord) bool {
		now := e.now()
		r.ConversationHistory = AddMessageToHistory(r.ConversationHistory, role, content, metadata, now)
		r.Performance.TotalInteractions++
		r.Performance.LastInteraction = now
		return true
	})
}

// MergeBusinessContext folds a delta into the business context. An empty
// delta returns the stored record without writing.
func (e *Engine) MergeBusinessContext(ctx context.Context, rec *record.ContextRecord, delta Delta) (*record.ContextRecord, error) {
	return e.mutate(ctx, rec, "merge business context", func(r *record.ContextRecord) bool {
		return mergeBusinessContext(&r.BusinessContext, delta, e.now())
	})
}

// StateDelta updates the contextual state. Zero fields are left unchanged.
type StateDelta struct {
	CurrentIntent string
	Entities      map[string]record.Value
	Mood          record.Mood
	Complexity    record.Complexity
}

// UpdateContextualState sets intent, mood and complexity and merges
// entities. A changed intent pushes the previous one onto PreviousIntents.
func (e *Engine) UpdateContextualState(ctx context.Context, rec *record.ContextRecord, delta StateDelta) (*record.ContextRecord, error) {
	if !delta.Mood.Valid() {
		return nil, &ValidationError{Field: "mood", Value: string(delta.Mood), Reason: "is not a known mood"}
	}
	if !delta.Complexity.Valid() {
		return nil, &ValidationError{Field: "complexity", Value: string(delta.Complexity), Reason: "is not a known complexity"}
	}

	return e.mutate(ctx, rec, "update contextual state", func(r *record.ContextRecord) bool {
		cs := &r.ContextualState
		changed := false

		if delta.CurrentIntent != "" && delta.CurrentIntent != cs.CurrentIntent {
			if cs.CurrentIntent != "" {
				cs.PreviousIntents = append(cs.PreviousIntents, cs.CurrentIntent)
				if n := len(cs.PreviousIntents); n > record.MaxPreviousIntents {
					cs.PreviousIntents = cs.PreviousIntents[n-record.MaxPreviousIntents:]
				}
			}
			cs.CurrentIntent = delta.CurrentIntent
			changed = true
		}
		if len(delta.Entities) > 0 {
			if cs.Entities == nil {
				cs.Entities = make(map[string]record.Value, len(delta.Entities))
			}
			for k, v := range delta.Entities {
				cs.Entities[k] = v.Clone()
			}
			changed = true
		}
		if delta.Mood != "" && delta.Mood != cs.Mood {
			cs.Mood = delta.Mood
			changed = true
		}
		if delta.Complexity != "" && delta.Complexity != cs.Complexity {
			cs.Complexity = delta.Complexity
			changed = true
		}
		return changed
	})
}

// LinkVectorDocuments adds opaque vector index references to the record.
// With a vector store configured, ids the index does not know for the
// record's tenant are rejected and nothing is linked.
func (e *Engine) LinkVectorDocuments(ctx context.Context, rec *record.ContextRecord, ids ...string) (*record.ContextRecord, error) {
	var wanted []string
	for _, id := range ids {
		if id != "" && !slices.Contains(wanted, id) {
			wanted = append(wanted, id)
		}
	}

	if e.vectors != nil && len(wanted) > 0 && rec != nil {
		found, err := e.vectors.Existing(ctx, rec.TenantID, wanted)
		if err != nil {
			return nil, storageError("vector lookup", err)
		}
		var missing []string
		for _, id := range wanted {
			if !slices.Contains(found, id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil, &ValidationError{Field: "vectorDocumentIds", Value: strings.Join(missing, ","), Reason: "not found in vector index"}
		}
	}

	return e.mutate(ctx, rec, "link vector documents", func(r *record.ContextRecord) bool {
		changed := false
		for _, id := range wanted {
			if !slices.Contains(r.VectorDocumentIDs, id) {
				r.VectorDocumentIDs = append(r.VectorDocumentIDs, id)
				changed = true
			}
		}
		return changed
	})
}

// Deactivate moves the record to Inactive. The key becomes free for a new
// record and the sweeper removes this one after the inactive window.
func (e *Engine) Deactivate(ctx context.Context, rec *record.ContextRecord) (*record.ContextRecord, error) {
	return e.mutate(ctx, rec, "deactivate", func(r *record.ContextRecord) bool {
		if !r.IsActive {
			return false
		}
		r.IsActive = false
		return true
	})
}

// ProjectForGeneration returns the payload for the next generation call of
// the key. It never creates a record: a key without an active record yields
// ErrNotFound.
func (e *Engine) ProjectForGeneration(ctx context.Context, key record.Key, maxMessages int, opts ...ProjectionOption) (ContextPayload, error) {
	if err := validateKey(key); err != nil {
		return ContextPayload{}, err
	}

	rec, err := e.store.GetActive(ctx, key)
	if err != nil {
		return ContextPayload{}, storageError("project", err)
	}
	if rec == nil {
		return ContextPayload{}, notFound(key.String())
	}
	return Project(rec, maxMessages, opts...), nil
}

// mutate runs fn on a fresh copy of the stored record while holding the
// key's lock and persists it when fn reports a change. The caller's record
// is only used for identity.
func (e *Engine) mutate(ctx context.Context, rec *record.ContextRecord, op string, fn func(*record.ContextRecord) bool) (*record.ContextRecord, error) {
	if rec == nil || rec.ID == "" {
		return nil, &ValidationError{Field: "record", Reason: "is required"}
	}
	if err := validateKey(rec.Key()); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(rec.Key())
	defer unlock()

	current, err := e.store.Get(ctx, rec.ID)
	if err != nil {
		return nil, storageError(op, err)
	}
	// The id must still belong to the key we locked.
	if current == nil || current.Key() != rec.Key() {
		return nil, notFound(rec.ID)
	}

	if !fn(current) {
		return current, nil
	}
	if err := e.store.Update(ctx, current); err != nil {
		if errors.Is(err, record.ErrVersionConflict) {
			e.fields(current).WithField("op", op).Warn("context record changed by another writer")
		}
		return nil, storageError(op, err)
	}
	return current, nil
}

func (e *Engine) fields(rec *record.ContextRecord) logrus.FieldLogger {
	return e.log.WithFields(logrus.Fields{
		"tenant_id":    rec.TenantID,
		"context_type": rec.ContextType,
		"session_id":   rec.SessionID,
		"record_id":    rec.ID,
	})
}
