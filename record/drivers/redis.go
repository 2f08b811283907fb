package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/redis/go-redis/v9"
)

const (
	// Default Redis key prefix for context records
	defaultKeyPrefix = "aicontext:"

	updatedIndex = "index:updated"
	expiresIndex = "index:expires"
)

// RedisStore implements record.Store using Redis with optimistic locking.
//
// Layout under the key prefix:
//   - record:<id>                         JSON document, expires at ExpiresAt
//   - active:<encoded key>                id of the active record, see record.Key.Encode
//   - index:updated / index:expires       sorted sets scored in unix millis, read by sweeps
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a new Redis-based context store.
func NewRedisStore(client *redis.Client, opts ...StoreOption) *RedisStore {
	config := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(config)
	}
	prefix := config.redisKeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    config.now,
	}
}

// Create implements record.Store.
// Claims the active index with WATCH/MULTI/EXEC so concurrent creators for
// the same key cannot both succeed. An index entry whose record has already
// expired is reclaimed.
func (s *RedisStore) Create(ctx context.Context, rec *record.ContextRecord) error {
	activeKey := s.activeKey(rec.Key())

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if rec.IsActive {
			id, err := tx.Get(ctx, activeKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				n, err := tx.Exists(ctx, s.recordKey(id)).Result()
				if err != nil {
					return err
				}
				if n > 0 {
					return record.ErrDuplicateActive
				}
			}
		}

		record.PrepareCreate(rec, s.now())
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			key := s.recordKey(rec.ID)
			pipe.Set(ctx, key, val, 0)
			pipe.PExpireAt(ctx, key, rec.ExpiresAt)
			if rec.IsActive {
				pipe.Set(ctx, activeKey, rec.ID, 0)
				pipe.PExpireAt(ctx, activeKey, rec.ExpiresAt)
			}
			s.index(ctx, pipe, rec)
			return nil
		})
		return err
	}, activeKey)

	if errors.Is(err, redis.TxFailedErr) {
		// Another creator touched the index between WATCH and EXEC.
		return record.ErrDuplicateActive
	}
	return err
}

// Get implements record.Store.
// Returns nil if the record is not found (not an error).
func (s *RedisStore) Get(ctx context.Context, id string) (*record.ContextRecord, error) {
	val, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var rec record.ContextRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetActive implements record.Store.
func (s *RedisStore) GetActive(ctx context.Context, key record.Key) (*record.ContextRecord, error) {
	id, err := s.client.Get(ctx, s.activeKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	// The record must belong to key, not merely be reachable through it.
	if !rec.IsActive || rec.Key() != key {
		return nil, nil
	}
	return rec, nil
}

// Update implements record.Store.
// Implements optimistic locking using Redis WATCH/MULTI/EXEC.
// Verifies Version matches, increments it, updates UpdatedAt, and persists.
// The caller's record only receives the new Version and UpdatedAt once the
// transaction commits.
func (s *RedisStore) Update(ctx context.Context, rec *record.ContextRecord) error {
	key := s.recordKey(rec.ID)
	activeKey := s.activeKey(rec.Key())

	var next record.ContextRecord
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		// Get current value
		val, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return record.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Unmarshal to check version
		var stored record.ContextRecord
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != rec.Version {
			return record.ErrVersionConflict
		}

		release := false
		if !rec.IsActive {
			owner, err := tx.Get(ctx, activeKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			release = owner == rec.ID
		}

		next = *rec
		next.Version++
		next.UpdatedAt = s.now()

		newVal, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		// Execute transaction
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, 0)
			if !next.ExpiresAt.IsZero() {
				pipe.PExpireAt(ctx, key, next.ExpiresAt)
			}
			if release {
				pipe.Del(ctx, activeKey)
			}
			s.index(ctx, pipe, &next)
			return nil
		})
		return err
	}, key, activeKey)

	if errors.Is(err, redis.TxFailedErr) {
		return record.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete implements record.Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.remove(ctx, id, nil)
	if errors.Is(err, redis.TxFailedErr) {
		return record.ErrVersionConflict
	}
	return err
}

// DeleteExpired implements record.Store.
// Candidates come from the sorted-set indexes. Each one is re-checked against
// the policy and removed in the same WATCH/MULTI/EXEC, so a record updated
// in between is kept. Index entries whose record already expired through the
// key TTL are dropped without being counted.
func (s *RedisStore) DeleteExpired(ctx context.Context, policy record.RetentionPolicy) (int, error) {
	candidates := make(map[string]struct{})

	for index, max := range map[string]time.Time{
		updatedIndex: policy.Horizon(),
		expiresIndex: policy.Now,
	} {
		ids, err := s.client.ZRangeByScore(ctx, s.prefix+index, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(max.UnixMilli(), 10),
		}).Result()
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			candidates[id] = struct{}{}
		}
	}

	removed := 0
	for id := range candidates {
		ok, err := s.remove(ctx, id, policy.Expired)
		if errors.Is(err, redis.TxFailedErr) {
			// Written since we looked; the next sweep decides again.
			continue
		}
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Close implements record.Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// remove deletes the document, its active index entry when it owns it, and
// its sweep index entries. With a non-nil expired, a record it rejects is
// left alone. The record and active keys are watched, so a concurrent write
// aborts the removal with redis.TxFailedErr. It reports whether a record
// (not just dangling index entries) was deleted.
func (s *RedisStore) remove(ctx context.Context, id string, expired func(*record.ContextRecord) bool) (bool, error) {
	key := s.recordKey(id)
	deleted := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var rec *record.ContextRecord
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			rec = &record.ContextRecord{}
			if err := json.Unmarshal(val, rec); err != nil {
				return err
			}
		}
		if rec != nil && expired != nil && !expired(rec) {
			return nil
		}

		var activeKey string
		if rec != nil {
			activeKey = s.activeKey(rec.Key())
			if err := tx.Watch(ctx, activeKey).Err(); err != nil {
				return err
			}
			owner, err := tx.Get(ctx, activeKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if owner != id {
				activeKey = ""
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if activeKey != "" {
				pipe.Del(ctx, activeKey)
			}
			pipe.ZRem(ctx, s.prefix+updatedIndex, id)
			pipe.ZRem(ctx, s.prefix+expiresIndex, id)
			return nil
		})
		if err == nil {
			deleted = rec != nil
		}
		return err
	}, key)
	return deleted, err
}

func (s *RedisStore) index(ctx context.Context, pipe redis.Pipeliner, rec *record.ContextRecord) {
	pipe.ZAdd(ctx, s.prefix+updatedIndex, redis.Z{Score: float64(rec.UpdatedAt.UnixMilli()), Member: rec.ID})
	if !rec.ExpiresAt.IsZero() {
		pipe.ZAdd(ctx, s.prefix+expiresIndex, redis.Z{Score: float64(rec.ExpiresAt.UnixMilli()), Member: rec.ID})
	}
}

// recordKey constructs the Redis key for a record ID.
func (s *RedisStore) recordKey(id string) string {
	return s.prefix + "record:" + id
}

// activeKey constructs the Redis key of the active index for key.
func (s *RedisStore) activeKey(key record.Key) string {
	return s.prefix + "active:" + key.Encode()
}

// Compile-time check that RedisStore implements record.Store.
var _ record.Store = (*RedisStore)(nil)
