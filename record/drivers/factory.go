package drivers

import (
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/creastat/aicontext/supabase"
)

// StoreType represents the type of context store.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSupabase StoreType = "supabase"
)

// NewStore creates a new record.Store based on the given type.
// Supports "memory", "redis" and "supabase" driver types.
// For Redis, requires WithRedisClient; for Supabase, WithSupabaseClient.
func NewStore(storeType StoreType, opts ...StoreOption) (record.Store, error) {
	config := &storeConfig{now: time.Now}

	// Apply options
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewInMemoryStore(opts...), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, record.ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, opts...), nil

	case StoreTypeSupabase:
		if config.supabaseClient == nil {
			return nil, record.ErrInvalidConfig
		}
		return supabase.NewWithClient(config.supabaseClient, config.supabaseTable, config.now), nil

	default:
		return nil, record.ErrInvalidStoreType
	}
}
