package drivers

import (
	"time"

	"github.com/redis/go-redis/v9"
	supabasego "github.com/supabase-community/supabase-go"
)

// StoreOption is a functional option for configuring a context store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for context stores.
type storeConfig struct {
	redisClient    *redis.Client
	redisKeyPrefix string
	supabaseClient *supabasego.Client
	supabaseTable  string
	now            func() time.Time
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisKeyPrefix namespaces every Redis key written by the store.
func WithRedisKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.redisKeyPrefix = prefix
	}
}

// WithSupabaseClient sets the client for the Supabase store.
func WithSupabaseClient(client *supabasego.Client) StoreOption {
	return func(c *storeConfig) {
		c.supabaseClient = client
	}
}

// WithSupabaseTable overrides the table holding context records.
func WithSupabaseTable(table string) StoreOption {
	return func(c *storeConfig) {
		c.supabaseTable = table
	}
}

// WithClock replaces time.Now for timestamps written by the store.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		c.now = now
	}
}
