package supabase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/supabase-community/supabase-go"
)

// DefaultTable holds one row per context record. See schema.sql.
const DefaultTable = "ai_contexts"

// Postgres unique_violation, raised by the partial unique index on
// (tenant_id, context_type, session_id) WHERE is_active.
const uniqueViolation = "23505"

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
	Table  string // Default: ai_contexts
}

// Client implements record.Store on a Postgres table exposed through PostgREST.
type Client struct {
	client *supabase.Client
	table  string
	now    func() time.Time
}

// New creates a new Supabase-backed context store
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return NewWithClient(client, cfg.Table, time.Now), nil
}

// NewWithClient wraps an existing client. An empty table selects DefaultTable
// and a nil clock selects time.Now.
func NewWithClient(client *supabase.Client, table string, now func() time.Time) *Client {
	if table == "" {
		table = DefaultTable
	}
	if now == nil {
		now = time.Now
	}
	return &Client{client: client, table: table, now: now}
}

// Create implements record.Store.
// Uniqueness of the active record is enforced by the database; a violation
// is reported as record.ErrDuplicateActive.
func (c *Client) Create(ctx context.Context, rec *record.ContextRecord) error {
	record.PrepareCreate(rec, c.now())

	_, _, err := c.client.From(c.table).
		Insert(rec, false, "", "minimal", "").
		Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return record.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create context record: %w", err)
	}
	return nil
}

// Get implements record.Store.
// Returns nil if the record is not found (not an error).
func (c *Client) Get(ctx context.Context, id string) (*record.ContextRecord, error) {
	var records []record.ContextRecord
	_, err := c.client.From(c.table).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("failed to get context record: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// GetActive implements record.Store.
func (c *Client) GetActive(ctx context.Context, key record.Key) (*record.ContextRecord, error) {
	var records []record.ContextRecord
	_, err := c.client.From(c.table).
		Select("*", "", false).
		Eq("tenant_id", key.TenantID).
		Eq("context_type", string(key.ContextType)).
		Eq("session_id", key.SessionID).
		Eq("is_active", "true").
		ExecuteTo(&records)
	if err != nil {
		return nil, fmt.Errorf("failed to get active context record: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Update implements record.Store.
// The version filter makes the write conditional: zero updated rows means
// either the record is gone or another writer got there first.
func (c *Client) Update(ctx context.Context, rec *record.ContextRecord) error {
	next := *rec
	next.Version++
	next.UpdatedAt = c.now()

	var updated []record.ContextRecord
	_, err := c.client.From(c.table).
		Update(&next, "representation", "").
		Eq("id", rec.ID).
		Eq("version", strconv.FormatInt(rec.Version, 10)).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("failed to update context record: %w", err)
	}

	if len(updated) == 0 {
		stored, err := c.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return record.ErrNotFound
		}
		return record.ErrVersionConflict
	}

	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete implements record.Store.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, _, err := c.client.From(c.table).
		Delete("minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete context record: %w", err)
	}
	return nil
}

// DeleteExpired implements record.Store with a single filtered DELETE.
func (c *Client) DeleteExpired(ctx context.Context, policy record.RetentionPolicy) (int, error) {
	var deleted []struct {
		ID string `json:"id"`
	}
	_, err := c.client.From(c.table).
		Delete("representation", "").
		Or(retentionFilter(policy), "").
		ExecuteTo(&deleted)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired context records: %w", err)
	}
	return len(deleted), nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

// retentionFilter renders the policy as a PostgREST or=() expression.
func retentionFilter(policy record.RetentionPolicy) string {
	return strings.Join([]string{
		"updated_at.lt." + quoteTime(policy.StaleBefore),
		"and(is_active.eq.false,updated_at.lt." + quoteTime(policy.InactiveBefore) + ")",
		"expires_at.lte." + quoteTime(policy.Now),
	}, ",")
}

// quoteTime formats t for a PostgREST filter. Quoting keeps the reserved
// characters of a timestamp out of the or=() grammar.
func quoteTime(t time.Time) string {
	return `"` + t.UTC().Format(time.RFC3339Nano) + `"`
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, uniqueViolation) || strings.Contains(msg, "duplicate key")
}

// Compile-time check that Client implements record.Store
var _ record.Store = (*Client)(nil)
