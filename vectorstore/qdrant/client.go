package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/creastat/aicontext/vectorstore"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g., "https://example.qdrant.io:6334").
	URL string

	// CollectionName is the collection holding the referenced documents.
	CollectionName string

	// APIKey is optional API key for authentication.
	APIKey string

	// TenantField is the payload key carrying the owning tenant. When empty
	// ids are checked without tenant scoping.
	TenantField string
}

// Client implements vectorstore.VectorStore for Qdrant.
type Client struct {
	client         *qdrant.Client
	collectionName string
	tenantField    string
}

// New creates a new Qdrant client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}

	host, port, useTLS, err := parseAddress(cfg.URL)
	if err != nil {
		return nil, err
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
		tenantField:    cfg.TenantField,
	}, nil
}

// Existing implements vectorstore.VectorStore with a scroll over the
// requested point ids. Payloads and vectors are not returned.
func (c *Client) Existing(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	// Qdrant reports canonical ids; map them back to the caller's spelling.
	requested := make(map[string]string, len(ids))
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		if pid := pointID(id); pid != nil {
			requested[formatPointID(pid)] = id
			pointIDs = append(pointIDs, pid)
		}
	}
	if len(pointIDs) == 0 {
		return nil, nil
	}

	limit := uint32(len(pointIDs))
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collectionName,
		Filter:         buildFilter(pointIDs, c.tenantField, tenantID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant lookup failed: %w", err)
	}

	found := make([]string, 0, len(points))
	for _, point := range points {
		if id, ok := requested[formatPointID(point.GetId())]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// Close implements vectorstore.VectorStore.
func (c *Client) Close() error {
	return c.client.Close()
}

// parseAddress splits a Qdrant URL into host, gRPC port and TLS flag.
func parseAddress(raw string) (string, int, bool, error) {
	parsedURL := raw
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}

	u, err := url.Parse(parsedURL)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := 6334 // default gRPC port
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}

	return u.Hostname(), port, u.Scheme == "https", nil
}

// buildFilter restricts a scroll to ids and, when configured, to the tenant.
func buildFilter(ids []*qdrant.PointId, tenantField, tenantID string) *qdrant.Filter {
	conditions := []*qdrant.Condition{{
		ConditionOneOf: &qdrant.Condition_HasId{
			HasId: &qdrant.HasIdCondition{HasId: ids},
		},
	}}

	if tenantField != "" {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   tenantField,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: tenantID}},
				},
			},
		})
	}

	return &qdrant.Filter{Must: conditions}
}

// pointID converts an opaque reference into a Qdrant id. Qdrant accepts
// unsigned integers and UUIDs only; anything else cannot exist in the index
// and yields nil.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(u.String())
	}
	return nil
}

// formatPointID renders a Qdrant id the way pointID parses it.
func formatPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// Compile-time check that Client implements VectorStore.
var _ vectorstore.VectorStore = (*Client)(nil)
