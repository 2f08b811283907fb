package vectorstore

import "context"

// VectorStore is a technology-agnostic view of the embedding index that
// context records point into. Records hold opaque document ids only; the
// index owns the embeddings and their lifecycle.
type VectorStore interface {
	// Existing returns the subset of ids present in the index and visible to
	// tenantID. Implementations must not fetch vectors.
	Existing(ctx context.Context, tenantID string, ids []string) ([]string, error)

	// Close releases any resources held by the vector store.
	Close() error
}
