// Package vector provides embedded vector storage for semantic retrieval.
// Collections hold pre-computed embeddings; the embedder package owns the
// text-to-vector step.
package vector

import "context"

// Result is one similarity-search hit.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Provider stores and searches vectors grouped into named collections.
type Provider interface {
	// Upsert adds or replaces one document with a pre-computed embedding.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK most similar documents.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines similarity with exact-match metadata filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes one document by ID.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Name identifies the provider implementation.
	Name() string

	// Close flushes any pending persistence.
	Close() error
}
