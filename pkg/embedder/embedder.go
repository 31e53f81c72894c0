// Package embedder produces vector embeddings from text for semantic
// retrieval over game rules and episodic memory.
package embedder

import (
	"context"
)

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	// Embed converts one text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name in use.
	Model() string
}
