package storyteller

import (
	"context"
	"fmt"
	"strings"

	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/vector"
)

// rulesCollection is the vector-store collection holding rulebook chunks.
const rulesCollection = "rules"

// MemoryRetriever serves rule snippets from the in-process rules index. It
// is the fallback when no vector store is configured.
type MemoryRetriever struct {
	memory *memory.Manager
}

// NewMemoryRetriever wraps a memory manager as a RuleRetriever.
func NewMemoryRetriever(m *memory.Manager) *MemoryRetriever {
	return &MemoryRetriever{memory: m}
}

func (r *MemoryRetriever) Retrieve(ctx context.Context, query string, limit int) ([]RetrieveResult, error) {
	entries := r.memory.SearchRules(ctx, query, limit)
	out := make([]RetrieveResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, RetrieveResult{Content: entry.Content, Score: entry.Score})
	}
	return out, nil
}

// VectorRetriever serves rule snippets from a vector store populated by
// IndexRules. Queries are embedded on the fly.
type VectorRetriever struct {
	provider vector.Provider
	embedder embedder.Embedder
}

// NewVectorRetriever builds a retriever over a vector provider. Both the
// provider and the embedder are required.
func NewVectorRetriever(provider vector.Provider, emb embedder.Embedder) (*VectorRetriever, error) {
	if provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &VectorRetriever{provider: provider, embedder: emb}, nil
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, limit int) ([]RetrieveResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.provider.Search(ctx, rulesCollection, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search rules: %w", err)
	}

	out := make([]RetrieveResult, 0, len(hits))
	for _, hit := range hits {
		content := hit.Content
		if content == "" {
			if c, ok := hit.Metadata["content"].(string); ok {
				content = c
			}
		}
		out = append(out, RetrieveResult{
			Content:  content,
			Score:    hit.Score,
			Metadata: hit.Metadata,
		})
	}
	return out, nil
}

var (
	_ RuleRetriever = (*MemoryRetriever)(nil)
	_ RuleRetriever = (*VectorRetriever)(nil)
)

// IndexRules embeds rule documents paragraph by paragraph into the vector
// store's rules collection. Chunk IDs are derived from source and position,
// so re-ingesting a document overwrites its previous chunks. Returns the
// number of chunks indexed.
func IndexRules(ctx context.Context, provider vector.Provider, emb embedder.Embedder, docs []memory.RuleDocument) (int, error) {
	if provider == nil || emb == nil {
		return 0, fmt.Errorf("vector provider and embedder are required")
	}

	added := 0
	for _, doc := range docs {
		chunks := splitParagraphs(doc.Content)
		if len(chunks) == 0 {
			continue
		}

		vecs, err := emb.EmbedBatch(ctx, chunks)
		if err != nil {
			return added, fmt.Errorf("embed %s: %w", doc.Source, err)
		}
		if len(vecs) != len(chunks) {
			return added, fmt.Errorf("embed %s: got %d vectors for %d chunks", doc.Source, len(vecs), len(chunks))
		}

		for i, chunk := range chunks {
			meta := map[string]any{
				"source":    doc.Source,
				"chunk_idx": i,
				"content":   chunk,
			}
			if doc.RoleName != "" {
				meta["role_name"] = doc.RoleName
			}
			id := fmt.Sprintf("%s#%d", doc.Source, i)
			if err := provider.Upsert(ctx, rulesCollection, id, vecs[i], meta); err != nil {
				return added, fmt.Errorf("index %s chunk %d: %w", doc.Source, i, err)
			}
			added++
		}
	}
	return added, nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
