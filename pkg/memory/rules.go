package memory

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

// RuleDocument is one source document handed to IngestRules. RoleName is set
// when the document describes a single character's ability.
type RuleDocument struct {
	Source   string `json:"source"`
	RoleName string `json:"role_name,omitempty"`
	Content  string `json:"content"`
}

type ruleChunkMetadata struct {
	Source   string `json:"source"`
	RoleName string `json:"role_name,omitempty"`
	ChunkIdx int    `json:"chunk_idx"`
}

// rulesIndex holds rule chunks in process. Search prefers cosine similarity
// over chunk embeddings and falls back to keyword overlap when no embedder
// is configured.
type rulesIndex struct {
	embedder embedder.Embedder

	mu      sync.RWMutex
	entries []types.MemoryEntry
}

func newRulesIndex(emb embedder.Embedder) *rulesIndex {
	return &rulesIndex{embedder: emb}
}

// ingest chunks each document into overlapping word windows and indexes the
// chunks. Embedding failures are logged and the chunk kept without a vector.
// Returns the number of chunks added.
func (idx *rulesIndex) ingest(ctx context.Context, docs []RuleDocument, chunkSize, overlap int) int {
	added := 0
	for _, doc := range docs {
		chunks := chunkWords(doc.Content, chunkSize, overlap)
		for i, chunk := range chunks {
			entry := types.MemoryEntry{
				ID:        uuid.NewString(),
				Type:      types.MemoryTypeRule,
				Content:   chunk,
				CreatedAt: time.Now(),
			}
			meta, err := json.Marshal(ruleChunkMetadata{
				Source:   doc.Source,
				RoleName: doc.RoleName,
				ChunkIdx: i,
			})
			if err == nil {
				entry.Metadata = meta
			}
			if idx.embedder != nil {
				vec, err := idx.embedder.Embed(ctx, chunk)
				if err != nil {
					logger.Get().Warn("rule chunk embedding failed",
						"source", doc.Source, "chunk_idx", i, "error", err)
				} else {
					entry.Embedding = vec
				}
			}

			idx.mu.Lock()
			idx.entries = append(idx.entries, entry)
			idx.mu.Unlock()
			added++
		}
	}
	return added
}

// search scores every chunk against the query and returns the topK, zero
// scores excluded.
func (idx *rulesIndex) search(ctx context.Context, query string, topK int) []types.MemoryEntry {
	if query == "" || topK <= 0 {
		return nil
	}

	var queryVec []float32
	if idx.embedder != nil {
		vec, err := idx.embedder.Embed(ctx, query)
		if err != nil {
			logger.Get().Debug("rules query embedding failed, using keyword overlap", "error", err)
		} else {
			queryVec = vec
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var scored []types.MemoryEntry
	for _, entry := range idx.entries {
		var score float64
		if queryVec != nil && len(entry.Embedding) > 0 {
			score = Cosine(queryVec, entry.Embedding)
		} else {
			score = keywordOverlap(query, entry.Content)
		}
		if score <= 0 {
			continue
		}
		entry.Score = score
		scored = append(scored, entry)
	}

	sortByScoreStable(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func (idx *rulesIndex) count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// chunkWords splits text into overlapping word windows. The final window may
// be shorter; empty text yields no chunks.
func chunkWords(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	if len(words) <= chunkSize {
		return []string{strings.Join(words, " ")}
	}

	step := chunkSize - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Cosine computes cosine similarity over equal-length vectors. Mismatched
// lengths or a zero-norm vector return 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordOverlap counts distinct lowercased query tokens present in the
// content, normalized by the query token count.
func keywordOverlap(query, content string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}
	haystack := strings.ToLower(content)

	seen := make(map[string]bool, len(tokens))
	matched := 0
	total := 0
	for _, token := range tokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		total++
		if strings.Contains(haystack, token) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
