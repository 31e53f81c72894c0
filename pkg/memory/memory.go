// Package memory maintains the agent's recall: a bounded short-term ring per
// room, a global rules index with hybrid retrieval, and an optional long-term
// store behind an interface.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

// LongTermStore is the durable side of memory. All methods are optional in
// the sense that the manager works without a store configured.
type LongTermStore interface {
	SaveEntry(ctx context.Context, roomID string, entry types.MemoryEntry) error
	LoadEntries(ctx context.Context, roomID string, limit int) ([]types.MemoryEntry, error)
	SearchByEmbedding(ctx context.Context, roomID string, embedding []float32, topK int) ([]types.MemoryEntry, error)
	SaveGameSummary(ctx context.Context, roomID string, summary string) error
	GetGameSummary(ctx context.Context, roomID string) (string, error)
	SavePlayerModel(ctx context.Context, roomID string, model types.PlayerModel) error
	GetPlayerModels(ctx context.Context, roomID string) (map[string]types.PlayerModel, error)
}

// Config bounds the manager.
type Config struct {
	ShortTermCapacity int `yaml:"short_term_capacity"`
	ChunkSizeWords    int `yaml:"chunk_size_words"`
	ChunkOverlapWords int `yaml:"chunk_overlap_words"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.ShortTermCapacity <= 0 {
		c.ShortTermCapacity = 50
	}
	if c.ChunkSizeWords <= 0 {
		c.ChunkSizeWords = 500
	}
	if c.ChunkOverlapWords <= 0 {
		c.ChunkOverlapWords = 50
	}
}

// Manager owns per-room short-term rings, the rules index, and delegates to
// the long-term store when one is configured.
type Manager struct {
	cfg      Config
	embedder embedder.Embedder
	store    LongTermStore
	rules    *rulesIndex

	mu    sync.RWMutex
	rings map[string]*ring

	// Fallback state used when no long-term store is configured.
	fallbackMu     sync.RWMutex
	gameSummaries  map[string]string
	playerProfiles map[string]map[string]types.PlayerModel
}

// NewManager builds a manager. Both embedder and store may be nil; the
// manager degrades to keyword retrieval and in-process summaries.
func NewManager(cfg Config, emb embedder.Embedder, store LongTermStore) *Manager {
	cfg.SetDefaults()
	return &Manager{
		cfg:            cfg,
		embedder:       emb,
		store:          store,
		rules:          newRulesIndex(emb),
		rings:          make(map[string]*ring),
		gameSummaries:  make(map[string]string),
		playerProfiles: make(map[string]map[string]types.PlayerModel),
	}
}

func (m *Manager) ringFor(roomID string) *ring {
	m.mu.RLock()
	r, ok := m.rings[roomID]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rings[roomID]; ok {
		return r
	}
	r = newRing(m.cfg.ShortTermCapacity)
	m.rings[roomID] = r
	return r
}

// Store appends an entry to the room's short-term ring. A missing embedding
// is computed best-effort when an embedder is configured. On overflow the
// evicted entry is spilled to the long-term store fire-and-forget.
func (m *Manager) Store(ctx context.Context, roomID string, entry types.MemoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if m.embedder != nil && len(entry.Embedding) == 0 && entry.Content != "" {
		vec, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			logger.Get().Debug("embedding failed, storing without vector",
				"room_id", roomID, "error", err)
		} else {
			entry.Embedding = vec
		}
	}

	evicted, overflow := m.ringFor(roomID).append(entry)
	if overflow && m.store != nil {
		go func() {
			if err := m.store.SaveEntry(context.Background(), roomID, evicted); err != nil {
				logger.Get().Warn("long-term spill failed",
					"room_id", roomID, "entry_id", evicted.ID, "error", err)
			}
		}()
	}
}

// ShortTerm returns the room's ring contents oldest-first.
func (m *Manager) ShortTerm(roomID string) []types.MemoryEntry {
	return m.ringFor(roomID).snapshot()
}

// RetrieveRelevant merges short-term (recency-decayed), long-term (embedding
// search) and rules-index hits, sorted by score descending and truncated to
// topK. Ties keep merge insertion order.
func (m *Manager) RetrieveRelevant(ctx context.Context, roomID string, query string, topK int) []types.MemoryEntry {
	if topK <= 0 {
		return nil
	}

	var merged []types.MemoryEntry

	// Short-term, newest first, score 1 − 0.1·position clamped at 0.
	shortTerm := m.ringFor(roomID).snapshot()
	for i := len(shortTerm) - 1; i >= 0; i-- {
		position := len(shortTerm) - 1 - i
		score := 1.0 - 0.1*float64(position)
		if score < 0 {
			score = 0
		}
		entry := shortTerm[i]
		entry.Score = score
		merged = append(merged, entry)
	}

	if m.store != nil && m.embedder != nil && query != "" {
		if vec, err := m.embedder.Embed(ctx, query); err != nil {
			logger.Get().Debug("query embedding failed, skipping long-term",
				"room_id", roomID, "error", err)
		} else if hits, err := m.store.SearchByEmbedding(ctx, roomID, vec, topK); err != nil {
			logger.Get().Debug("long-term search failed",
				"room_id", roomID, "error", err)
		} else {
			merged = append(merged, hits...)
		}
	}

	merged = append(merged, m.SearchRules(ctx, query, topK)...)

	sortByScoreStable(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// SearchRules queries the rules index. See rulesIndex for scoring.
func (m *Manager) SearchRules(ctx context.Context, query string, topK int) []types.MemoryEntry {
	return m.rules.search(ctx, query, topK)
}

// IngestRules chunks and indexes rule documents.
func (m *Manager) IngestRules(ctx context.Context, docs []RuleDocument) int {
	return m.rules.ingest(ctx, docs, m.cfg.ChunkSizeWords, m.cfg.ChunkOverlapWords)
}

// RuleCount reports the number of indexed rule chunks.
func (m *Manager) RuleCount() int {
	return m.rules.count()
}

// SaveGameSummary persists the latest recap for a room.
func (m *Manager) SaveGameSummary(ctx context.Context, roomID, summary string) error {
	if m.store != nil {
		return m.store.SaveGameSummary(ctx, roomID, summary)
	}
	m.fallbackMu.Lock()
	m.gameSummaries[roomID] = summary
	m.fallbackMu.Unlock()
	return nil
}

// GetGameSummary returns the latest recap, or "" when none exists.
func (m *Manager) GetGameSummary(ctx context.Context, roomID string) (string, error) {
	if m.store != nil {
		return m.store.GetGameSummary(ctx, roomID)
	}
	m.fallbackMu.RLock()
	defer m.fallbackMu.RUnlock()
	return m.gameSummaries[roomID], nil
}

// SavePlayerModel persists one player's behavioral profile.
func (m *Manager) SavePlayerModel(ctx context.Context, roomID string, model types.PlayerModel) error {
	if m.store != nil {
		return m.store.SavePlayerModel(ctx, roomID, model)
	}
	m.fallbackMu.Lock()
	defer m.fallbackMu.Unlock()
	profiles, ok := m.playerProfiles[roomID]
	if !ok {
		profiles = make(map[string]types.PlayerModel)
		m.playerProfiles[roomID] = profiles
	}
	profiles[model.UserID] = model
	return nil
}

// GetPlayerModels returns all profiles known for a room.
func (m *Manager) GetPlayerModels(ctx context.Context, roomID string) (map[string]types.PlayerModel, error) {
	if m.store != nil {
		return m.store.GetPlayerModels(ctx, roomID)
	}
	m.fallbackMu.RLock()
	defer m.fallbackMu.RUnlock()
	profiles := make(map[string]types.PlayerModel, len(m.playerProfiles[roomID]))
	for id, model := range m.playerProfiles[roomID] {
		profiles[id] = model
	}
	return profiles, nil
}

// sortByScoreStable sorts descending by score. Equal scores keep merge
// insertion order, which is part of the retrieval contract.
func sortByScoreStable(entries []types.MemoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}
