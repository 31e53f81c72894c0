package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/types"
)

// searchScanLimit bounds how many recent entries a brute-force similarity
// search loads. SQL backends have no vector index; the scan stays cheap as
// long as eviction spill is the only writer.
const searchScanLimit = 500

// SaveEntry persists one memory entry. The embedding is stored as a JSON
// array so the row stays portable across all three dialects.
func (s *SQLStore) SaveEntry(ctx context.Context, roomID string, entry types.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var embedding string
	if len(entry.Embedding) > 0 {
		b, err := json.Marshal(entry.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embedding = string(b)
	}

	query := s.rebind(`
INSERT INTO memory_entries (id, room_id, entry_type, content, embedding, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, roomID, entry.Type, entry.Content,
		embedding, string(entry.Metadata), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory entry: %w", err)
	}
	return nil
}

// LoadEntries returns the most recent entries for a room, newest first.
func (s *SQLStore) LoadEntries(ctx context.Context, roomID string, limit int) ([]types.MemoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`
SELECT id, entry_type, content, embedding, metadata, created_at
FROM memory_entries
WHERE room_id = ?
ORDER BY created_at DESC
LIMIT ?
`)
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SearchByEmbedding ranks stored entries by cosine similarity against the
// query vector. Entries without embeddings are skipped.
func (s *SQLStore) SearchByEmbedding(ctx context.Context, roomID string, embedding []float32, topK int) ([]types.MemoryEntry, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	entries, err := s.LoadEntries(ctx, roomID, searchScanLimit)
	if err != nil {
		return nil, err
	}

	scored := entries[:0]
	for _, entry := range entries {
		if len(entry.Embedding) == 0 {
			continue
		}
		score := memory.Cosine(embedding, entry.Embedding)
		if score <= 0 {
			continue
		}
		entry.Score = score
		scored = append(scored, entry)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// SaveGameSummary upserts the rolling summary for a room. Update-then-insert
// keeps the statement portable across dialects.
func (s *SQLStore) SaveGameSummary(ctx context.Context, roomID, summary string) error {
	update := s.rebind(`UPDATE game_summaries SET summary = ?, updated_at = ? WHERE room_id = ?`)
	res, err := s.db.ExecContext(ctx, update, summary, time.Now(), roomID)
	if err != nil {
		return fmt.Errorf("failed to update game summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	insert := s.rebind(`INSERT INTO game_summaries (room_id, summary, updated_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert, roomID, summary, time.Now()); err != nil {
		return fmt.Errorf("failed to insert game summary: %w", err)
	}
	return nil
}

// GetGameSummary returns the stored summary, or "" when none exists.
func (s *SQLStore) GetGameSummary(ctx context.Context, roomID string) (string, error) {
	query := s.rebind(`SELECT summary FROM game_summaries WHERE room_id = ?`)
	var summary string
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query game summary: %w", err)
	}
	return summary, nil
}

// SavePlayerModel upserts one player's behavioral profile.
func (s *SQLStore) SavePlayerModel(ctx context.Context, roomID string, model types.PlayerModel) error {
	if model.UserID == "" {
		return fmt.Errorf("player model user id is required")
	}
	if model.LastUpdated.IsZero() {
		model.LastUpdated = time.Now()
	}
	patterns := strings.Join(model.VotingPatterns, ",")

	update := s.rebind(`
UPDATE player_models
SET playstyle = ?, trust_score = ?, deception_score = ?, participation_rate = ?, voting_patterns = ?, last_updated = ?
WHERE room_id = ? AND user_id = ?
`)
	res, err := s.db.ExecContext(ctx, update,
		model.Playstyle, model.TrustScore, model.DeceptionScore,
		model.ParticipationRate, patterns, model.LastUpdated,
		roomID, model.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player model: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	insert := s.rebind(`
INSERT INTO player_models (room_id, user_id, playstyle, trust_score, deception_score, participation_rate, voting_patterns, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	_, err = s.db.ExecContext(ctx, insert,
		roomID, model.UserID, model.Playstyle,
		model.TrustScore, model.DeceptionScore, model.ParticipationRate,
		patterns, model.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert player model: %w", err)
	}
	return nil
}

// GetPlayerModels returns every stored profile for a room keyed by user id.
func (s *SQLStore) GetPlayerModels(ctx context.Context, roomID string) (map[string]types.PlayerModel, error) {
	query := s.rebind(`
SELECT user_id, playstyle, trust_score, deception_score, participation_rate, voting_patterns, last_updated
FROM player_models
WHERE room_id = ?
`)
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player models: %w", err)
	}
	defer rows.Close()

	models := make(map[string]types.PlayerModel)
	for rows.Next() {
		var model types.PlayerModel
		var patterns string
		if err := rows.Scan(
			&model.UserID, &model.Playstyle,
			&model.TrustScore, &model.DeceptionScore, &model.ParticipationRate,
			&patterns, &model.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan player model: %w", err)
		}
		if patterns != "" {
			model.VotingPatterns = strings.Split(patterns, ",")
		}
		models[model.UserID] = model
	}
	return models, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]types.MemoryEntry, error) {
	var entries []types.MemoryEntry
	for rows.Next() {
		var entry types.MemoryEntry
		var embedding, metadata string
		if err := rows.Scan(
			&entry.ID, &entry.Type, &entry.Content,
			&embedding, &metadata, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		if embedding != "" {
			if err := json.Unmarshal([]byte(embedding), &entry.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
			}
		}
		if metadata != "" {
			entry.Metadata = json.RawMessage(metadata)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
