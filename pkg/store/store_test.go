package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenwood/storyteller/pkg/types"
)

func setupMockStore(t *testing.T, dialect string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, dialect)
	require.NoError(t, err)
	return store, mock
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(db, "oracle")
	assert.ErrorContains(t, err, "unsupported dialect")

	_, err = New(nil, "sqlite")
	assert.ErrorContains(t, err, "database connection is required")
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "storyteller.db", cfg.DSN)
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MaxIdle)
	assert.NoError(t, cfg.Validate())

	bad := Config{Driver: "mongo", DSN: "x"}
	assert.ErrorContains(t, bad.Validate(), "unsupported driver")

	noDSN := Config{Driver: "postgres"}
	assert.ErrorContains(t, noDSN.Validate(), "dsn is required")
}

func TestRebind(t *testing.T) {
	pg, _ := setupMockStore(t, "postgres")
	assert.Equal(t, "SELECT $1, $2, $3", pg.rebind("SELECT ?, ?, ?"))

	lite, _ := setupMockStore(t, "sqlite")
	assert.Equal(t, "SELECT ?, ?, ?", lite.rebind("SELECT ?, ?, ?"))
}

func TestSaveRun(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	run := types.AgentRun{
		ID:           "run-1",
		RoomID:       "room-1",
		AgentName:    "orchestrator",
		SeqFrom:      10,
		SeqTo:        14,
		InputDigest:  "aaaaaaaaaaaaaaaa",
		OutputDigest: "bbbbbbbbbbbbbbbb",
		PlanJSON:     json.RawMessage(`{"actions":[]}`),
		Status:       types.RunStatusCompleted,
		LatencyMs:    42,
		CreatedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO agent_runs").
		WithArgs(
			"run-1", "room-1", "orchestrator",
			int64(10), int64(14),
			"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb",
			`{"actions":[]}`, types.RunStatusCompleted,
			int64(42), "",
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRequiresID(t *testing.T) {
	store, _ := setupMockStore(t, "sqlite")
	err := store.SaveRun(context.Background(), types.AgentRun{})
	assert.ErrorContains(t, err, "run id is required")
}

func TestGetRunLoadsToolCalls(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")
	now := time.Now()

	runCols := []string{
		"id", "room_id", "agent_name", "seq_from", "seq_to",
		"input_digest", "output_digest", "plan_json", "status",
		"latency_ms", "error_text", "created_at",
	}
	mock.ExpectQuery("FROM agent_runs").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			"run-1", "room-1", "orchestrator", int64(1), int64(5),
			"digest-in", "digest-out", `{"actions":[]}`, types.RunStatusCompleted,
			int64(10), "", now,
		))

	callCols := []string{
		"id", "run_id", "tool_name", "args", "result",
		"error_text", "duration_ms", "created_at",
	}
	mock.ExpectQuery("FROM tool_calls").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(callCols).AddRow(
			"call-1", "run-1", "send_public_message",
			`{"message":"hi"}`, `{"status":"sent"}`, "", int64(3), now,
		))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", run.RoomID)
	assert.Equal(t, int64(5), run.SeqTo)
	require.Len(t, run.ToolCalls, 1)
	assert.Equal(t, "send_public_message", run.ToolCalls[0].ToolName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")
	mock.ExpectQuery("FROM agent_runs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestListRunsDefaultsLimit(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	runCols := []string{
		"id", "room_id", "agent_name", "seq_from", "seq_to",
		"input_digest", "output_digest", "plan_json", "status",
		"latency_ms", "error_text", "created_at",
	}
	mock.ExpectQuery("FROM agent_runs").
		WithArgs("room-1", 20).
		WillReturnRows(sqlmock.NewRows(runCols))

	runs, err := store.ListRuns(context.Background(), "room-1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToolCall(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("INSERT INTO tool_calls").
		WithArgs(
			"call-1", "run-1", "advance_phase",
			`{"phase":"night"}`, "", "timeout",
			int64(1500), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveToolCall(context.Background(), types.ToolCallAudit{
		ID:         "call-1",
		RunID:      "run-1",
		ToolName:   "advance_phase",
		Args:       json.RawMessage(`{"phase":"night"}`),
		Error:      "timeout",
		DurationMs: 1500,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEntryMarshalsEmbedding(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("INSERT INTO memory_entries").
		WithArgs(
			"e1", "room-1", types.MemoryTypeEvent, "the butler voted yes",
			"[0.1,0.2]", "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveEntry(context.Background(), "room-1", types.MemoryEntry{
		ID:        "e1",
		Type:      types.MemoryTypeEvent,
		Content:   "the butler voted yes",
		Embedding: []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEntryGeneratesID(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("INSERT INTO memory_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveEntry(context.Background(), "room-1", types.MemoryEntry{
		Type:    types.MemoryTypeSummary,
		Content: "day one recap",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByEmbeddingRanksByCosine(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")
	now := time.Now()

	entryCols := []string{"id", "entry_type", "content", "embedding", "metadata", "created_at"}
	mock.ExpectQuery("FROM memory_entries").
		WithArgs("room-1", searchScanLimit).
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("near", types.MemoryTypeEvent, "close match", "[1,0]", "", now).
			AddRow("far", types.MemoryTypeEvent, "weak match", "[0.5,0.8660254]", "", now).
			AddRow("plain", types.MemoryTypeEvent, "no embedding", "", "", now))

	results, err := store.SearchByEmbedding(context.Background(), "room-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "far", results[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByEmbeddingEmptyQuery(t *testing.T) {
	store, _ := setupMockStore(t, "sqlite")
	results, err := store.SearchByEmbedding(context.Background(), "room-1", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchByEmbeddingTruncatesTopK(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")
	now := time.Now()

	entryCols := []string{"id", "entry_type", "content", "embedding", "metadata", "created_at"}
	mock.ExpectQuery("FROM memory_entries").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("a", types.MemoryTypeEvent, "a", "[1,0]", "", now).
			AddRow("b", types.MemoryTypeEvent, "b", "[0.9,0.1]", "", now).
			AddRow("c", types.MemoryTypeEvent, "c", "[0.8,0.2]", "", now))

	results, err := store.SearchByEmbedding(context.Background(), "room-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSaveGameSummaryUpdatesExistingRow(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("UPDATE game_summaries").
		WithArgs("day two recap", sqlmock.AnyArg(), "room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveGameSummary(context.Background(), "room-1", "day two recap"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGameSummaryInsertsWhenMissing(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("UPDATE game_summaries").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO game_summaries").
		WithArgs("room-1", "first recap", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveGameSummary(context.Background(), "room-1", "first recap"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGameSummaryMissingReturnsEmpty(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectQuery("SELECT summary FROM game_summaries").
		WithArgs("room-1").
		WillReturnError(sql.ErrNoRows)

	summary, err := store.GetGameSummary(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestSavePlayerModelUpsert(t *testing.T) {
	store, mock := setupMockStore(t, "postgres")

	mock.ExpectExec("UPDATE player_models").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO player_models").
		WithArgs(
			"room-1", "u1", "aggressive",
			0.5, 0.5, 0.25,
			"votes_yes_often,active_voter", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SavePlayerModel(context.Background(), "room-1", types.PlayerModel{
		UserID:            "u1",
		Playstyle:         "aggressive",
		TrustScore:        0.5,
		DeceptionScore:    0.5,
		ParticipationRate: 0.25,
		VotingPatterns:    []string{"votes_yes_often", "active_voter"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlayerModelRequiresUserID(t *testing.T) {
	store, _ := setupMockStore(t, "sqlite")
	err := store.SavePlayerModel(context.Background(), "room-1", types.PlayerModel{})
	assert.ErrorContains(t, err, "user id is required")
}

func TestGetPlayerModels(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")
	now := time.Now()

	cols := []string{
		"user_id", "playstyle", "trust_score", "deception_score",
		"participation_rate", "voting_patterns", "last_updated",
	}
	mock.ExpectQuery("FROM player_models").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "quiet", 0.5, 0.5, 0.1, "votes_mixed", now).
			AddRow("u2", "talkative", 0.5, 0.5, 0.6, "", now))

	models, err := store.GetPlayerModels(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, []string{"votes_mixed"}, models["u1"].VotingPatterns)
	assert.Nil(t, models["u2"].VotingPatterns)
}

func TestSaveRunPropagatesDatabaseError(t *testing.T) {
	store, mock := setupMockStore(t, "sqlite")

	mock.ExpectExec("INSERT INTO agent_runs").
		WillReturnError(errors.New("connection refused"))

	err := store.SaveRun(context.Background(), types.AgentRun{ID: "run-1"})
	assert.ErrorContains(t, err, "failed to insert run")
}
