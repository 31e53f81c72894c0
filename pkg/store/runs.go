package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ravenwood/storyteller/pkg/types"
)

// SaveRun inserts one run record. Runs are written once per orchestrator
// iteration and never updated.
func (s *SQLStore) SaveRun(ctx context.Context, run types.AgentRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := s.rebind(`
INSERT INTO agent_runs (id, room_id, agent_name, seq_from, seq_to, input_digest, output_digest, plan_json, status, latency_ms, error_text, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.RoomID, run.AgentName,
		run.SeqFrom, run.SeqTo,
		run.InputDigest, run.OutputDigest,
		string(run.PlanJSON), run.Status,
		run.LatencyMs, run.ErrorText,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun loads one run with its tool-call audit trail.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*types.AgentRun, error) {
	query := s.rebind(`
SELECT id, room_id, agent_name, seq_from, seq_to, input_digest, output_digest, plan_json, status, latency_ms, error_text, created_at
FROM agent_runs
WHERE id = ?
`)
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	calls, err := s.listToolCalls(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.ToolCalls = calls
	return run, nil
}

// ListRuns returns the most recent runs for a room, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, roomID string, limit int) ([]types.AgentRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.rebind(`
SELECT id, room_id, agent_name, seq_from, seq_to, input_digest, output_digest, plan_json, status, latency_ms, error_text, created_at
FROM agent_runs
WHERE room_id = ?
ORDER BY created_at DESC
LIMIT ?
`)
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []types.AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveToolCall appends one audit record to a run.
func (s *SQLStore) SaveToolCall(ctx context.Context, call types.ToolCallAudit) error {
	if call.ID == "" {
		return fmt.Errorf("tool call id is required")
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}

	query := s.rebind(`
INSERT INTO tool_calls (id, run_id, tool_name, args, result, error_text, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	_, err := s.db.ExecContext(ctx, query,
		call.ID, call.RunID, call.ToolName,
		string(call.Args), string(call.Result),
		call.Error, call.DurationMs, call.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool call: %w", err)
	}
	return nil
}

func (s *SQLStore) listToolCalls(ctx context.Context, runID string) ([]types.ToolCallAudit, error) {
	query := s.rebind(`
SELECT id, run_id, tool_name, args, result, error_text, duration_ms, created_at
FROM tool_calls
WHERE run_id = ?
ORDER BY created_at ASC
`)
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var calls []types.ToolCallAudit
	for rows.Next() {
		var call types.ToolCallAudit
		var args, result string
		if err := rows.Scan(
			&call.ID, &call.RunID, &call.ToolName,
			&args, &result, &call.Error,
			&call.DurationMs, &call.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		if args != "" {
			call.Args = json.RawMessage(args)
		}
		if result != "" {
			call.Result = json.RawMessage(result)
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*types.AgentRun, error) {
	var run types.AgentRun
	var planJSON string
	if err := row.Scan(
		&run.ID, &run.RoomID, &run.AgentName,
		&run.SeqFrom, &run.SeqTo,
		&run.InputDigest, &run.OutputDigest,
		&planJSON, &run.Status,
		&run.LatencyMs, &run.ErrorText,
		&run.CreatedAt,
	); err != nil {
		return nil, err
	}
	if planJSON != "" {
		run.PlanJSON = json.RawMessage(planJSON)
	}
	return &run, nil
}
