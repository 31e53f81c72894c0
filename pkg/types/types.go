// Package types holds the wire and domain shapes shared between the game
// engine boundary and the Storyteller agent: events, command envelopes,
// state snapshots, plans, actions, run records and memory entries.
package types

import (
	"context"
	"encoding/json"
	"time"
)

// Phase is a game phase as reported by the engine.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseFirstNight Phase = "first_night"
	PhaseDay        Phase = "day"
	PhaseNomination Phase = "nomination"
	PhaseNight      Phase = "night"
	PhaseEnded      Phase = "ended"
)

// ActorStoryteller is the actor id carried by every command the agent emits.
const ActorStoryteller = "autodm"

// Event is a single observation from the engine's append-only stream.
// Events are ordered by Seq within a room.
type Event struct {
	RoomID      string          `json:"room_id"`
	Seq         int64           `json:"seq"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	ActorUserID string          `json:"actor_user_id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// CommandEnvelope is an intent dispatched back to the engine. The
// idempotency key equals the command id for agent-emitted commands, so a
// retried dispatch collapses to a single engine effect.
type CommandEnvelope struct {
	CommandID      string          `json:"command_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	RoomID         string          `json:"room_id"`
	Type           string          `json:"type"`
	ActorUserID    string          `json:"actor_user_id"`
	Payload        json.RawMessage `json:"payload"`
}

// PlayerState is the engine's view of one seat.
type PlayerState struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name"`
	Seat      int      `json:"seat"`
	Role      string   `json:"role"`
	Alive     bool     `json:"alive"`
	VoteUsed  bool     `json:"vote_used"`
	IsDM      bool     `json:"is_dm"`
	Reminders []string `json:"reminders,omitempty"`
}

// NominationState is one entry of the nomination queue.
type NominationState struct {
	Nominator string `json:"nominator"`
	Nominee   string `json:"nominee"`
	VotesFor  int    `json:"votes_for"`
	Threshold int    `json:"threshold"`
	Resolved  bool   `json:"resolved"`
}

// RoomState mirrors the engine's authoritative room snapshot. The agent
// never writes to it except by replacing the whole snapshot.
type RoomState struct {
	RoomID      string                 `json:"room_id"`
	Phase       Phase                  `json:"phase"`
	DayCount    int                    `json:"day_count"`
	Players     map[string]PlayerState `json:"players"`
	Nominations []NominationState      `json:"nominations,omitempty"`
	LastSeq     int64                  `json:"last_seq"`
	Timers      map[string]time.Time   `json:"timers,omitempty"`
}

// ActionType identifies a planned tool invocation. Values mirror registered
// tool names so a plan can be executed directly against the registry.
type ActionType string

const (
	ActionSendPublicMessage   ActionType = "send_public_message"
	ActionSendPrivateMessage  ActionType = "send_private_message"
	ActionRequestConfirmation ActionType = "request_player_confirmation"
	ActionAdvancePhase        ActionType = "advance_phase"
	ActionToggleVoting        ActionType = "toggle_voting"
	ActionWriteEvent          ActionType = "write_event"
	ActionGetRoomState        ActionType = "get_room_state"
	ActionGetRecentEvents     ActionType = "get_recent_events"
)

// Action is one planned tool invocation.
type Action struct {
	ID         string          `json:"id"`
	Type       ActionType      `json:"type"`
	Args       json.RawMessage `json:"args"`
	Priority   int             `json:"priority"`
	Timeout    time.Duration   `json:"timeout,omitempty"`
	MaxRetries int             `json:"max_retries,omitempty"`
}

// Plan is the merged output of one orchestrator run.
type Plan struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	Reasoning  string    `json:"reasoning"`
	Actions    []Action  `json:"actions"`
	Confidence float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActionResult records the outcome of executing one action.
type ActionResult struct {
	ActionID  string          `json:"action_id"`
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Timestamp time.Time       `json:"timestamp"`
}

// Observation is what the agent saw after executing a plan.
type Observation struct {
	RoomID       string         `json:"room_id"`
	Results      []ActionResult `json:"results"`
	NewEvents    []Event        `json:"new_events,omitempty"`
	StateChanged bool           `json:"state_changed"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Reflection is the agent's short post-run self-assessment.
type Reflection struct {
	RoomID    string    `json:"room_id"`
	Summary   string    `json:"summary"`
	Lessons   []string  `json:"lessons,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCallAudit records a single tool invocation for forensics.
type ToolCallAudit struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Run statuses. A run transitions running -> (completed|error) exactly once.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
)

// AgentRun records a single orchestrator iteration.
type AgentRun struct {
	ID           string          `json:"id"`
	RoomID       string          `json:"room_id"`
	AgentName    string          `json:"agent_name"`
	SeqFrom      int64           `json:"seq_from"`
	SeqTo        int64           `json:"seq_to"`
	InputDigest  string          `json:"input_digest"`
	OutputDigest string          `json:"output_digest"`
	PlanJSON     json.RawMessage `json:"plan_json,omitempty"`
	ToolCalls    []ToolCallAudit `json:"tool_calls,omitempty"`
	Status       string          `json:"status"`
	LatencyMs    int64           `json:"latency_ms"`
	ErrorText    string          `json:"error_text,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Memory entry kinds.
const (
	MemoryTypeRule    = "rule"
	MemoryTypeSummary = "summary"
	MemoryTypeProfile = "profile"
	MemoryTypeEvent   = "event"
)

// MemoryEntry is one unit of episodic or rules memory. Score is only set on
// retrieval. Embedding is either empty or has the configured embedder's
// dimension.
type MemoryEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Embedding []float32       `json:"embedding,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Score     float64         `json:"score,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PlayerModel is a behavioral profile maintained per player.
type PlayerModel struct {
	UserID            string    `json:"user_id"`
	Playstyle         string    `json:"playstyle"`
	TrustScore        float64   `json:"trust_score"`
	DeceptionScore    float64   `json:"deception_score"`
	ParticipationRate float64   `json:"participation_rate"`
	VotingPatterns    []string  `json:"voting_patterns,omitempty"`
	LastUpdated       time.Time `json:"last_updated"`
}

// PendingInput marks a player the agent is waiting on.
type PendingInput struct {
	UserID     string    `json:"user_id"`
	ActionType string    `json:"action_type"`
	Deadline   time.Time `json:"deadline,omitempty"`
}

// MemoryContext carries retrieved memory into sub-agent execution.
type MemoryContext struct {
	ShortTerm    []Event                `json:"short_term"`
	LongTerm     []MemoryEntry          `json:"long_term,omitempty"`
	PlayerModels map[string]PlayerModel `json:"player_models,omitempty"`
	GameSummary  string                 `json:"game_summary,omitempty"`
}

// AgentContext is the input handed to every sub-agent.
type AgentContext struct {
	RoomID        string
	RunID         string
	Phase         Phase
	RecentEvents  []Event
	PendingInputs []PendingInput
	Timers        map[string]time.Time
	MemoryContext *MemoryContext
	StartTime     time.Time
}

// AgentOutput is what one sub-agent contributes to a run.
type AgentOutput struct {
	AgentName  string          `json:"agent_name"`
	Actions    []Action        `json:"actions,omitempty"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// SubAgent is the common capability set of the five specialist agents.
type SubAgent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, agentCtx *AgentContext) (*AgentOutput, error)
}

// StorytellerStatus is a point-in-time view of the agent for one room.
type StorytellerStatus struct {
	RoomID     string    `json:"room_id"`
	Enabled    bool      `json:"enabled"`
	Active     bool      `json:"active"`
	Phase      Phase     `json:"phase"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// AsyncEventTask is the payload published to the task queue for out-of-band
// event processing.
type AsyncEventTask struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Event  Event  `json:"event"`
}

// EngineSnapshot is the declared interface shape for the engine's opaque
// state argument to OnEvent. The engine remains authoritative; the agent
// only copies from it.
type EngineSnapshot struct {
	RoomID          string            `json:"room_id"`
	Phase           Phase             `json:"phase"`
	DayCount        int               `json:"day_count"`
	Players         []PlayerState     `json:"players,omitempty"`
	NominationQueue []NominationState `json:"nomination_queue,omitempty"`
	LastSeq         int64             `json:"last_seq"`
}
