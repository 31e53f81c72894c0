package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/mcp"
	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/types"
)

// fakeInvoker serves canned room state and events and records every call.
type fakeInvoker struct {
	mu       sync.Mutex
	state    types.RoomState
	events   []types.Event
	calls    []mcp.ToolCall
	failures map[string]int // tool name -> remaining failures
}

func newFakeInvoker(state types.RoomState, events []types.Event) *fakeInvoker {
	return &fakeInvoker{state: state, events: events, failures: make(map[string]int)}
}

func (f *fakeInvoker) Invoke(ctx context.Context, call mcp.ToolCall) mcp.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)

	if remaining := f.failures[call.ToolName]; remaining > 0 {
		f.failures[call.ToolName] = remaining - 1
		return mcp.ToolResult{CallID: call.ID, Success: false, Error: "transient failure"}
	}

	switch call.ToolName {
	case "get_room_state":
		raw, _ := json.Marshal(f.state)
		return mcp.ToolResult{CallID: call.ID, Success: true, Result: raw}
	case "get_recent_events":
		raw, _ := json.Marshal(f.events)
		return mcp.ToolResult{CallID: call.ID, Success: true, Result: raw}
	default:
		return mcp.ToolResult{CallID: call.ID, Success: true, Result: json.RawMessage(`{"status":"ok"}`)}
	}
}

func (f *fakeInvoker) callCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.ToolName == tool {
			n++
		}
	}
	return n
}

type fakeRunStore struct {
	mu    sync.Mutex
	runs  []types.AgentRun
	calls []types.ToolCallAudit
}

func (s *fakeRunStore) SaveRun(ctx context.Context, run types.AgentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeRunStore) GetRun(ctx context.Context, runID string) (*types.AgentRun, error) {
	return nil, nil
}

func (s *fakeRunStore) ListRuns(ctx context.Context, roomID string, limit int) ([]types.AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, nil
}

func (s *fakeRunStore) SaveToolCall(ctx context.Context, call types.ToolCallAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return nil
}

type fakeChatter struct {
	reply string
	err   error
}

func (f *fakeChatter) Chat(ctx context.Context, kind llm.TaskKind, messages []llm.Message, tools []llm.ToolDefinition) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Choices: []llm.Choice{{Message: llm.Message{Content: f.reply}}}}, nil
}

func testRoomState(phase types.Phase, lastSeq int64) types.RoomState {
	return types.RoomState{
		RoomID:  "room-1",
		Phase:   phase,
		LastSeq: lastSeq,
		Players: map[string]types.PlayerState{
			"u1": {UserID: "u1", Name: "Ann", Alive: true},
			"dm": {UserID: "dm", Name: "Host", Alive: true, IsDM: true},
		},
	}
}

func seqEvents(eventTypes []string, startSeq int64) []types.Event {
	events := make([]types.Event, 0, len(eventTypes))
	for i, et := range eventTypes {
		events = append(events, types.Event{
			RoomID:    "room-1",
			Seq:       startSeq + int64(i),
			EventType: et,
			Timestamp: time.Now(),
		})
	}
	return events
}

func newTestOrchestrator(invoker *fakeInvoker, store *fakeRunStore) *Orchestrator {
	mem := memory.NewManager(memory.Config{ShortTermCapacity: 10}, nil, nil)
	// Avoid wrapping a typed nil in the interface so the orchestrator's
	// nil-store guard still applies.
	var runStore AgentRunStore
	if store != nil {
		runStore = store
	}
	return New("room-1", invoker, &fakeChatter{reply: "ok"}, mem, runStore, Config{
		MaxActionsPerRun:    10,
		RunInterval:         time.Second,
		ActionTimeout:       time.Second,
		MaxRetriesPerAction: 2,
		ShortTermMemorySize: 10,
		EnableReflection:    true,
	})
}

func TestExecuteRunCompletesAndRecords(t *testing.T) {
	invoker := newFakeInvoker(testRoomState(types.PhaseDay, 5), seqEvents([]string{"public.chat", "public.chat"}, 4))
	store := &fakeRunStore{}
	o := newTestOrchestrator(invoker, store)

	require.NoError(t, o.executeRun(context.Background()))

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, types.RunStatusCompleted, run.Status)
	assert.Equal(t, "room-1", run.RoomID)
	assert.Equal(t, int64(4), run.SeqFrom)
	assert.Equal(t, int64(5), run.SeqTo)
	assert.Len(t, run.InputDigest, 16)
	assert.Len(t, run.OutputDigest, 16)
	assert.NotEmpty(t, run.PlanJSON)
}

func TestExecuteRunEmptyEventWindow(t *testing.T) {
	invoker := newFakeInvoker(testRoomState(types.PhaseLobby, 0), nil)
	store := &fakeRunStore{}
	o := newTestOrchestrator(invoker, store)

	require.NoError(t, o.executeRun(context.Background()))
	require.Len(t, store.runs, 1)
	assert.Equal(t, int64(0), store.runs[0].SeqFrom)
	assert.Equal(t, int64(0), store.runs[0].SeqTo)
}

func TestExecuteRunSenseFailureRecordsError(t *testing.T) {
	invoker := newFakeInvoker(testRoomState(types.PhaseDay, 1), nil)
	invoker.failures["get_room_state"] = 100
	store := &fakeRunStore{}
	o := newTestOrchestrator(invoker, store)

	err := o.executeRun(context.Background())
	require.Error(t, err)
	require.Len(t, store.runs, 1)
	assert.Equal(t, types.RunStatusError, store.runs[0].Status)
	assert.Contains(t, store.runs[0].ErrorText, "sense failed")
}

func TestExecuteActionsRetriesWithBackoff(t *testing.T) {
	invoker := newFakeInvoker(testRoomState(types.PhaseDay, 1), nil)
	invoker.failures["send_public_message"] = 2
	o := newTestOrchestrator(invoker, nil)

	args, _ := json.Marshal(map[string]any{"room_id": "room-1", "message": "hi"})
	actions := []types.Action{{ID: "a1", Type: types.ActionSendPublicMessage, Args: args}}

	start := time.Now()
	results, audits := o.executeActions(context.Background(), "run-1", actions)
	elapsed := time.Since(start)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.Len(t, audits, 1)
	assert.Equal(t, "send_public_message", audits[0].ToolName)
	// Two failures mean sleeps of 100ms then 200ms before the third attempt.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Equal(t, 3, invoker.callCount("send_public_message"))
}

func TestExecuteActionsExhaustsRetries(t *testing.T) {
	invoker := newFakeInvoker(testRoomState(types.PhaseDay, 1), nil)
	invoker.failures["advance_phase"] = 100
	o := newTestOrchestrator(invoker, nil)

	args, _ := json.Marshal(map[string]any{"room_id": "room-1", "phase": "night"})
	results, _ := o.executeActions(context.Background(), "run-1", []types.Action{
		{ID: "a1", Type: types.ActionAdvancePhase, Args: args},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "transient failure", results[0].Error)
	// MaxRetriesPerAction=2 means 3 attempts total.
	assert.Equal(t, 3, invoker.callCount("advance_phase"))
}

func TestMergeContributionsPriorityAndTruncation(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseDay, 1), nil), nil)

	contributions := map[string]*types.AgentOutput{
		"narrator": {AgentName: "narrator", Actions: []types.Action{{ID: "n1"}}},
		"moderator": {AgentName: "moderator", Message: "mod first",
			Actions: []types.Action{{ID: "m1"}}},
		"rules": {AgentName: "rules", Actions: []types.Action{{ID: "r1"}}},
	}

	plan := o.mergeContributions(contributions)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, "m1", plan.Actions[0].ID)
	assert.Equal(t, "r1", plan.Actions[1].ID)
	assert.Equal(t, "n1", plan.Actions[2].ID)
	assert.Equal(t, "mod first", plan.Reasoning)
}

func TestMergeContributionsRespectsMaxActions(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseDay, 1), nil), nil)
	o.cfg.MaxActionsPerRun = 2

	var modActions []types.Action
	for i := 0; i < 5; i++ {
		modActions = append(modActions, types.Action{ID: "m"})
	}
	plan := o.mergeContributions(map[string]*types.AgentOutput{
		"moderator": {AgentName: "moderator", Actions: modActions},
	})
	assert.Len(t, plan.Actions, 2)
}

func TestSchedulingGates(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(*types.AgentContext) bool
		event string
		want  bool
	}{
		{"rules on rule_question", needsRulesLookup, "rule_question", true},
		{"rules on dispute", needsRulesLookup, "dispute", true},
		{"rules on ability.used", needsRulesLookup, "ability.used", true},
		{"rules not on chat", needsRulesLookup, "public.chat", false},
		{"narration on game.started", needsNarration, "game.started", true},
		{"narration on execution", needsNarration, "execution.resolved", true},
		{"narration not on vote", needsNarration, "vote.cast", false},
		{"summary on night", needsSummary, "phase.night", true},
		{"summary not on day", needsSummary, "phase.day", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agentCtx := &types.AgentContext{RecentEvents: seqEvents([]string{tt.event}, 1)}
			assert.Equal(t, tt.want, tt.fn(agentCtx))
		})
	}
}

func TestStartStopLifecycle(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseLobby, 0), nil), nil)

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.IsActive())
	assert.Error(t, o.Start(context.Background()), "double start must fail")

	require.NoError(t, o.Stop())
	assert.False(t, o.IsActive())
	assert.Error(t, o.Stop(), "double stop must fail")
}

func TestHashDigestShape(t *testing.T) {
	d := hashDigest([]byte("payload"))
	assert.Len(t, d, 16)
	assert.Equal(t, d, hashDigest([]byte("payload")))
	assert.NotEqual(t, d, hashDigest([]byte("other")))
}

func TestUpdateGameStateAndStatus(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseDay, 1), nil), nil)

	o.UpdateGameState(types.EngineSnapshot{
		RoomID:   "room-1",
		Phase:    types.PhaseNight,
		DayCount: 2,
		Players: []types.PlayerState{
			{UserID: "u1", Name: "Ann", Alive: true},
			{UserID: "u2", Name: "Bob", Alive: false},
		},
		LastSeq: 42,
	})

	status := o.Status()
	assert.Equal(t, types.PhaseNight, status.Phase)

	summary, err := o.GetSummary(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, summary, "1/2 players alive")
}

func TestProcessEventUsesRouter(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseDay, 1), nil), nil)

	msg, speak, err := o.ProcessEvent(context.Background(), "Day phase begins")
	require.NoError(t, err)
	assert.True(t, speak)
	assert.Equal(t, "ok", msg)
}

func TestAnalyzePlayersEmpty(t *testing.T) {
	o := newTestOrchestrator(newFakeInvoker(testRoomState(types.PhaseDay, 1), nil), nil)
	report, err := o.AnalyzePlayers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No player data collected yet.", report)
}
