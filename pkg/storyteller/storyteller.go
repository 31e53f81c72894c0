// Package storyteller provides the autonomous Storyteller agent for a
// hidden-role village game.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                        Orchestrator                        │
//	│  ┌──────────┐  ┌──────────┐  ┌──────────┐  ┌──────────┐   │
//	│  │Moderator │  │ Narrator │  │  Rules   │  │Summarizer│   │
//	│  └──────────┘  └──────────┘  └──────────┘  └──────────┘   │
//	│                    ┌──────────────┐                        │
//	│                    │PlayerModeler │                        │
//	│                    └──────────────┘                        │
//	├────────────────────────────────────────────────────────────┤
//	│                       Model Router                         │
//	│         (routes to different models by task kind)          │
//	├────────────────────────────────────────────────────────────┤
//	│     Memory Manager            │      Tool Registry         │
//	│  (short-term + long-term)     │    (game operations)       │
//	└────────────────────────────────────────────────────────────┘
//
// The facade in this package is the single integration point for the game
// engine: it receives events through OnEvent, runs them through the
// orchestrator (inline or via a task queue) and emits commands back through
// a dispatcher.
package storyteller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravenwood/storyteller/pkg/agent"
	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/mcp"
	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/types"
)

const (
	eventTaskType       = "storyteller_event"
	defaultEventTimeout = 8 * time.Second
)

// CommandDispatcher delivers commands to the game engine.
type CommandDispatcher interface {
	DispatchAsync(cmd types.CommandEnvelope) error
}

// RuleRetriever serves rule snippets for context injection.
type RuleRetriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]RetrieveResult, error)
}

// RetrieveResult is one retrieved rule snippet.
type RetrieveResult struct {
	Content  string
	Score    float64
	Metadata map[string]any
}

// TaskQueue publishes events for out-of-band processing.
type TaskQueue interface {
	Publish(ctx context.Context, task types.AsyncEventTask) error
}

// EventSource reads the engine's append-only event stream.
type EventSource interface {
	ListEvents(ctx context.Context, roomID string, sinceSeq int64, limit int) ([]types.Event, error)
}

// Config configures one Storyteller instance.
type Config struct {
	RoomID       string
	LLM          llm.RoutingConfig
	Memory       memory.Config
	Orchestrator agent.Config
	Logger       *slog.Logger
	Enabled      bool
	EventTimeout time.Duration

	// Optional integrations.
	Embedder      embedder.Embedder
	LongTermStore memory.LongTermStore
	RunStore      agent.AgentRunStore
	Retriever     RuleRetriever
	TaskQueue     TaskQueue
}

// Storyteller is the engine-facing agent facade.
type Storyteller struct {
	mu           sync.RWMutex
	orchestrator *agent.Orchestrator
	memory       *memory.Manager
	log          *slog.Logger
	roomID       string
	enabled      bool
	dispatcher   CommandDispatcher
	stateGetter  func() any
	lastSnapshot *types.EngineSnapshot
	startPending bool
	runCtx       context.Context
	retriever    RuleRetriever
	taskQueue    TaskQueue
	eventSource  EventSource
	eventTimeout time.Duration
	registry     *mcp.Registry
}

// New creates a Storyteller for one room.
func New(cfg Config) *Storyteller {
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = cfg.LLM.Default.Timeout
	}
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}

	s := &Storyteller{
		log:          cfg.Logger.With("room_id", cfg.RoomID),
		roomID:       cfg.RoomID,
		enabled:      cfg.Enabled,
		retriever:    cfg.Retriever,
		taskQueue:    cfg.TaskQueue,
		eventTimeout: eventTimeout,
	}

	s.memory = memory.NewManager(cfg.Memory, cfg.Embedder, cfg.LongTermStore)
	s.initRegistry()

	router := llm.NewRouter(cfg.LLM)
	s.orchestrator = agent.New(cfg.RoomID, s.registry, router, s.memory, cfg.RunStore, cfg.Orchestrator)

	return s
}

// Enabled reports whether the agent reacts to events.
func (s *Storyteller) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled toggles event handling.
func (s *Storyteller) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// SetDispatcher wires the command dispatcher and a state getter used by the
// get_room_state tool. The getter must return a types.EngineSnapshot; a nil
// getter falls back to the snapshot mirror maintained by OnEvent.
func (s *Storyteller) SetDispatcher(dispatcher CommandDispatcher, stateGetter func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = dispatcher
	s.stateGetter = stateGetter
}

// SetRetriever wires the rule-context retriever.
func (s *Storyteller) SetRetriever(retriever RuleRetriever) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retriever = retriever
}

// SetTaskQueue wires the async task queue.
func (s *Storyteller) SetTaskQueue(queue TaskQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskQueue = queue
}

// SetEventSource wires the event stream reader used by get_recent_events.
func (s *Storyteller) SetEventSource(source EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSource = source
}

// Registry exposes the tool registry, e.g. for serving it over MCP.
func (s *Storyteller) Registry() *mcp.Registry {
	return s.registry
}

// Memory exposes the memory manager, e.g. for rules ingestion.
func (s *Storyteller) Memory() *memory.Manager {
	return s.memory
}

// Start launches the orchestrator control loop. Without a state getter the
// launch is deferred until the first engine snapshot arrives through
// OnEvent; running the loop earlier would only record failed sense steps.
func (s *Storyteller) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stateGetter == nil && s.lastSnapshot == nil {
		s.runCtx = ctx
		s.startPending = true
		s.mu.Unlock()
		s.log.Info("deferring orchestrator start until the first engine snapshot")
		return nil
	}
	s.mu.Unlock()
	return s.orchestrator.Start(ctx)
}

// Stop halts the control loop, cancelling a deferred start when one is
// still pending.
func (s *Storyteller) Stop() error {
	s.mu.Lock()
	wasPending := s.startPending
	s.startPending = false
	s.runCtx = nil
	s.mu.Unlock()
	if wasPending && !s.orchestrator.IsActive() {
		return nil
	}
	return s.orchestrator.Stop()
}

// noteSnapshot refreshes the event-derived state mirror and releases a
// deferred orchestrator start once the first snapshot arrives.
func (s *Storyteller) noteSnapshot(snapshot types.EngineSnapshot) {
	s.orchestrator.UpdateGameState(snapshot)

	s.mu.Lock()
	s.lastSnapshot = &snapshot
	pending := s.startPending
	runCtx := s.runCtx
	s.startPending = false
	s.mu.Unlock()

	if pending && runCtx != nil {
		if err := s.orchestrator.Start(runCtx); err != nil {
			s.log.Error("failed to start orchestrator", "error", err)
		}
	}
}

// IsActive reports whether the control loop is running.
func (s *Storyteller) IsActive() bool {
	return s.orchestrator.IsActive()
}

// Status returns the agent's current status for this room.
func (s *Storyteller) Status() types.StorytellerStatus {
	status := s.orchestrator.Status()
	status.Enabled = s.Enabled()
	return status
}

// GetSummary returns the current game recap. forDM includes hidden roles.
func (s *Storyteller) GetSummary(ctx context.Context, forDM bool) (string, error) {
	return s.orchestrator.GetSummary(ctx, forDM)
}

// AnalyzePlayers returns the player behavior report (DM only).
func (s *Storyteller) AnalyzePlayers(ctx context.Context) (string, error) {
	return s.orchestrator.AnalyzePlayers(ctx)
}

// ListRuns returns recent orchestrator runs from the run store.
func (s *Storyteller) ListRuns(ctx context.Context, store agent.AgentRunStore, limit int) ([]types.AgentRun, error) {
	if store == nil {
		return nil, errors.New("run store not configured")
	}
	return store.ListRuns(ctx, s.roomID, limit)
}

// dispatchCommand hands a command to the engine dispatcher.
func (s *Storyteller) dispatchCommand(cmd types.CommandEnvelope) error {
	s.mu.RLock()
	dispatcher := s.dispatcher
	s.mu.RUnlock()
	if dispatcher == nil {
		return errors.New("storyteller dispatcher is not configured")
	}
	return dispatcher.DispatchAsync(cmd)
}

// sendMessage posts a public message, preferring the registry tool and
// falling back to a direct command envelope.
func (s *Storyteller) sendMessage(ctx context.Context, roomID, message string) {
	if strings.TrimSpace(message) == "" || strings.TrimSpace(roomID) == "" {
		return
	}

	params, _ := json.Marshal(map[string]string{
		"room_id": roomID,
		"message": message,
	})
	result := s.registry.Invoke(ctx, mcp.ToolCall{
		ID:         newCommandID(),
		ToolName:   "send_public_message",
		Parameters: params,
		Timestamp:  time.Now().UnixMilli(),
	})
	if result.Success {
		return
	}
	s.log.Error("send_public_message tool failed", "error", result.Error)

	payload, _ := json.Marshal(map[string]string{
		"message": message,
		"from":    "auto-dm",
	})
	cmdID := newCommandID()
	cmd := types.CommandEnvelope{
		CommandID:      cmdID,
		IdempotencyKey: cmdID,
		RoomID:         roomID,
		Type:           "public_chat",
		ActorUserID:    types.ActorStoryteller,
		Payload:        payload,
	}
	if err := s.dispatchCommand(cmd); err != nil {
		s.log.Error("failed to send storyteller message", "error", err)
	}
}

func newCommandID() string {
	return uuid.NewString()
}
