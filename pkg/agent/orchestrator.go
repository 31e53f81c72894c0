// Package agent contains the orchestrator: a single-room control loop that
// senses the engine, consults the sub-agents, merges their contributions
// into one plan, executes it through the tool registry and persists what it
// observed.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenwood/storyteller/pkg/agents"
	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/mcp"
	"github.com/ravenwood/storyteller/pkg/observability"
	"github.com/ravenwood/storyteller/pkg/types"
)

// ToolInvoker executes validated tool calls. *mcp.Registry satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, call mcp.ToolCall) mcp.ToolResult
}

// AgentRunStore persists run records and tool-call audits.
type AgentRunStore interface {
	SaveRun(ctx context.Context, run types.AgentRun) error
	GetRun(ctx context.Context, runID string) (*types.AgentRun, error)
	ListRuns(ctx context.Context, roomID string, limit int) ([]types.AgentRun, error)
	SaveToolCall(ctx context.Context, call types.ToolCallAudit) error
}

// Memory is the slice of the memory manager the orchestrator and its
// sub-agents use. The orchestrator owns the manager; sub-agents hold
// non-owning handles.
type Memory interface {
	Store(ctx context.Context, roomID string, entry types.MemoryEntry)
	RetrieveRelevant(ctx context.Context, roomID string, query string, topK int) []types.MemoryEntry
	SearchRules(ctx context.Context, query string, topK int) []types.MemoryEntry
	SaveGameSummary(ctx context.Context, roomID, summary string) error
	GetGameSummary(ctx context.Context, roomID string) (string, error)
	SavePlayerModel(ctx context.Context, roomID string, model types.PlayerModel) error
	GetPlayerModels(ctx context.Context, roomID string) (map[string]types.PlayerModel, error)
}

// Config bounds one orchestrator instance.
type Config struct {
	MaxActionsPerRun     int           `yaml:"max_actions_per_run"`
	RunInterval          time.Duration `yaml:"run_interval"`
	ActionTimeout        time.Duration `yaml:"action_timeout"`
	MaxRetriesPerAction  int           `yaml:"max_retries_per_action"`
	ShortTermMemorySize  int           `yaml:"short_term_memory_size"`
	EnableReflection     bool          `yaml:"enable_reflection"`
	EnablePlayerModeling bool          `yaml:"enable_player_modeling"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxActionsPerRun:     10,
		RunInterval:          2 * time.Second,
		ActionTimeout:        30 * time.Second,
		MaxRetriesPerAction:  3,
		ShortTermMemorySize:  50,
		EnableReflection:     true,
		EnablePlayerModeling: true,
	}
}

// Orchestrator coordinates the sub-agent system with the control loop:
// Sense -> BuildContext -> Plan -> ExecuteActions -> Observe -> Reflect ->
// PersistMemory.
type Orchestrator struct {
	roomID string
	log    *slog.Logger
	tools  ToolInvoker
	router agents.Chatter
	memory Memory

	moderator     types.SubAgent
	rules         types.SubAgent
	narrator      types.SubAgent
	summarizer    types.SubAgent
	playerModeler types.SubAgent

	mu         sync.RWMutex
	active     bool
	lastRunID  string
	lastRunAt  time.Time
	runCount   int64
	errorCount int64
	startedAt  time.Time
	stopCh     chan struct{}
	gameState  *types.RoomState

	runStore AgentRunStore
	cfg      Config
}

// New wires the orchestrator and its five sub-agents.
func New(roomID string, tools ToolInvoker, router agents.Chatter, mem Memory, runStore AgentRunStore, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.MaxActionsPerRun <= 0 {
		cfg.MaxActionsPerRun = defaults.MaxActionsPerRun
	}
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = defaults.RunInterval
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaults.ActionTimeout
	}
	if cfg.MaxRetriesPerAction <= 0 {
		cfg.MaxRetriesPerAction = defaults.MaxRetriesPerAction
	}
	if cfg.ShortTermMemorySize <= 0 {
		cfg.ShortTermMemorySize = defaults.ShortTermMemorySize
	}
	o := &Orchestrator{
		roomID:   roomID,
		log:      logger.Get().With("room_id", roomID),
		tools:    tools,
		router:   router,
		memory:   mem,
		runStore: runStore,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}

	o.moderator = agents.NewModerator()
	o.rules = agents.NewRules(router, mem)
	o.narrator = agents.NewNarrator(router)
	o.summarizer = agents.NewSummarizer(router, mem)
	o.playerModeler = agents.NewPlayerModeler(mem)

	return o
}

// Start launches the control loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already active")
	}
	o.active = true
	o.startedAt = time.Now()
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.log.Info("starting storyteller orchestrator")
	go o.runLoop(ctx)
	return nil
}

// Stop halts the control loop.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		return fmt.Errorf("orchestrator not active")
	}
	o.log.Info("stopping storyteller orchestrator")
	close(o.stopCh)
	o.active = false
	return nil
}

// IsActive reports whether the loop is running.
func (o *Orchestrator) IsActive() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// Status returns a point-in-time view of the orchestrator.
func (o *Orchestrator) Status() types.StorytellerStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := types.StorytellerStatus{
		RoomID:     o.roomID,
		Active:     o.active,
		LastRunID:  o.lastRunID,
		LastRunAt:  o.lastRunAt,
		RunCount:   o.runCount,
		ErrorCount: o.errorCount,
		StartedAt:  o.startedAt,
	}
	if o.gameState != nil {
		status.Phase = o.gameState.Phase
	}
	return status
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("context cancelled, stopping loop")
			return
		case <-o.stopCh:
			o.log.Info("stop signal received")
			return
		case <-ticker.C:
			if err := o.executeRun(ctx); err != nil {
				o.log.Error("run failed", "error", err)
				o.mu.Lock()
				o.errorCount++
				o.mu.Unlock()
			}
		}
	}
}

// executeRun performs one iteration of the control loop.
func (o *Orchestrator) executeRun(ctx context.Context) error {
	runID := uuid.NewString()
	startTime := time.Now()

	tracer := observability.Tracer("storyteller.agent")
	ctx, span := tracer.Start(ctx, observability.SpanRun,
		trace.WithAttributes(attribute.String(observability.AttrRoomID, o.roomID)))
	defer span.End()

	o.log.Debug("starting run", "run_id", runID)

	run := types.AgentRun{
		ID:        runID,
		RoomID:    o.roomID,
		AgentName: "orchestrator",
		Status:    types.RunStatusRunning,
		CreatedAt: startTime,
	}

	fail := func(stage string, err error) error {
		run.Status = types.RunStatusError
		run.ErrorText = fmt.Sprintf("%s failed: %v", stage, err)
		run.LatencyMs = time.Since(startTime).Milliseconds()
		o.saveRun(ctx, run)
		span.RecordError(err)
		span.SetStatus(codes.Error, run.ErrorText)
		observability.RecordRun(types.RunStatusError, time.Since(startTime))
		return fmt.Errorf("%s: %w", stage, err)
	}

	// Step 1: Sense.
	agentCtx, err := o.sense(ctx, runID)
	if err != nil {
		return fail("sense", err)
	}

	if shortTerm := agentCtx.MemoryContext.ShortTerm; len(shortTerm) > 0 {
		run.SeqFrom = shortTerm[0].Seq
		run.SeqTo = shortTerm[len(shortTerm)-1].Seq
	}

	inputBytes, _ := json.Marshal(agentCtx)
	run.InputDigest = hashDigest(inputBytes)

	// Step 2: BuildContext. Failures leave partial context, which is fine.
	memCtx, err := o.buildContext(ctx, agentCtx)
	if err != nil {
		o.log.Warn("build context failed", "error", err)
	}
	agentCtx.MemoryContext = memCtx

	// Step 3: Plan.
	plan, err := o.plan(ctx, agentCtx)
	if err != nil {
		return fail("plan", err)
	}
	planJSON, _ := json.Marshal(plan)
	run.PlanJSON = planJSON

	// Step 4: Execute.
	results, toolCalls := o.executeActions(ctx, runID, plan.Actions)
	run.ToolCalls = toolCalls

	// Step 5: Observe.
	observation := o.observe(ctx, agentCtx, results)

	// Step 6: Reflect.
	if o.cfg.EnableReflection {
		if reflection := o.reflect(agentCtx, plan, observation); reflection != nil {
			o.log.Debug("reflection", "summary", reflection.Summary)
		}
	}

	// Step 7: Persist.
	o.persistMemory(ctx, observation)

	run.Status = types.RunStatusCompleted
	run.LatencyMs = time.Since(startTime).Milliseconds()
	outputBytes, _ := json.Marshal(observation)
	run.OutputDigest = hashDigest(outputBytes)
	o.saveRun(ctx, run)

	o.mu.Lock()
	o.lastRunID = runID
	o.lastRunAt = time.Now()
	o.runCount++
	o.mu.Unlock()

	span.SetStatus(codes.Ok, "completed")
	observability.RecordRun(types.RunStatusCompleted, time.Since(startTime))

	o.log.Debug("run completed",
		"run_id", runID,
		"actions", len(plan.Actions),
		"latency_ms", run.LatencyMs)
	return nil
}

// sense reads the room state and recent events through the tool registry.
func (o *Orchestrator) sense(ctx context.Context, runID string) (*types.AgentContext, error) {
	stateRaw, err := o.callTool(ctx, string(types.ActionGetRoomState), map[string]any{
		"room_id": o.roomID,
	})
	if err != nil {
		return nil, fmt.Errorf("get room state: %w", err)
	}
	var roomState types.RoomState
	if err := json.Unmarshal(stateRaw, &roomState); err != nil {
		return nil, fmt.Errorf("unmarshal room state: %w", err)
	}

	sinceSeq := roomState.LastSeq - int64(o.cfg.ShortTermMemorySize)
	if sinceSeq < 0 {
		sinceSeq = 0
	}
	eventsRaw, err := o.callTool(ctx, string(types.ActionGetRecentEvents), map[string]any{
		"room_id":   o.roomID,
		"since_seq": sinceSeq,
		"limit":     o.cfg.ShortTermMemorySize,
	})
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	var events []types.Event
	if err := json.Unmarshal(eventsRaw, &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}

	var pendingInputs []types.PendingInput
	for userID, player := range roomState.Players {
		if player.Alive && !player.IsDM {
			pendingInputs = append(pendingInputs, types.PendingInput{
				UserID:     userID,
				ActionType: "awaiting_action",
			})
		}
	}

	return &types.AgentContext{
		RoomID:        o.roomID,
		RunID:         runID,
		Phase:         roomState.Phase,
		RecentEvents:  events,
		PendingInputs: pendingInputs,
		Timers:        roomState.Timers,
		StartTime:     time.Now(),
		MemoryContext: &types.MemoryContext{ShortTerm: events},
	}, nil
}

// buildContext augments the sensed context with retrieval, the game summary
// and player models.
func (o *Orchestrator) buildContext(ctx context.Context, agentCtx *types.AgentContext) (*types.MemoryContext, error) {
	memCtx := &types.MemoryContext{
		ShortTerm:    agentCtx.MemoryContext.ShortTerm,
		PlayerModels: make(map[string]types.PlayerModel),
	}

	memCtx.LongTerm = o.memory.RetrieveRelevant(ctx, o.roomID, buildQueryFromContext(agentCtx), 5)

	summary, err := o.memory.GetGameSummary(ctx, o.roomID)
	if err != nil {
		o.log.Warn("failed to get game summary", "error", err)
	} else {
		memCtx.GameSummary = summary
	}

	if o.cfg.EnablePlayerModeling {
		models, err := o.memory.GetPlayerModels(ctx, o.roomID)
		if err != nil {
			o.log.Warn("failed to get player models", "error", err)
		} else if models != nil {
			memCtx.PlayerModels = models
		}
	}

	return memCtx, nil
}

// plan consults the scheduled sub-agents and merges their contributions.
func (o *Orchestrator) plan(ctx context.Context, agentCtx *types.AgentContext) (*types.Plan, error) {
	contributions := make(map[string]*types.AgentOutput)

	consult := func(agent types.SubAgent) {
		output, err := agent.Execute(ctx, agentCtx)
		if err != nil {
			o.log.Warn("sub-agent failed", "agent", agent.Name(), "error", err)
			return
		}
		contributions[agent.Name()] = output
	}

	// The moderator runs every iteration; the rest are gated on the window.
	consult(o.moderator)
	if needsRulesLookup(agentCtx) {
		consult(o.rules)
	}
	if needsNarration(agentCtx) {
		consult(o.narrator)
	}
	if needsSummary(agentCtx) {
		consult(o.summarizer)
	}
	if o.cfg.EnablePlayerModeling {
		consult(o.playerModeler)
	}

	return o.mergeContributions(contributions), nil
}

// mergeContributions combines agent outputs in fixed priority order:
// moderator controls flow, rules trumps wording, narration last.
func (o *Orchestrator) mergeContributions(contributions map[string]*types.AgentOutput) *types.Plan {
	plan := &types.Plan{
		ID:        uuid.NewString(),
		RoomID:    o.roomID,
		Actions:   []types.Action{},
		CreatedAt: time.Now(),
	}

	priorityOrder := []string{"moderator", "rules", "narrator", "summarizer", "player_modeler"}
	for _, agentName := range priorityOrder {
		output, ok := contributions[agentName]
		if !ok || output == nil {
			continue
		}
		plan.Actions = append(plan.Actions, output.Actions...)
		if plan.Reasoning == "" && output.Message != "" {
			plan.Reasoning = output.Message
		}
	}

	if len(plan.Actions) > o.cfg.MaxActionsPerRun {
		plan.Actions = plan.Actions[:o.cfg.MaxActionsPerRun]
	}
	return plan
}

// executeActions runs each planned action with a per-action timeout and a
// bounded linear-backoff retry.
func (o *Orchestrator) executeActions(ctx context.Context, runID string, actions []types.Action) ([]types.ActionResult, []types.ToolCallAudit) {
	results := make([]types.ActionResult, 0, len(actions))
	toolCalls := make([]types.ToolCallAudit, 0, len(actions))

	for _, action := range actions {
		actionCtx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
		startTime := time.Now()

		toolCall := types.ToolCallAudit{
			ID:        uuid.NewString(),
			RunID:     runID,
			ToolName:  string(action.Type),
			Args:      action.Args,
			CreatedAt: startTime,
		}

		var execResult mcp.ToolResult
		for attempt := 0; attempt <= o.cfg.MaxRetriesPerAction; attempt++ {
			execResult = o.tools.Invoke(actionCtx, mcp.ToolCall{
				ID:         uuid.NewString(),
				ToolName:   string(action.Type),
				Parameters: action.Args,
				Timestamp:  time.Now().UnixMilli(),
			})
			if execResult.Success {
				break
			}
			if attempt < o.cfg.MaxRetriesPerAction {
				time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			}
		}

		duration := time.Since(startTime)
		toolCall.DurationMs = duration.Milliseconds()

		result := types.ActionResult{
			ActionID:  action.ID,
			Success:   execResult.Success,
			Duration:  duration,
			Timestamp: time.Now(),
		}
		if execResult.Success {
			result.Output = execResult.Result
			toolCall.Result = execResult.Result
		} else {
			result.Error = execResult.Error
			toolCall.Error = execResult.Error
		}

		results = append(results, result)
		toolCalls = append(toolCalls, toolCall)

		if o.runStore != nil {
			if err := o.runStore.SaveToolCall(ctx, toolCall); err != nil {
				o.log.Warn("failed to save tool call", "error", err)
			}
		}
		cancel()
	}

	return results, toolCalls
}

// observe interprets execution results and pulls any new events.
func (o *Orchestrator) observe(ctx context.Context, agentCtx *types.AgentContext, results []types.ActionResult) *types.Observation {
	obs := &types.Observation{
		RoomID:    o.roomID,
		Results:   results,
		Timestamp: time.Now(),
	}

	for _, r := range results {
		if r.Success {
			obs.StateChanged = true
			break
		}
	}

	shortTerm := agentCtx.MemoryContext.ShortTerm
	if obs.StateChanged && len(shortTerm) > 0 {
		eventsRaw, err := o.callTool(ctx, string(types.ActionGetRecentEvents), map[string]any{
			"room_id":   o.roomID,
			"since_seq": shortTerm[len(shortTerm)-1].Seq,
			"limit":     20,
		})
		if err == nil {
			var events []types.Event
			if json.Unmarshal(eventsRaw, &events) == nil {
				obs.NewEvents = events
			}
		}
	}

	return obs
}

// reflect produces a short self-assessment of the run.
func (o *Orchestrator) reflect(agentCtx *types.AgentContext, plan *types.Plan, obs *types.Observation) *types.Reflection {
	successCount, failureCount := 0, 0
	for _, r := range obs.Results {
		if r.Success {
			successCount++
		} else {
			failureCount++
		}
	}

	reflection := &types.Reflection{
		RoomID:    o.roomID,
		Summary:   fmt.Sprintf("Executed %d actions: %d succeeded, %d failed", len(obs.Results), successCount, failureCount),
		CreatedAt: time.Now(),
	}
	if failureCount > 0 {
		reflection.Lessons = append(reflection.Lessons, "Some actions failed - consider adjusting strategy")
	}
	if obs.StateChanged {
		reflection.Lessons = append(reflection.Lessons, "State changed successfully")
	}
	return reflection
}

// persistMemory stores a short textual entry per newly observed event.
func (o *Orchestrator) persistMemory(ctx context.Context, obs *types.Observation) {
	for _, event := range obs.NewEvents {
		o.memory.Store(ctx, o.roomID, types.MemoryEntry{
			ID:        uuid.NewString(),
			Type:      types.MemoryTypeEvent,
			Content:   fmt.Sprintf("[%s] %s: %s", event.EventType, event.ActorUserID, string(event.Payload)),
			CreatedAt: time.Now(),
		})
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run types.AgentRun) {
	if o.runStore == nil {
		return
	}
	if err := o.runStore.SaveRun(ctx, run); err != nil {
		o.log.Error("failed to save run", "error", err)
	}
}

func (o *Orchestrator) callTool(ctx context.Context, name string, args any) (json.RawMessage, error) {
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %s: %w", name, err)
	}
	result := o.tools.Invoke(ctx, mcp.ToolCall{
		ID:         uuid.NewString(),
		ToolName:   name,
		Parameters: params,
		Timestamp:  time.Now().UnixMilli(),
	})
	if !result.Success {
		return nil, fmt.Errorf("%s: %s", name, result.Error)
	}
	return result.Result, nil
}

func hashDigest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:8])
}

func buildQueryFromContext(agentCtx *types.AgentContext) string {
	if len(agentCtx.RecentEvents) > 0 {
		lastEvent := agentCtx.RecentEvents[len(agentCtx.RecentEvents)-1]
		return fmt.Sprintf("phase:%s event:%s", agentCtx.Phase, lastEvent.EventType)
	}
	return fmt.Sprintf("phase:%s", agentCtx.Phase)
}

func needsRulesLookup(agentCtx *types.AgentContext) bool {
	for _, e := range agentCtx.RecentEvents {
		switch e.EventType {
		case "ability.used", "dispute", "rule_question":
			return true
		}
	}
	return false
}

func needsNarration(agentCtx *types.AgentContext) bool {
	for _, e := range agentCtx.RecentEvents {
		switch e.EventType {
		case "game.started", "phase.day", "phase.night", "execution.resolved", "game.ended":
			return true
		}
	}
	return false
}

func needsSummary(agentCtx *types.AgentContext) bool {
	for _, e := range agentCtx.RecentEvents {
		if e.EventType == "phase.night" {
			return true
		}
	}
	return false
}

// UpdateGameState replaces the orchestrator's mirror of the engine state.
// The engine stays authoritative; the mirror only informs summaries.
func (o *Orchestrator) UpdateGameState(snapshot types.EngineSnapshot) {
	state := &types.RoomState{
		RoomID:   snapshot.RoomID,
		Phase:    snapshot.Phase,
		DayCount: snapshot.DayCount,
		Players:  make(map[string]types.PlayerState, len(snapshot.Players)),
		LastSeq:  snapshot.LastSeq,
	}
	for _, p := range snapshot.Players {
		state.Players[p.UserID] = p
	}
	state.Nominations = append(state.Nominations, snapshot.NominationQueue...)

	o.mu.Lock()
	o.gameState = state
	o.mu.Unlock()
}

// ProcessEvent generates a conversational response to a single event. The
// caller decides whether to broadcast it.
func (o *Orchestrator) ProcessEvent(ctx context.Context, description string) (string, bool, error) {
	if o.router == nil {
		return "", false, fmt.Errorf("model router not configured")
	}

	summary, _ := o.memory.GetGameSummary(ctx, o.roomID)
	prompt := description
	if summary != "" {
		prompt = "Game so far: " + summary + "\n\nNew event: " + description
	}

	messages := []llm.Message{
		llm.SystemMessage("You are the storyteller running a hidden-role village game. " +
			"React to the event in one or two sentences addressed to the players. " +
			"Never reveal hidden roles."),
		llm.UserMessage(prompt),
	}
	resp, err := o.router.Chat(ctx, llm.TaskDefault, messages, nil)
	if err != nil {
		return "", false, err
	}
	text := resp.Text()
	return text, text != "", nil
}

// GetSummary returns the stored recap, falling back to a synthetic one from
// the state mirror. forDM includes hidden roles.
func (o *Orchestrator) GetSummary(ctx context.Context, forDM bool) (string, error) {
	summary, err := o.memory.GetGameSummary(ctx, o.roomID)
	if err != nil {
		return "", err
	}
	if summary != "" && !forDM {
		return summary, nil
	}

	o.mu.RLock()
	state := o.gameState
	o.mu.RUnlock()
	if state == nil {
		return summary, nil
	}

	alive := 0
	var roles []string
	for _, p := range state.Players {
		if p.Alive {
			alive++
		}
		if forDM && p.Role != "" {
			roles = append(roles, fmt.Sprintf("%s=%s", p.Name, p.Role))
		}
	}

	out := fmt.Sprintf("Phase %s, day %d, %d/%d players alive.", state.Phase, state.DayCount, alive, len(state.Players))
	if summary != "" {
		out = summary + "\n" + out
	}
	if forDM && len(roles) > 0 {
		out += "\nRoles: " + fmt.Sprint(roles)
	}
	return out, nil
}

// AnalyzePlayers renders the stored player models as a report.
func (o *Orchestrator) AnalyzePlayers(ctx context.Context) (string, error) {
	models, err := o.memory.GetPlayerModels(ctx, o.roomID)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "No player data collected yet.", nil
	}

	report := "Player analysis:\n"
	for _, model := range models {
		report += fmt.Sprintf("- %s: %s", model.UserID, model.Playstyle)
		if len(model.VotingPatterns) > 0 {
			report += fmt.Sprintf(" (%v)", model.VotingPatterns)
		}
		report += "\n"
	}
	return report, nil
}
