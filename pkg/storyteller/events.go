package storyteller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenwood/storyteller/pkg/observability"
	"github.com/ravenwood/storyteller/pkg/types"
)

// GameEvent is the agent's internal view of one engine event.
type GameEvent struct {
	Type        string
	Description string
	PlayerID    string
	Data        map[string]any
}

// OnEvent is the engine's entry point for every appended event. It filters
// self-echoes and lobby noise, refreshes the state mirror, then hands the
// event to the queue when one is configured, processing inline otherwise.
func (s *Storyteller) OnEvent(ctx context.Context, ev types.Event, state any) {
	if !s.Enabled() {
		return
	}
	// The agent's own chat output comes back through the stream; reacting
	// to it would loop forever.
	if (ev.ActorUserID == types.ActorStoryteller || ev.ActorUserID == "auto-dm") &&
		(ev.EventType == "public.chat" || ev.EventType == "whisper.sent") {
		return
	}
	switch ev.EventType {
	case "player.joined", "player.left", "seat.claimed", "room.settings.changed":
		return
	}

	if snapshot, ok := state.(types.EngineSnapshot); ok {
		s.noteSnapshot(snapshot)
	}

	if s.publishAsyncTask(ctx, ev) {
		observability.RecordEventIngested("queued")
		return
	}
	observability.RecordEventIngested("inline")
	if err := s.ProcessQueuedEvent(ctx, ev); err != nil {
		s.log.Error("failed to process event", "error", err, "event_type", ev.EventType)
	}
}

// ProcessQueuedEvent executes an event that was dequeued by a worker. It
// bypasses queue publish to avoid enqueue loops.
func (s *Storyteller) ProcessQueuedEvent(ctx context.Context, ev types.Event) error {
	if !s.Enabled() {
		return nil
	}

	tracer := observability.Tracer("storyteller.events")
	ctx, span := tracer.Start(ctx, observability.SpanEventProcess,
		trace.WithAttributes(
			attribute.String(observability.AttrRoomID, ev.RoomID),
			attribute.String(observability.AttrEventType, ev.EventType),
		))
	defer span.End()

	event := convertEvent(ev)
	s.log.Info("processing event",
		"type", event.Type,
		"description", event.Description)

	s.injectRuleContext(ctx, &event)

	processCtx, cancel := context.WithTimeout(ctx, s.eventTimeout)
	defer cancel()

	message, shouldSpeak, err := s.orchestrator.ProcessEvent(processCtx, event.Description)
	if err != nil {
		span.RecordError(err)
		if fallback := defaultMessageForEvent(ev.EventType); fallback != "" {
			s.sendMessage(ctx, ev.RoomID, fallback)
		}
		return err
	}

	if shouldSpeak && message != "" {
		s.sendMessage(ctx, ev.RoomID, message)
	}
	return nil
}

func (s *Storyteller) publishAsyncTask(ctx context.Context, ev types.Event) bool {
	s.mu.RLock()
	taskQueue := s.taskQueue
	s.mu.RUnlock()
	if taskQueue == nil {
		return false
	}

	task := types.AsyncEventTask{
		Type:   eventTaskType,
		RoomID: ev.RoomID,
		Event:  ev,
	}
	if err := taskQueue.Publish(ctx, task); err != nil {
		s.log.Warn("failed to enqueue event task, falling back to inline processing",
			"error", err, "event_type", ev.EventType)
		return false
	}
	return true
}

// convertEvent maps a wire event onto the agent's internal categories.
func convertEvent(ev types.Event) GameEvent {
	event := GameEvent{
		Type:        ev.EventType,
		Description: ev.EventType,
		Data:        make(map[string]any),
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err == nil {
		event.Data = payload
	}

	switch ev.EventType {
	case "phase.first_night":
		event.Type = "phase_change"
		event.Data["new_phase"] = "night"
		event.Data["night_type"] = "first_night"
	case "phase.night":
		event.Type = "phase_change"
		event.Data["new_phase"] = "night"
	case "phase.day":
		event.Type = "phase_change"
		event.Data["new_phase"] = "day"
	case "phase.nomination":
		event.Type = "phase_change"
		event.Data["new_phase"] = "nomination"
	case "nomination.created":
		event.Type = "nomination"
		event.Data["nominator"] = ev.ActorUserID
	case "vote.cast":
		event.Type = "vote"
	case "execution.resolved":
		event.Type = "death"
		event.Data["cause"] = "execution"
		if executed, ok := event.Data["executed"]; ok {
			event.Data["player_name"] = executed
		}
	case "game.started", "game.ended":
		event.Type = "phase_change"
	}

	event.PlayerID = ev.ActorUserID
	event.Description = formatEventDescription(ev.EventType, event.Data)
	return event
}

// injectRuleContext enriches the event with relevant rule snippets under a
// tight deadline so retrieval never stalls the event path.
func (s *Storyteller) injectRuleContext(ctx context.Context, event *GameEvent) {
	if event == nil {
		return
	}
	s.mu.RLock()
	retriever := s.retriever
	s.mu.RUnlock()
	if retriever == nil {
		return
	}

	query := buildRuleQuery(*event)
	if query == "" {
		return
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()

	results, err := retriever.Retrieve(retrieveCtx, query, 2)
	if err != nil || len(results) == 0 {
		return
	}

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		if len(content) > 180 {
			content = content[:180] + "..."
		}
		snippets = append(snippets, content)
	}
	if len(snippets) == 0 {
		return
	}

	event.Data["rule_context"] = snippets
	event.Description = event.Description + "\nRelevant rule context:\n- " + strings.Join(snippets, "\n- ")
}

func buildRuleQuery(event GameEvent) string {
	switch event.Type {
	case "phase_change":
		if nightType, ok := event.Data["night_type"].(string); ok && nightType == "first_night" {
			return "first night setup rules in Blood on the Clocktower"
		}
		if phase, ok := event.Data["new_phase"].(string); ok && phase != "" {
			return "phase transition to " + phase + " in Blood on the Clocktower"
		}
		return "phase transition in Blood on the Clocktower"
	case "nomination":
		return "nomination and voting rules in Blood on the Clocktower"
	case "vote":
		return "voting threshold and ghost vote rules in Blood on the Clocktower"
	case "death":
		return "execution and death resolution rules in Blood on the Clocktower"
	default:
		return ""
	}
}

func formatEventDescription(eventType string, data map[string]any) string {
	switch eventType {
	case "phase.first_night":
		return "First night phase begins"
	case "phase.night":
		return "Night phase begins"
	case "phase.day":
		return "Day phase begins"
	case "phase.nomination":
		return "Nomination phase begins"
	case "nomination.created":
		return "A nomination has been made"
	case "vote.cast":
		return "A vote has been cast"
	case "execution.resolved":
		return "An execution has occurred"
	case "game.started":
		return "The game has started"
	case "game.ended":
		return "The game has ended"
	case "public.chat":
		sender, _ := data["sender_name"].(string)
		msg, _ := data["message"].(string)
		if sender == "" {
			sender = "Player"
		}
		return fmt.Sprintf("%s says: %s", sender, msg)
	case "whisper.sent":
		sender, _ := data["sender_name"].(string)
		msg, _ := data["message"].(string)
		if sender == "" {
			sender = "Player"
		}
		return fmt.Sprintf("%s whispers to DM: %s", sender, msg)
	default:
		return eventType
	}
}

// defaultMessageForEvent is the deterministic fallback used when the model
// path fails on an event the players still need to hear about.
func defaultMessageForEvent(eventType string) string {
	switch eventType {
	case "phase.day":
		return "☀️ 天亮了，开始讨论并寻找隐藏的邪恶吧。"
	case "phase.night":
		return "🌙 夜幕降临，请等待夜晚行动结算。"
	case "nomination.created":
		return "📣 提名已发起，请进行陈述与投票。"
	case "game.started":
		return "🎲 游戏开始，愿好运站在你这边。"
	case "game.ended":
		return "🏁 对局结束，感谢各位参与。"
	default:
		return ""
	}
}
