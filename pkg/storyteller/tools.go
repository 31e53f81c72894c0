package storyteller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ravenwood/storyteller/pkg/mcp"
	"github.com/ravenwood/storyteller/pkg/types"
)

// initRegistry registers the canonical tool set. Write tools translate into
// command envelopes whose idempotency key equals the command id, so a
// retried dispatch collapses to a single engine effect. Read tools serve
// the orchestrator's sense step.
func (s *Storyteller) initRegistry() {
	registry := mcp.NewRegistry()
	minLen, maxLen := 1, 2000
	phaseEnum := []string{"day", "night", "nomination"}

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "send_public_message",
		Description: "Send a public message into a room",
		Category:    mcp.CategoryCommunication,
		Parameters: map[string]mcp.ParamSchema{
			"room_id":  {Type: "string", MinLength: &minLen},
			"message":  {Type: "string", MinLength: &minLen, MaxLength: &maxLen},
			"metadata": {Type: "object"},
		},
		Required: []string{"room_id", "message"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID   string         `json:"room_id"`
			Message  string         `json:"message"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		cmdID := newCommandID()
		body := map[string]any{
			"message": p.Message,
			"from":    "auto-dm",
		}
		if len(p.Metadata) > 0 {
			body["metadata"] = p.Metadata
		}
		payload, _ := json.Marshal(body)
		cmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "public_chat",
			ActorUserID:    types.ActorStoryteller,
			Payload:        payload,
		}
		if err := s.dispatchCommand(cmd); err != nil {
			return nil, err
		}
		return map[string]string{"status": "sent"}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "send_private_message",
		Description: "Send a private whisper to one player",
		Category:    mcp.CategoryCommunication,
		Parameters: map[string]mcp.ParamSchema{
			"room_id":    {Type: "string", MinLength: &minLen},
			"to_user_id": {Type: "string", MinLength: &minLen},
			"message":    {Type: "string", MinLength: &minLen, MaxLength: &maxLen},
		},
		Required: []string{"room_id", "to_user_id", "message"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID   string `json:"room_id"`
			ToUserID string `json:"to_user_id"`
			Message  string `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		cmdID := newCommandID()
		payload, _ := json.Marshal(map[string]string{
			"to_user_id": p.ToUserID,
			"message":    p.Message,
			"from":       "auto-dm",
		})
		cmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "whisper",
			ActorUserID:    types.ActorStoryteller,
			Payload:        payload,
		}
		if err := s.dispatchCommand(cmd); err != nil {
			return nil, err
		}
		return map[string]string{"status": "sent"}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "request_player_confirmation",
		Description: "Ask a player to confirm or reject an action",
		Category:    mcp.CategoryModeration,
		Parameters: map[string]mcp.ParamSchema{
			"room_id":    {Type: "string", MinLength: &minLen},
			"to_user_id": {Type: "string", MinLength: &minLen},
			"prompt":     {Type: "string", MinLength: &minLen, MaxLength: &maxLen},
		},
		Required: []string{"room_id", "to_user_id", "prompt"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID   string `json:"room_id"`
			ToUserID string `json:"to_user_id"`
			Prompt   string `json:"prompt"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}

		cmdID := newCommandID()
		whisperPayload, _ := json.Marshal(map[string]string{
			"to_user_id": p.ToUserID,
			"message":    "[确认请求] " + p.Prompt + "（回复 yes/no）",
			"from":       "auto-dm",
		})
		whisperCmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "whisper",
			ActorUserID:    types.ActorStoryteller,
			Payload:        whisperPayload,
		}
		if err := s.dispatchCommand(whisperCmd); err != nil {
			return nil, err
		}

		eventCmdID := newCommandID()
		eventPayload, _ := json.Marshal(map[string]any{
			"event_type": "confirmation.requested",
			"data": map[string]string{
				"to_user_id": p.ToUserID,
				"prompt":     p.Prompt,
			},
		})
		eventCmd := types.CommandEnvelope{
			CommandID:      eventCmdID,
			IdempotencyKey: eventCmdID,
			RoomID:         p.RoomID,
			Type:           "write_event",
			ActorUserID:    types.ActorStoryteller,
			Payload:        eventPayload,
		}
		if err := s.dispatchCommand(eventCmd); err != nil {
			return nil, err
		}
		return map[string]string{"status": "requested"}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "toggle_voting",
		Description: "Enable or disable voting mode",
		Category:    mcp.CategoryGameControl,
		Parameters: map[string]mcp.ParamSchema{
			"room_id": {Type: "string", MinLength: &minLen},
			"enabled": {Type: "boolean"},
			"reason":  {Type: "string", MinLength: &minLen, MaxLength: &maxLen},
		},
		Required: []string{"room_id", "enabled"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID  string `json:"room_id"`
			Enabled bool   `json:"enabled"`
			Reason  string `json:"reason"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}

		targetPhase := "day"
		if p.Enabled {
			targetPhase = "nomination"
		}
		cmdID := newCommandID()
		payload, _ := json.Marshal(map[string]string{
			"phase":  targetPhase,
			"reason": p.Reason,
		})
		cmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "advance_phase",
			ActorUserID:    types.ActorStoryteller,
			Payload:        payload,
		}
		if err := s.dispatchCommand(cmd); err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated", "enabled": p.Enabled}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "advance_phase",
		Description: "Advance game phase deterministically",
		Category:    mcp.CategoryGameControl,
		Parameters: map[string]mcp.ParamSchema{
			"room_id": {Type: "string", MinLength: &minLen},
			"phase":   {Type: "string", Enum: phaseEnum},
			"reason":  {Type: "string", MinLength: &minLen, MaxLength: &maxLen},
		},
		Required: []string{"room_id", "phase"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID string `json:"room_id"`
			Phase  string `json:"phase"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		cmdID := newCommandID()
		payload, _ := json.Marshal(map[string]string{
			"phase":  p.Phase,
			"reason": p.Reason,
		})
		cmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "advance_phase",
			ActorUserID:    types.ActorStoryteller,
			Payload:        payload,
		}
		if err := s.dispatchCommand(cmd); err != nil {
			return nil, err
		}
		return map[string]string{"status": "advanced", "phase": p.Phase}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "write_event",
		Description: "Write an auditable custom event into the immutable stream",
		Category:    mcp.CategoryModeration,
		Parameters: map[string]mcp.ParamSchema{
			"room_id":    {Type: "string", MinLength: &minLen},
			"event_type": {Type: "string", MinLength: &minLen},
			"data":       {Type: "object"},
		},
		Required: []string{"room_id", "event_type"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID    string         `json:"room_id"`
			EventType string         `json:"event_type"`
			Data      map[string]any `json:"data"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Data == nil {
			p.Data = map[string]any{}
		}
		cmdID := newCommandID()
		payload, _ := json.Marshal(map[string]any{
			"event_type": p.EventType,
			"data":       normalizeEventData(p.Data),
		})
		cmd := types.CommandEnvelope{
			CommandID:      cmdID,
			IdempotencyKey: cmdID,
			RoomID:         p.RoomID,
			Type:           "write_event",
			ActorUserID:    types.ActorStoryteller,
			Payload:        payload,
		}
		if err := s.dispatchCommand(cmd); err != nil {
			return nil, err
		}
		return map[string]string{"status": "written", "event_type": p.EventType}, nil
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "get_room_state",
		Description: "Read the authoritative room snapshot",
		Category:    mcp.CategoryInformation,
		Parameters: map[string]mcp.ParamSchema{
			"room_id": {Type: "string", MinLength: &minLen},
		},
		Required: []string{"room_id"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		s.mu.RLock()
		stateGetter := s.stateGetter
		mirror := s.lastSnapshot
		s.mu.RUnlock()
		if stateGetter != nil {
			snapshot, ok := stateGetter().(types.EngineSnapshot)
			if !ok {
				return nil, errors.New("state getter returned an unexpected type")
			}
			return snapshotToRoomState(snapshot), nil
		}
		if mirror != nil {
			return snapshotToRoomState(*mirror), nil
		}
		return nil, errors.New("engine state is not available yet")
	})

	_ = registry.Register(mcp.ToolDefinition{
		Name:        "get_recent_events",
		Description: "Read recent events from the append-only stream",
		Category:    mcp.CategoryInformation,
		Parameters: map[string]mcp.ParamSchema{
			"room_id":   {Type: "string", MinLength: &minLen},
			"since_seq": {Type: "integer"},
			"limit":     {Type: "integer"},
		},
		Required: []string{"room_id"},
	}, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			RoomID   string `json:"room_id"`
			SinceSeq int64  `json:"since_seq"`
			Limit    int    `json:"limit"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		s.mu.RLock()
		source := s.eventSource
		s.mu.RUnlock()
		if source == nil {
			return nil, errors.New("event source is not configured")
		}
		if p.Limit <= 0 {
			p.Limit = 50
		}
		events, err := source.ListEvents(ctx, p.RoomID, p.SinceSeq, p.Limit)
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []types.Event{}
		}
		return events, nil
	})

	s.registry = registry
}

func snapshotToRoomState(snapshot types.EngineSnapshot) types.RoomState {
	state := types.RoomState{
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
	return state
}

// normalizeEventData flattens arbitrary values into strings for the engine's
// event payload contract.
func normalizeEventData(data map[string]any) map[string]string {
	normalized := make(map[string]string, len(data))
	for k, v := range data {
		switch vv := v.(type) {
		case string:
			normalized[k] = vv
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			normalized[k] = string(b)
		}
	}
	return normalized
}
