// Package agents holds the five specialist sub-agents the orchestrator
// consults each run: moderator, rules, narrator, summarizer and player
// modeler. Each one contributes actions or messages; none of them talks to
// the engine directly.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/types"
)

// Chatter is the slice of the model router sub-agents need.
type Chatter interface {
	Chat(ctx context.Context, kind llm.TaskKind, messages []llm.Message, tools []llm.ToolDefinition) (*llm.ChatResponse, error)
}

// RulesSearcher is the slice of the memory manager the rules agent needs.
type RulesSearcher interface {
	SearchRules(ctx context.Context, query string, topK int) []types.MemoryEntry
}

// SummarySink persists game recaps.
type SummarySink interface {
	SaveGameSummary(ctx context.Context, roomID, summary string) error
}

// ProfileSink persists player behavioral profiles.
type ProfileSink interface {
	SavePlayerModel(ctx context.Context, roomID string, model types.PlayerModel) error
}

func newAction(actionType types.ActionType, args map[string]any, priority int) types.Action {
	raw, _ := json.Marshal(args)
	return types.Action{
		ID:       uuid.NewString(),
		Type:     actionType,
		Args:     raw,
		Priority: priority,
	}
}

// describeEvent renders one event as a short human-readable line.
func describeEvent(ev types.Event) string {
	var payload map[string]any
	_ = json.Unmarshal(ev.Payload, &payload)

	switch ev.EventType {
	case "public.chat":
		sender, _ := payload["sender_name"].(string)
		msg, _ := payload["message"].(string)
		if sender == "" {
			sender = "Player"
		}
		return fmt.Sprintf("%s says: %s", sender, msg)
	case "nomination.created":
		nominee, _ := payload["nominee"].(string)
		if nominee != "" {
			return fmt.Sprintf("%s nominated %s", ev.ActorUserID, nominee)
		}
		return fmt.Sprintf("%s made a nomination", ev.ActorUserID)
	case "vote.cast":
		vote, _ := payload["vote"].(string)
		if vote != "" {
			return fmt.Sprintf("%s voted %s", ev.ActorUserID, vote)
		}
		return fmt.Sprintf("%s voted", ev.ActorUserID)
	case "execution.resolved":
		executed, _ := payload["executed"].(string)
		if executed != "" {
			return fmt.Sprintf("%s was executed", executed)
		}
		return "an execution was resolved"
	case "game.started":
		return "the game started"
	case "game.ended":
		return "the game ended"
	case "phase.day":
		return "day broke"
	case "phase.night":
		return "night fell"
	default:
		return ev.EventType
	}
}

// eventText extracts the free-text body of an event, used as a rules query.
func eventText(ev types.Event) string {
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"question", "content", "message", "text"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
