package agents

import (
	"context"

	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

// Narrator turns key game moments into atmospheric prose. Every narration is
// tagged so clients can render it distinctly from moderation messages.
type Narrator struct {
	router Chatter
}

// NewNarrator builds the narrator sub-agent.
func NewNarrator(router Chatter) *Narrator {
	return &Narrator{router: router}
}

func (n *Narrator) Name() string { return "narrator" }

func (n *Narrator) Description() string {
	return "Produces atmospheric narration for game openings, phase changes, executions and endings"
}

// narrationWorthy is the set of event types that trigger narration.
func narrationWorthy(eventType string) bool {
	switch eventType {
	case "game.started", "phase.day", "phase.night", "execution.resolved", "game.ended":
		return true
	}
	return false
}

// Execute narrates the most recent narration-worthy event in the window.
func (n *Narrator) Execute(ctx context.Context, agentCtx *types.AgentContext) (*types.AgentOutput, error) {
	out := &types.AgentOutput{AgentName: n.Name(), Confidence: 0.6}

	var target *types.Event
	for i := len(agentCtx.RecentEvents) - 1; i >= 0; i-- {
		if narrationWorthy(agentCtx.RecentEvents[i].EventType) {
			target = &agentCtx.RecentEvents[i]
			break
		}
	}
	if target == nil {
		return out, nil
	}

	narration := n.narrate(ctx, *target)
	if narration == "" {
		return out, nil
	}

	out.Actions = append(out.Actions, newAction(types.ActionSendPublicMessage, map[string]any{
		"room_id":  agentCtx.RoomID,
		"message":  narration,
		"metadata": map[string]string{"type": "narration"},
	}, 3))
	out.Message = "narrated " + target.EventType
	return out, nil
}

func (n *Narrator) narrate(ctx context.Context, ev types.Event) string {
	if n.router != nil {
		messages := []llm.Message{
			llm.SystemMessage("You are the storyteller of a gothic village plagued by a hidden demon. " +
				"Narrate the given moment in two to three evocative sentences. Never reveal roles or strategy."),
			llm.UserMessage(describeEvent(ev)),
		}
		resp, err := n.router.Chat(ctx, llm.TaskNarrator, messages, nil)
		if err == nil && resp.Text() != "" {
			return resp.Text()
		}
		if err != nil {
			logger.Get().Warn("narrator model call failed, using fallback line",
				"event_type", ev.EventType, "error", err)
		}
	}
	return fallbackNarration(ev.EventType)
}

func fallbackNarration(eventType string) string {
	switch eventType {
	case "phase.day":
		return "☀️ 天亮了，开始讨论并寻找隐藏的邪恶吧。"
	case "phase.night":
		return "🌙 夜幕降临，请等待夜晚行动结算。"
	case "game.started":
		return "🎲 游戏开始，愿好运站在你这边。"
	case "game.ended":
		return "🏁 对局结束，感谢各位参与。"
	case "execution.resolved":
		return "⚖️ 处决已经执行，村庄陷入沉默。"
	default:
		return ""
	}
}

var _ types.SubAgent = (*Narrator)(nil)
