package agents

import (
	"context"
	"strings"

	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

const summaryEventWindow = 20

// Summarizer writes a short recap when night falls, so players returning to
// the table can catch up on the day's discussion.
type Summarizer struct {
	router Chatter
	sink   SummarySink

	// PostPublicly also sends the recap into the room chat.
	PostPublicly bool
}

// NewSummarizer builds the summarizer sub-agent.
func NewSummarizer(router Chatter, sink SummarySink) *Summarizer {
	return &Summarizer{router: router, sink: sink}
}

func (s *Summarizer) Name() string { return "summarizer" }

func (s *Summarizer) Description() string {
	return "Condenses the day's chat, nominations and votes into a short recap at nightfall"
}

// summarizable picks the event types worth recapping.
func summarizable(eventType string) bool {
	switch eventType {
	case "public.chat", "nomination.created", "vote.cast", "execution.resolved":
		return true
	}
	return false
}

// Execute builds a bullet list from recent events, asks the model for a
// recap and persists it. The bullet list itself is the fallback recap when
// the model call fails.
func (s *Summarizer) Execute(ctx context.Context, agentCtx *types.AgentContext) (*types.AgentOutput, error) {
	out := &types.AgentOutput{AgentName: s.Name(), Confidence: 0.7}

	var bullets []string
	for _, ev := range agentCtx.RecentEvents {
		if summarizable(ev.EventType) {
			bullets = append(bullets, "- "+describeEvent(ev))
		}
	}
	if len(bullets) == 0 {
		return out, nil
	}
	if len(bullets) > summaryEventWindow {
		bullets = bullets[len(bullets)-summaryEventWindow:]
	}
	bulletList := strings.Join(bullets, "\n")

	recap := bulletList
	if s.router != nil {
		messages := []llm.Message{
			llm.SystemMessage("Summarize the day's happenings in a social deduction game " +
				"in at most 150 words. Neutral tone, no role speculation."),
			llm.UserMessage(bulletList),
		}
		resp, err := s.router.Chat(ctx, llm.TaskSummarizer, messages, nil)
		if err == nil && resp.Text() != "" {
			recap = resp.Text()
		} else if err != nil {
			logger.Get().Warn("summarizer model call failed, persisting bullet list",
				"room_id", agentCtx.RoomID, "error", err)
		}
	}

	if s.sink != nil {
		if err := s.sink.SaveGameSummary(ctx, agentCtx.RoomID, recap); err != nil {
			logger.Get().Warn("failed to persist game summary",
				"room_id", agentCtx.RoomID, "error", err)
		}
	}

	if s.PostPublicly {
		out.Actions = append(out.Actions, newAction(types.ActionSendPublicMessage, map[string]any{
			"room_id": agentCtx.RoomID,
			"message": "📜 今日回顾：\n" + recap,
		}, 4))
	}
	out.Message = "saved day recap"
	return out, nil
}

var _ types.SubAgent = (*Summarizer)(nil)
