package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/ravenwood/storyteller/pkg/types"
)

const dayIdleThreshold = 30 * time.Second

// Moderator keeps the game moving. It is fully deterministic: phase and
// timer inspection only, no model calls.
type Moderator struct {
	now func() time.Time
}

// NewModerator builds the moderator sub-agent.
func NewModerator() *Moderator {
	return &Moderator{now: time.Now}
}

func (m *Moderator) Name() string { return "moderator" }

func (m *Moderator) Description() string {
	return "Watches phase and timers, prompts idle rooms, closes votes and advances phases"
}

// Execute inspects the context and emits control-flow actions.
func (m *Moderator) Execute(ctx context.Context, agentCtx *types.AgentContext) (*types.AgentOutput, error) {
	out := &types.AgentOutput{AgentName: m.Name(), Confidence: 0.9}
	now := m.now()

	switch agentCtx.Phase {
	case types.PhaseDay:
		if !hasActiveNomination(agentCtx.RecentEvents) && m.roomIdleSince(agentCtx, now) {
			out.Actions = append(out.Actions, newAction(types.ActionSendPublicMessage, map[string]any{
				"room_id": agentCtx.RoomID,
				"message": "白天仍在继续，大家可以继续讨论或发起提名。",
			}, 1))
			out.Message = "room idle during day, prompting discussion"
		}
		if timerExpired(agentCtx.Timers, "day", now) {
			out.Actions = append(out.Actions, newAction(types.ActionAdvancePhase, map[string]any{
				"room_id": agentCtx.RoomID,
				"phase":   "night",
				"reason":  "day timer expired",
			}, 1))
			out.Message = "day timer expired, advancing to night"
		}

	case types.PhaseNomination:
		if timerExpired(agentCtx.Timers, "vote", now) {
			out.Actions = append(out.Actions, newAction(types.ActionToggleVoting, map[string]any{
				"room_id": agentCtx.RoomID,
				"enabled": false,
				"reason":  "vote timer expired",
			}, 1))
			out.Message = "vote timer expired, closing the vote"
		}

	case types.PhaseNight, types.PhaseFirstNight:
		for _, pending := range agentCtx.PendingInputs {
			prompt := fmt.Sprintf("请选择你的夜晚行动（%s）。", pending.ActionType)
			out.Actions = append(out.Actions, newAction(types.ActionSendPrivateMessage, map[string]any{
				"room_id":    agentCtx.RoomID,
				"to_user_id": pending.UserID,
				"message":    prompt,
			}, 2))
			out.Actions = append(out.Actions, newAction(types.ActionRequestConfirmation, map[string]any{
				"room_id":    agentCtx.RoomID,
				"to_user_id": pending.UserID,
				"prompt":     prompt,
			}, 2))
		}
		if len(agentCtx.PendingInputs) > 0 {
			out.Message = fmt.Sprintf("waiting on %d night actions", len(agentCtx.PendingInputs))
		}
		if timerExpired(agentCtx.Timers, "night", now) {
			out.Actions = append(out.Actions, newAction(types.ActionAdvancePhase, map[string]any{
				"room_id": agentCtx.RoomID,
				"phase":   "day",
				"reason":  "night timer expired",
			}, 1))
			out.Message = "night timer expired, advancing to day"
		}
	}

	return out, nil
}

// roomIdleSince reports whether the last observed event is older than the
// day idle threshold. An empty window counts as idle.
func (m *Moderator) roomIdleSince(agentCtx *types.AgentContext, now time.Time) bool {
	if len(agentCtx.RecentEvents) == 0 {
		return true
	}
	last := agentCtx.RecentEvents[len(agentCtx.RecentEvents)-1]
	return now.Sub(last.Timestamp) > dayIdleThreshold
}

func timerExpired(timers map[string]time.Time, name string, now time.Time) bool {
	deadline, ok := timers[name]
	if !ok || deadline.IsZero() {
		return false
	}
	return now.After(deadline)
}

// hasActiveNomination reports whether a nomination was created after the
// last resolution in the recent window.
func hasActiveNomination(events []types.Event) bool {
	active := false
	for _, ev := range events {
		switch ev.EventType {
		case "nomination.created":
			active = true
		case "execution.resolved", "nomination.resolved", "vote.closed":
			active = false
		}
	}
	return active
}

var _ types.SubAgent = (*Moderator)(nil)
