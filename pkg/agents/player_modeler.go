package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

// PlayerModeler maintains lightweight behavioral profiles per player:
// message and nomination counts, voting tendencies, a playstyle tag.
// Profiles feed back into planning context on later runs.
type PlayerModeler struct {
	sink ProfileSink
}

// NewPlayerModeler builds the player-modeler sub-agent.
func NewPlayerModeler(sink ProfileSink) *PlayerModeler {
	return &PlayerModeler{sink: sink}
}

func (p *PlayerModeler) Name() string { return "player_modeler" }

func (p *PlayerModeler) Description() string {
	return "Tracks per-player activity counters and derives playstyle and voting-pattern tags"
}

type playerCounters struct {
	messages    int
	nominations int
	votes       int
	yesVotes    int
}

// Execute aggregates counters over the recent window and persists updated
// profiles.
func (p *PlayerModeler) Execute(ctx context.Context, agentCtx *types.AgentContext) (*types.AgentOutput, error) {
	out := &types.AgentOutput{AgentName: p.Name(), Confidence: 0.5}

	counters := make(map[string]*playerCounters)
	bump := func(userID string) *playerCounters {
		c, ok := counters[userID]
		if !ok {
			c = &playerCounters{}
			counters[userID] = c
		}
		return c
	}

	for _, ev := range agentCtx.RecentEvents {
		if ev.ActorUserID == "" || ev.ActorUserID == types.ActorStoryteller {
			continue
		}
		switch ev.EventType {
		case "public.chat", "whisper.sent":
			bump(ev.ActorUserID).messages++
		case "nomination.created":
			bump(ev.ActorUserID).nominations++
		case "vote.cast":
			c := bump(ev.ActorUserID)
			c.votes++
			if isYesVote(ev.Payload) {
				c.yesVotes++
			}
		}
	}

	saved := 0
	for userID, c := range counters {
		model := types.PlayerModel{
			UserID:         userID,
			Playstyle:      derivePlaystyle(c),
			VotingPatterns: deriveVotingPatterns(c),
			LastUpdated:    time.Now(),
		}
		if total := c.messages + c.nominations + c.votes; total > 0 {
			model.ParticipationRate = float64(total) / float64(len(agentCtx.RecentEvents))
		}
		if p.sink != nil {
			if err := p.sink.SavePlayerModel(ctx, agentCtx.RoomID, model); err != nil {
				logger.Get().Warn("failed to persist player model",
					"room_id", agentCtx.RoomID, "user_id", userID, "error", err)
				continue
			}
		}
		saved++
	}

	if saved > 0 {
		out.Message = fmt.Sprintf("updated %d player models", saved)
	}
	return out, nil
}

func isYesVote(payload json.RawMessage) bool {
	var p map[string]any
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	if v, ok := p["vote"].(string); ok {
		return v == "yes"
	}
	if v, ok := p["approve"].(bool); ok {
		return v
	}
	return false
}

func derivePlaystyle(c *playerCounters) string {
	switch {
	case c.nominations >= 2:
		return "aggressive"
	case c.messages >= 10:
		return "talkative"
	case c.messages <= 2 && c.votes <= 1:
		return "quiet"
	default:
		return "balanced"
	}
}

func deriveVotingPatterns(c *playerCounters) []string {
	if c.votes == 0 {
		return nil
	}
	var patterns []string
	ratio := float64(c.yesVotes) / float64(c.votes)
	switch {
	case ratio >= 0.7:
		patterns = append(patterns, "votes_yes_often")
	case ratio <= 0.3:
		patterns = append(patterns, "votes_no_often")
	default:
		patterns = append(patterns, "votes_mixed")
	}
	if c.votes >= 3 {
		patterns = append(patterns, "active_voter")
	}
	return patterns
}

var _ types.SubAgent = (*PlayerModeler)(nil)
