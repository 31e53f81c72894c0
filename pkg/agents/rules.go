package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ravenwood/storyteller/pkg/llm"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

const rulesSnippetCount = 3

// Rules answers rule questions and disputes with retrieval-augmented
// responses. Citations use numeric anchors so players can see which snippet
// backs each claim.
type Rules struct {
	router   Chatter
	searcher RulesSearcher
}

// NewRules builds the rules sub-agent.
func NewRules(router Chatter, searcher RulesSearcher) *Rules {
	return &Rules{router: router, searcher: searcher}
}

func (r *Rules) Name() string { return "rules" }

func (r *Rules) Description() string {
	return "Answers rule questions and disputes from the indexed rulebook with citations"
}

// Execute scans the recent window for rule questions and disputes and emits
// one public answer per question.
func (r *Rules) Execute(ctx context.Context, agentCtx *types.AgentContext) (*types.AgentOutput, error) {
	out := &types.AgentOutput{AgentName: r.Name(), Confidence: 0.8}

	for _, ev := range agentCtx.RecentEvents {
		if ev.EventType != "rule_question" && ev.EventType != "dispute" {
			continue
		}
		query := eventText(ev)
		if query == "" {
			query = describeEvent(ev)
		}

		snippets := r.searcher.SearchRules(ctx, query, rulesSnippetCount)
		if len(snippets) == 0 {
			continue
		}

		answer := r.answer(ctx, query, snippets)
		out.Actions = append(out.Actions, newAction(types.ActionSendPublicMessage, map[string]any{
			"room_id": agentCtx.RoomID,
			"message": answer,
		}, 2))
	}

	if len(out.Actions) > 0 {
		out.Message = fmt.Sprintf("answered %d rule questions", len(out.Actions))
	}
	return out, nil
}

// answer composes the model response with citation anchors, falling back to
// the raw snippets when the model call fails. The Sources block names each
// snippet's origin document so players can look the rule up themselves.
func (r *Rules) answer(ctx context.Context, question string, snippets []types.MemoryEntry) string {
	var excerpts, sources strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&excerpts, "[%d] %s\n", i+1, s.Content)
		if src := snippetSource(s); src != "" {
			fmt.Fprintf(&sources, "[%d] %s\n", i+1, src)
		} else {
			fmt.Fprintf(&sources, "[%d] %s\n", i+1, s.Content)
		}
	}

	if r.router != nil {
		messages := []llm.Message{
			llm.SystemMessage("You are the rules arbiter for a social deduction game. " +
				"Answer strictly from the provided excerpts and cite them with [n] anchors."),
			llm.UserMessage(fmt.Sprintf("Question: %s\n\nExcerpts:\n%s", question, excerpts.String())),
		}
		resp, err := r.router.Chat(ctx, llm.TaskRules, messages, nil)
		if err == nil && resp.Text() != "" {
			return resp.Text() + "\n\nSources:\n" + sources.String()
		}
		if err != nil {
			logger.Get().Warn("rules model call failed, citing snippets verbatim", "error", err)
		}
	}

	return "Relevant rules:\n" + excerpts.String()
}

// snippetSource reads the origin document path from a snippet's metadata.
func snippetSource(entry types.MemoryEntry) string {
	if len(entry.Metadata) == 0 {
		return ""
	}
	var meta struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(entry.Metadata, &meta); err != nil {
		return ""
	}
	return meta.Source
}

var _ types.SubAgent = (*Rules)(nil)
