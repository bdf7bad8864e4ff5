package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
)

const draftSystemPrompt = "You are a research analyst. Write a Markdown report with an " +
	"executive summary, key findings, supporting details referencing the queries they came " +
	"from, and next steps."

// Draft synthesizes draft_report from the original prompt plus all
// processed notes (spec §4.6). On LLM failure the previous draft
// survives and a diagnostic is appended.
func Draft(ctx context.Context, state *core.AgentState, client llm.Client) core.StateDelta {
	messages := []llm.Message{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: buildDraftPrompt(state)},
	}

	text, err := client.Chat(ctx, messages)
	if err != nil {
		return core.StateDelta{
			ErrorLog: []string{"Draft: LLM failure, draft_report unchanged: " + err.Error()},
		}
	}

	return core.StateDelta{DraftReport: &text}
}

func buildDraftPrompt(state *core.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nLanguage: %s\n\n", state.UserPrompt, state.Language)
	for _, q := range state.Queries {
		notes := state.ProcessedNotes[q]
		if notes == "" {
			continue
		}
		fmt.Fprintf(&b, "## Query: %s\n\n%s\n\n", q, notes)
	}
	return strings.TrimSpace(b.String())
}
