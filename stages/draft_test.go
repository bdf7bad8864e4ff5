package stages

import (
	"errors"
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftBuildsPromptFromNotes(t *testing.T) {
	state := &core.AgentState{
		UserPrompt:     "Explain CRDTs",
		Language:       "en",
		Queries:        []string{"q1"},
		ProcessedNotes: map[string]string{"q1": "CRDTs are convergent"},
	}
	client := fakeLLM{response: "# Report\n\nSummary here."}

	delta := Draft(t.Context(), state, client)
	require.NotNil(t, delta.DraftReport)
	assert.Equal(t, "# Report\n\nSummary here.", *delta.DraftReport)
}

func TestDraftLeavesReportUnchangedOnFailure(t *testing.T) {
	state := &core.AgentState{UserPrompt: "Explain CRDTs", Language: "en"}
	client := fakeLLM{err: errors.New("connection refused")}

	delta := Draft(t.Context(), state, client)
	assert.Nil(t, delta.DraftReport)
	assert.Len(t, delta.ErrorLog, 1)
}

func TestDraftPromptIncludesOnlyNonEmptyNotes(t *testing.T) {
	state := &core.AgentState{
		UserPrompt:     "Explain CRDTs",
		Language:       "en",
		Queries:        []string{"q1", "q2"},
		ProcessedNotes: map[string]string{"q1": "notes for q1"},
	}

	prompt := buildDraftPrompt(state)
	assert.Contains(t, prompt, "q1")
	assert.NotContains(t, prompt, "## Query: q2")
}
