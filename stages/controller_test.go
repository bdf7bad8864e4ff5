package stages

import (
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerForcesContinueBelowMinValidation(t *testing.T) {
	state := &core.AgentState{
		LoopCount:        0,
		MinValidation:    1,
		MaxValidation:    3,
		QualityThreshold: 0.0,
		DraftReport:      "a very long and thorough draft report indeed",
	}

	delta := Controller(state)
	require.NotNil(t, delta.ValidationComplete)
	assert.False(t, *delta.ValidationComplete)
}

func TestControllerForcesCompleteAtMaxValidation(t *testing.T) {
	state := &core.AgentState{
		LoopCount:        3,
		MinValidation:    0,
		MaxValidation:    3,
		QualityThreshold: 0.99,
	}

	delta := Controller(state)
	require.NotNil(t, delta.ValidationComplete)
	assert.True(t, *delta.ValidationComplete)
}

func TestControllerCompletesWhenScoreMeetsThreshold(t *testing.T) {
	state := &core.AgentState{
		LoopCount:        1,
		MinValidation:    0,
		MaxValidation:    3,
		QualityThreshold: 0.01,
		Queries:          []string{"q1"},
		ProcessedNotes:   map[string]string{"q1": "notes"},
		ExecutedQueries:  []string{"q1"},
		MaxSources:       5,
		QueryResults:     map[string][]core.Hit{"q1": {{URL: "a"}}},
		DraftReport:      "short",
	}

	delta := Controller(state)
	require.NotNil(t, delta.ValidationComplete)
	assert.True(t, *delta.ValidationComplete)
}

func TestValidatorParsesFollowUpQueriesSection(t *testing.T) {
	state := &core.AgentState{DraftReport: "# Report\n\nbody"}
	client := fakeLLM{response: "# Report\n\nbody\n\n## Follow-up Queries\n- alpha query\n- beta query\n"}

	delta := Validator(t.Context(), state, client)
	assert.Equal(t, []string{"alpha query", "beta query"}, delta.FollowUpQueries)
	assert.True(t, delta.IncrementLoop)
}

func TestValidatorParsesFollowUpLineStartingWithDigit(t *testing.T) {
	state := &core.AgentState{DraftReport: "# Report\n\nbody"}
	client := fakeLLM{response: "# Report\n\nbody\n\n## Follow-up Queries\n- 5G network rollout\n"}

	delta := Validator(t.Context(), state, client)
	assert.Equal(t, []string{"5G network rollout"}, delta.FollowUpQueries)
}

func TestValidatorSynthesizesFollowUpsWhenUnparseable(t *testing.T) {
	state := &core.AgentState{
		UserPrompt:   "Explain CRDTs",
		Queries:      []string{"q1"},
		MinSources:   2,
		QueryResults: map[string][]core.Hit{"q1": {{URL: "a"}}},
		DraftReport:  "# Report",
	}
	client := fakeLLM{response: "# Report\n\nno follow up section here"}

	delta := Validator(t.Context(), state, client)
	assert.Equal(t, []string{"q1 primary sources and statistics"}, delta.FollowUpQueries)
}

func TestValidatorSynthesizesGenericFollowUpsWhenAllQueriesSatisfied(t *testing.T) {
	state := &core.AgentState{
		UserPrompt:   "Explain CRDTs",
		Queries:      []string{"q1"},
		MinSources:   1,
		QueryResults: map[string][]core.Hit{"q1": {{URL: "a"}}},
		DraftReport:  "# Report",
	}
	client := fakeLLM{response: "# Report\n\nno follow up section here"}

	delta := Validator(t.Context(), state, client)
	assert.Equal(t, []string{
		"Explain CRDTs recent developments",
		"Explain CRDTs case studies",
		"Explain CRDTs expert interviews",
	}, delta.FollowUpQueries)
}

func TestFinalizerPrependsMetadata(t *testing.T) {
	state := &core.AgentState{
		UserPrompt:  "Explain CRDTs",
		Language:    "en",
		Queries:     []string{"q1"},
		LoopCount:   2,
		DraftReport: "# Final report",
	}

	delta, err := Finalizer(state)
	require.NoError(t, err)
	require.NotNil(t, delta.ValidatedReport)
	assert.Contains(t, *delta.ValidatedReport, "query: \"Explain CRDTs\"")
	assert.Contains(t, *delta.ValidatedReport, "# Final report")
}

func TestFinalizerFailsOnEmptyDraft(t *testing.T) {
	state := &core.AgentState{DraftReport: "   "}

	_, err := Finalizer(state)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyDraftReport)
	assert.Equal(t, core.KindFatal, core.KindOf(err))
}
