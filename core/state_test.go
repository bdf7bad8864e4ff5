package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAgentState(t *testing.T) {
	cfg := DefaultConfig()
	s := NewAgentState("  Explain CRDTs  ", cfg)

	assert.Equal(t, "  Explain CRDTs  ", s.UserPrompt)
	assert.Equal(t, cfg.MaxValidation, s.MaxValidation)
	assert.NotNil(t, s.QueryResults)
	assert.NotNil(t, s.ProcessedNotes)
}

func TestStateDeltaMergeReplacesAndAppends(t *testing.T) {
	s := &AgentState{QueryResults: map[string][]Hit{"q1": {{URL: "a"}}}}

	delta := StateDelta{
		QueryResults:  map[string][]Hit{"q1": {{URL: "b"}}},
		AppendResults: true,
	}
	delta.Merge(s)
	assert.Len(t, s.QueryResults["q1"], 2)

	replace := StateDelta{QueryResults: map[string][]Hit{"q1": {{URL: "c"}}}}
	replace.Merge(s)
	assert.Len(t, s.QueryResults["q1"], 1)
	assert.Equal(t, "c", s.QueryResults["q1"][0].URL)
}

func TestStateDeltaIncrementLoop(t *testing.T) {
	s := &AgentState{LoopCount: 1}
	(StateDelta{IncrementLoop: true}).Merge(s)
	assert.Equal(t, 2, s.LoopCount)
}

func TestStateDeltaClearFollowUps(t *testing.T) {
	s := &AgentState{FollowUpQueries: []string{"a", "b"}}
	(StateDelta{ClearFollowUps: true}).Merge(s)
	assert.Nil(t, s.FollowUpQueries)
}

func TestStateDeltaLeavesUntouchedFieldsAlone(t *testing.T) {
	s := &AgentState{DraftReport: "existing draft"}
	(StateDelta{ErrorLog: []string{"llm failure"}}).Merge(s)
	assert.Equal(t, "existing draft", s.DraftReport)
	assert.Equal(t, []string{"llm failure"}, s.ErrorLog)
}
