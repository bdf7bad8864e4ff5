package stages

import (
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTrims(t *testing.T) {
	state := &core.AgentState{UserPrompt: "  Explain CRDTs \n"}
	delta, err := Normalize(state)
	require.NoError(t, err)
	delta.Merge(state)
	assert.Equal(t, "Explain CRDTs", state.UserPrompt)
}

func TestNormalizeEmptyPromptIsFatal(t *testing.T) {
	state := &core.AgentState{UserPrompt: "   "}
	_, err := Normalize(state)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyPrompt)
	assert.Equal(t, core.KindFatal, core.KindOf(err))
}

func TestNormalizeStripsControlButKeepsUnicode(t *testing.T) {
	state := &core.AgentState{UserPrompt: "CRDT\x07 研究"}
	delta, err := Normalize(state)
	require.NoError(t, err)
	delta.Merge(state)
	assert.Equal(t, "CRDT 研究", state.UserPrompt)
}
