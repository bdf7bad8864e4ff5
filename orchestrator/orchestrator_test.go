package orchestrator

import (
	"context"
	"testing"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

type scriptedSearch struct{}

func (scriptedSearch) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	return []core.Hit{{URL: "https://example.com/" + query}}, nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(contentType, url string, raw []byte) (string, error) {
	return string(raw), nil
}

func TestRunCompletesEndToEndWithOneValidationLoop(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"CRDT data structures\nCRDT convergence proof",
		"# CRDTs\n\nA CRDT is a data structure.",
		"# CRDTs\n\nA CRDT is a data structure (revised).\n\n## Follow-up Queries\n- CRDT Byzantine fault tolerance",
	}}
	deps := Deps{
		LLM:        llmClient,
		Search:     scriptedSearch{},
		Normalizer: passthroughNormalizer{},
		Cache:      cache.NewMemoryCache(),
	}
	cfg := &core.Config{MinValidation: 1, MaxValidation: 1, QueryCount: 2, MaxSources: 5, QualityThreshold: 0.5}
	state := core.NewAgentState("Explain CRDTs", cfg)

	final, err := Run(t.Context(), state, deps, RunOptions{})
	require.NoError(t, err)
	assert.Contains(t, final.ValidatedReport, "validation_loops: 1")
	assert.Contains(t, final.ValidatedReport, "(revised)")
	assert.Equal(t, 1, final.LoopCount)

	// query_gen must run exactly once, before the search/process/draft/
	// controller/validator loop, not once per loop iteration: draft runs
	// twice (one per loop pass) and validator once (the loop breaks on the
	// second controller pass before validator runs again), so 1 query_gen
	// + 2 draft + 1 validator = 4 total LLM calls.
	assert.Equal(t, 4, llmClient.calls)
	assert.Equal(t, []string{"CRDT data structures", "CRDT convergence proof"}, final.Queries)
}

func TestRunReturnsFatalOnEmptyPrompt(t *testing.T) {
	cfg := &core.Config{QueryCount: 1, MaxSources: 5}
	state := core.NewAgentState("   ", cfg)

	_, err := Run(t.Context(), state, Deps{}, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, core.KindFatal, core.KindOf(err))
}

func TestRunRespectsCancelBeforeFirstStage(t *testing.T) {
	cancel := make(chan struct{})
	close(cancel)
	cfg := &core.Config{QueryCount: 1, MaxSources: 5}
	state := core.NewAgentState("Explain CRDTs", cfg)

	_, err := Run(t.Context(), state, Deps{}, RunOptions{Cancel: cancel})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContextCanceled)
}

func TestRunEmitsStageEventsInOrder(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"q1"}}
	deps := Deps{
		LLM:        llmClient,
		Search:     scriptedSearch{},
		Normalizer: passthroughNormalizer{},
		Cache:      cache.NewMemoryCache(),
	}
	cfg := &core.Config{MinValidation: 0, MaxValidation: 0, QueryCount: 1, MaxSources: 5, QualityThreshold: 0.0}
	state := core.NewAgentState("Explain CRDTs", cfg)

	events := make(chan StageEvent, 16)
	_, err := Run(t.Context(), state, deps, RunOptions{Events: events})
	require.NoError(t, err)
	close(events)

	var names []string
	for e := range events {
		names = append(names, e.Stage)
	}
	assert.Equal(t, []string{"normalize", "query_gen", "search", "process", "draft", "controller", "finalize"}, names)
}
