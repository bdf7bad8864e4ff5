package run

import (
	"context"
	"testing"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
}

func (f fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return f.response, nil
}

type fakeSearch struct{}

func (fakeSearch) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	return []core.Hit{{URL: "https://example.com/" + query}}, nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(contentType, url string, raw []byte) (string, error) {
	return string(raw), nil
}

func TestRunServicePersistsSuccessHistory(t *testing.T) {
	baseDir := t.TempDir()
	history := persistence.NewHistoryRepository(baseDir)
	deps := orchestrator.Deps{
		LLM:        fakeLLM{response: "query one"},
		Search:     fakeSearch{},
		Normalizer: passthroughNormalizer{},
		Cache:      cache.NewMemoryCache(),
	}
	svc := New(history, deps, nil)
	cfg := &core.Config{Model: "llama3", Language: "en", QueryCount: 1, MaxSources: 5, MinValidation: 0, MaxValidation: 0, QualityThreshold: 0.0}

	meta, err := svc.Run(t.Context(), "Explain CRDTs", cfg, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, persistence.HistorySuccess, meta.Status)
	assert.NotEmpty(t, meta.ReportFile)

	report, err := history.LoadReport(meta.ID)
	require.NoError(t, err)
	assert.Contains(t, report, "Explain CRDTs")
}

func TestRunServicePersistsFailureHistoryOnFatalError(t *testing.T) {
	baseDir := t.TempDir()
	history := persistence.NewHistoryRepository(baseDir)
	svc := New(history, orchestrator.Deps{}, nil)
	cfg := &core.Config{QueryCount: 1, MaxSources: 5}

	meta, err := svc.Run(t.Context(), "   ", cfg, orchestrator.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, persistence.HistoryFailed, meta.Status)
	assert.Empty(t, meta.ReportFile)
	assert.NotEmpty(t, meta.ErrorMessage)
}
