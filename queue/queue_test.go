package queue

import (
	"context"
	"testing"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
	"github.com/hermesagent/hermes/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct{}

func (fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return "query one", nil
}

type fakeSearch struct{}

func (fakeSearch) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	return []core.Hit{{URL: "https://example.com/" + query}}, nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(contentType, url string, raw []byte) (string, error) {
	return string(raw), nil
}

func TestProcessQueueIsolatesPerTaskFailure(t *testing.T) {
	baseDir := t.TempDir()
	tasks := persistence.NewTaskRepository(baseDir)
	history := persistence.NewHistoryRepository(baseDir)

	// T1's prompt is blank-after-trim so Normalize fails fatally; T2
	// proceeds normally. Created in this order so oldest-first queueing
	// runs T1 before T2.
	t1, err := tasks.Create("   ", persistence.TaskOptions{})
	require.NoError(t, err)
	t2, err := tasks.Create("second prompt", persistence.TaskOptions{})
	require.NoError(t, err)

	deps := orchestrator.Deps{
		LLM:        fakeLLM{},
		Search:     fakeSearch{},
		Normalizer: passthroughNormalizer{},
		Cache:      cache.NewMemoryCache(),
	}
	runSvc := run.New(history, deps, nil)
	cfg := &core.Config{QueryCount: 1, MaxSources: 5, QualityThreshold: 0.0}
	svc := New(tasks, runSvc, cfg, nil)

	results, err := svc.ProcessQueue(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, t1.ID, results[0].TaskID)
	assert.Error(t, results[0].Err)

	assert.Equal(t, t2.ID, results[1].TaskID)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, persistence.HistorySuccess, results[1].Meta.Status)

	final1, err := tasks.Load(t1.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.TaskFailed, final1.Status)

	final2, err := tasks.Load(t2.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.TaskDone, final2.Status)
}

func TestListScheduledOldestFirst(t *testing.T) {
	baseDir := t.TempDir()
	tasks := persistence.NewTaskRepository(baseDir)
	svc := New(tasks, nil, &core.Config{}, nil)

	_, err := tasks.Create("a", persistence.TaskOptions{})
	require.NoError(t, err)
	_, err = tasks.Create("b", persistence.TaskOptions{})
	require.NoError(t, err)

	scheduled, err := svc.ListScheduled()
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "a", scheduled[0].Prompt)
	assert.Equal(t, "b", scheduled[1].Prompt)
}
