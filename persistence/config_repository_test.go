package persistence

import (
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRepositorySave(t *testing.T) {
	dir := t.TempDir()
	repo := NewConfigRepository(dir)
	assert.False(t, repo.Exists())

	cfg := core.DefaultConfig()
	require.NoError(t, repo.Save(cfg))
	assert.True(t, repo.Exists())

	loaded := core.DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(repo.path()))
	assert.Equal(t, cfg.Model, loaded.Model)
	assert.Equal(t, cfg.QueryCount, loaded.QueryCount)
}
