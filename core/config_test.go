package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 3, cfg.QueryCount)
	assert.Equal(t, 2, cfg.MinSources)
	assert.Equal(t, 5, cfg.MaxSources)
	assert.Equal(t, 0, cfg.MinValidation)
	assert.Equal(t, 2, cfg.MaxValidation)
	assert.Equal(t, 0.75, cfg.QualityThreshold)
	assert.Equal(t, 4, cfg.SearchWorkers)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 30*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 50, cfg.MaxRecursion)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HERMES_MODEL", "mistral")
	t.Setenv("HERMES_QUERY_COUNT", "5")
	t.Setenv("HERMES_QUALITY_THRESHOLD", "0.9")
	t.Setenv("HERMES_MAX_VALIDATION", "not-a-number")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, 5, cfg.QueryCount)
	assert.Equal(t, 0.9, cfg.QualityThreshold)
	assert.Equal(t, 2, cfg.MaxValidation, "malformed env value should leave default in place")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "model: codellama\nlanguage: ja\nquery_count: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "codellama", cfg.Model)
	assert.Equal(t, "ja", cfg.Language)
	assert.Equal(t, 4, cfg.QueryCount)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxSources = 0
	cfg.MinSources = 3
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, KindInput, KindOf(err))

	cfg = DefaultConfig()
	cfg.Language = "fr"
	require.Error(t, cfg.Validate())
}

func TestWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithModel("phi3"),
		WithQueryCount(2),
		WithSources(1, 4),
		WithValidation(0, 1),
	)
	require.NoError(t, err)

	assert.Equal(t, "phi3", cfg.Model)
	assert.Equal(t, 2, cfg.QueryCount)
	assert.Equal(t, 1, cfg.MinSources)
	assert.Equal(t, 4, cfg.MaxSources)
	assert.Equal(t, 1, cfg.MaxValidation)
}

func TestResolvedBaseDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDir = "~/.hermes"
	resolved, err := cfg.ResolvedBaseDir()
	require.NoError(t, err)
	assert.NotContains(t, resolved, "~")

	cfg.BaseDir = "/tmp/explicit-base"
	resolved, err = cfg.ResolvedBaseDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit-base", resolved)
}
