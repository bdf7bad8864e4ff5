package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hermesagent/hermes/core"
)

// ConfigRepository owns config.yaml for the `init` command and for
// core.Config.LoadFromFile to read. Not named in spec.md's distilled text,
// but config.yaml is listed in spec.md §6.4's persistent layout and this
// repository is its owner (the original Python source's
// persistence/config_repository.py).
type ConfigRepository struct {
	BaseDir string
}

func NewConfigRepository(baseDir string) *ConfigRepository {
	return &ConfigRepository{BaseDir: baseDir}
}

func (r *ConfigRepository) path() string {
	return filepath.Join(r.BaseDir, "config.yaml")
}

// Exists reports whether config.yaml has been written yet.
func (r *ConfigRepository) Exists() bool {
	_, err := os.Stat(r.path())
	return err == nil
}

// Save writes the default config.yaml body used by `hermes init`.
func (r *ConfigRepository) Save(cfg *core.Config) error {
	if err := os.MkdirAll(r.BaseDir, 0o755); err != nil {
		return core.NewError("ConfigRepository.Save", core.KindFatal, err)
	}
	body := fmt.Sprintf(
		"model: %s\nlanguage: %s\nquery_count: %d\nmin_sources: %d\nmax_sources: %d\nmin_validation: %d\nmax_validation: %d\nquality_threshold: %g\n",
		cfg.Model, cfg.Language, cfg.QueryCount, cfg.MinSources, cfg.MaxSources,
		cfg.MinValidation, cfg.MaxValidation, cfg.QualityThreshold,
	)
	return writeFileAtomic(r.path(), []byte(body))
}
