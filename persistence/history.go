package persistence

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hermesagent/hermes/core"
	"gopkg.in/yaml.v3"
)

// HistoryStatus mirrors spec §3.2's HistoryMeta.status enumeration.
type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "success"
	HistoryFailed  HistoryStatus = "failed"
)

// maxErrorMessageLen bounds HistoryMeta.error_message per spec §3.2.
const maxErrorMessageLen = 500

// HistoryMeta is the per-run record written alongside the report (spec
// §3.2).
type HistoryMeta struct {
	ID              string        `yaml:"id"`
	Prompt          string        `yaml:"prompt"`
	CreatedAt       time.Time     `yaml:"created_at"`
	FinishedAt      time.Time     `yaml:"finished_at"`
	Model           string        `yaml:"model"`
	Language        string        `yaml:"language"`
	ValidationLoops int           `yaml:"validation_loops"`
	SourceCount     int           `yaml:"source_count"`
	ReportFile      string        `yaml:"report_file"`
	Status          HistoryStatus `yaml:"status"`
	ErrorMessage    string        `yaml:"error_message,omitempty"`
}

// TruncateErrorMessage bounds err to maxErrorMessageLen characters (spec
// §3.2's "≤500 chars").
func TruncateErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

// HistoryRepository persists HistoryMeta + the Markdown report under
// BaseDir/history/.
type HistoryRepository struct {
	BaseDir string
}

func NewHistoryRepository(baseDir string) *HistoryRepository {
	return &HistoryRepository{BaseDir: baseDir}
}

func (r *HistoryRepository) dir() string {
	return filepath.Join(r.BaseDir, "history")
}

func (r *HistoryRepository) metaPath(id string) string {
	return filepath.Join(r.dir(), "report-"+id+".meta.yaml")
}

func (r *HistoryRepository) reportPath(id string) string {
	return filepath.Join(r.dir(), "report-"+id+".md")
}

// SaveMeta writes a HistoryMeta record. (I7): a success record's
// ReportFile must be non-empty and a failed record's must be empty; callers
// are expected to honor this before calling SaveMeta.
func (r *HistoryRepository) SaveMeta(meta *HistoryMeta) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return core.NewError("HistoryRepository.SaveMeta", core.KindFatal, err)
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return core.NewError("HistoryRepository.SaveMeta", core.KindFatal, err)
	}
	return writeFileAtomic(r.metaPath(meta.ID), data)
}

// SaveReport writes the Markdown report for id.
func (r *HistoryRepository) SaveReport(id, markdown string) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return core.NewError("HistoryRepository.SaveReport", core.KindFatal, err)
	}
	return writeFileAtomic(r.reportPath(id), []byte(markdown))
}

// LoadMeta reads a HistoryMeta by ID.
func (r *HistoryRepository) LoadMeta(id string) (*HistoryMeta, error) {
	data, err := os.ReadFile(r.metaPath(id))
	if os.IsNotExist(err) {
		return nil, core.NewError("HistoryRepository.LoadMeta", core.KindNotFound, core.ErrHistoryNotFound)
	}
	if err != nil {
		return nil, core.NewError("HistoryRepository.LoadMeta", core.KindFatal, err)
	}
	var meta HistoryMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, core.NewError("HistoryRepository.LoadMeta", core.KindFatal, err)
	}
	return &meta, nil
}

// LoadReport reads the Markdown report by ID.
func (r *HistoryRepository) LoadReport(id string) (string, error) {
	data, err := os.ReadFile(r.reportPath(id))
	if os.IsNotExist(err) {
		return "", core.NewError("HistoryRepository.LoadReport", core.KindNotFound, core.ErrHistoryNotFound)
	}
	if err != nil {
		return "", core.NewError("HistoryRepository.LoadReport", core.KindFatal, err)
	}
	return string(data), nil
}

// ListAll returns every HistoryMeta, newest-first by FinishedAt, capped at
// limit when limit > 0.
func (r *HistoryRepository) ListAll(limit int) ([]*HistoryMeta, error) {
	entries, err := os.ReadDir(r.dir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewError("HistoryRepository.ListAll", core.KindFatal, err)
	}

	var metas []*HistoryMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir(), e.Name()))
		if err != nil {
			continue
		}
		var m HistoryMeta
		if err := yaml.Unmarshal(data, &m); err != nil {
			continue
		}
		metas = append(metas, &m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].FinishedAt.After(metas[j].FinishedAt) })
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

// Delete removes both the meta record and its report (if present).
func (r *HistoryRepository) Delete(id string) error {
	metaErr := os.Remove(r.metaPath(id))
	if metaErr != nil && !os.IsNotExist(metaErr) {
		return core.NewError("HistoryRepository.Delete", core.KindFatal, metaErr)
	}
	_ = os.Remove(r.reportPath(id))
	if os.IsNotExist(metaErr) {
		return core.NewError("HistoryRepository.Delete", core.KindNotFound, core.ErrHistoryNotFound)
	}
	return nil
}

// ExportReport copies the report file for id to dest.
func (r *HistoryRepository) ExportReport(id, dest string) error {
	markdown, err := r.LoadReport(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, []byte(markdown), 0o644); err != nil {
		return core.NewError("HistoryRepository.ExportReport", core.KindFatal, err)
	}
	return nil
}
