package persistence

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hermesagent/hermes/core"
	"gopkg.in/yaml.v3"
)

// TaskStatus mirrors spec §3.2's Task.status enumeration.
type TaskStatus string

const (
	TaskScheduled TaskStatus = "scheduled"
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
)

// TaskOptions is the free-form override map bounded by spec §6.3.
type TaskOptions struct {
	Language      string `yaml:"language,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MinValidation *int   `yaml:"min_validation,omitempty"`
	MaxValidation *int   `yaml:"max_validation,omitempty"`
	QueryCount    *int   `yaml:"query_count,omitempty"`
	MinSources    *int   `yaml:"min_sources,omitempty"`
	MaxSources    *int   `yaml:"max_sources,omitempty"`
}

// Task is one scheduled or completed queue entry (spec §3.2).
type Task struct {
	ID        string      `yaml:"id"`
	Prompt    string      `yaml:"prompt"`
	CreatedAt time.Time   `yaml:"created_at"`
	Status    TaskStatus  `yaml:"status"`
	Options   TaskOptions `yaml:"options"`
}

// TaskRepository persists Tasks as task/task-<ID>.yaml under BaseDir,
// replacing the whole file on every write (write-temp + rename) to avoid
// torn reads under concurrent readers.
type TaskRepository struct {
	BaseDir string
}

func NewTaskRepository(baseDir string) *TaskRepository {
	return &TaskRepository{BaseDir: baseDir}
}

func (r *TaskRepository) dir() string {
	return filepath.Join(r.BaseDir, "task")
}

func (r *TaskRepository) path(id string) string {
	return filepath.Join(r.dir(), "task-"+id+".yaml")
}

// Create assigns the next YYYY-NNNN ID and persists a scheduled Task.
func (r *TaskRepository) Create(prompt string, opts TaskOptions) (*Task, error) {
	existing, err := r.existingIDs()
	if err != nil {
		return nil, err
	}
	task := &Task{
		ID:        NewID(existing),
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
		Status:    TaskScheduled,
		Options:   opts,
	}
	if err := r.save(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) existingIDs() ([]string, error) {
	tasks, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (r *TaskRepository) save(t *Task) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return core.NewError("TaskRepository.save", core.KindFatal, err)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return core.NewError("TaskRepository.save", core.KindFatal, err)
	}
	return writeFileAtomic(r.path(t.ID), data)
}

// Load reads a Task by ID, returning core.ErrTaskNotFound when absent.
func (r *TaskRepository) Load(id string) (*Task, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, core.NewError("TaskRepository.Load", core.KindNotFound, core.ErrTaskNotFound)
	}
	if err != nil {
		return nil, core.NewError("TaskRepository.Load", core.KindFatal, err)
	}
	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, core.NewError("TaskRepository.Load", core.KindFatal, err)
	}
	return &t, nil
}

// ListAll returns every Task, newest-first by CreatedAt.
func (r *TaskRepository) ListAll() ([]*Task, error) {
	entries, err := os.ReadDir(r.dir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewError("TaskRepository.ListAll", core.KindFatal, err)
	}

	var tasks []*Task
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir(), e.Name()))
		if err != nil {
			continue
		}
		var t Task
		if err := yaml.Unmarshal(data, &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// ListScheduled returns every Task with status=scheduled, oldest-first
// (spec §4.9).
func (r *TaskRepository) ListScheduled() ([]*Task, error) {
	all, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	var scheduled []*Task
	for _, t := range all {
		if t.Status == TaskScheduled {
			scheduled = append(scheduled, t)
		}
	}
	sort.Slice(scheduled, func(i, j int) bool { return scheduled[i].CreatedAt.Before(scheduled[j].CreatedAt) })
	return scheduled, nil
}

// UpdateStatus loads, mutates, and rewrites a Task's status.
func (r *TaskRepository) UpdateStatus(id string, status TaskStatus) error {
	t, err := r.Load(id)
	if err != nil {
		return err
	}
	t.Status = status
	return r.save(t)
}

// Delete removes a Task's file.
func (r *TaskRepository) Delete(id string) error {
	if err := os.Remove(r.path(id)); err != nil {
		if os.IsNotExist(err) {
			return core.NewError("TaskRepository.Delete", core.KindNotFound, core.ErrTaskNotFound)
		}
		return core.NewError("TaskRepository.Delete", core.KindFatal, err)
	}
	return nil
}

// writeFileAtomic writes data to path by writing a temp file in the same
// directory and renaming over the destination, avoiding torn reads by
// concurrent readers (spec §5).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return core.NewError("writeFileAtomic", core.KindFatal, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.NewError("writeFileAtomic", core.KindFatal, err)
	}
	if err := tmp.Close(); err != nil {
		return core.NewError("writeFileAtomic", core.KindFatal, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return core.NewError("writeFileAtomic", core.KindFatal, err)
	}
	return nil
}
