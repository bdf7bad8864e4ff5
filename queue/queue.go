// Package queue implements QueueService: strictly sequential processing
// of scheduled Tasks against RunService (spec §4.9).
package queue

import (
	"context"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
	"github.com/hermesagent/hermes/run"
)

// Result records the outcome of processing a single Task.
type Result struct {
	TaskID string
	Meta   *persistence.HistoryMeta
	Err    error
}

// Service drains scheduled Tasks one at a time against a RunService,
// isolating per-task failures from the rest of the queue.
type Service struct {
	Tasks   *persistence.TaskRepository
	Run     *run.Service
	BaseCfg *core.Config
	Logger  core.Logger
}

func New(tasks *persistence.TaskRepository, runSvc *run.Service, baseCfg *core.Config, logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Service{Tasks: tasks, Run: runSvc, BaseCfg: baseCfg, Logger: logger}
}

// ListScheduled returns every scheduled Task, oldest-first.
func (s *Service) ListScheduled() ([]*persistence.Task, error) {
	return s.Tasks.ListScheduled()
}

// ProcessQueue runs up to limit scheduled tasks (all, if limit <= 0) in
// order. Each task runs to completion before the next starts; a failure
// in one task is recorded and does not halt the queue (spec §4.9).
func (s *Service) ProcessQueue(ctx context.Context, limit int) ([]Result, error) {
	scheduled, err := s.Tasks.ListScheduled()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(scheduled) > limit {
		scheduled = scheduled[:limit]
	}

	results := make([]Result, 0, len(scheduled))
	for _, task := range scheduled {
		results = append(results, s.processOne(ctx, task))
	}
	return results, nil
}

func (s *Service) processOne(ctx context.Context, task *persistence.Task) Result {
	if err := s.Tasks.UpdateStatus(task.ID, persistence.TaskRunning); err != nil {
		s.Logger.Warn("queue: failed to mark task running", map[string]interface{}{"id": task.ID, "error": err.Error()})
	}

	cfg := applyOverrides(s.BaseCfg, task.Options)
	meta, err := s.Run.Run(ctx, task.Prompt, cfg, orchestrator.RunOptions{})

	status := persistence.TaskDone
	if err != nil {
		status = persistence.TaskFailed
		s.Logger.Error("queue: task failed", map[string]interface{}{"id": task.ID, "error": err.Error()})
	}
	if updateErr := s.Tasks.UpdateStatus(task.ID, status); updateErr != nil {
		s.Logger.Warn("queue: failed to record final task status", map[string]interface{}{"id": task.ID, "error": updateErr.Error()})
	}

	return Result{TaskID: task.ID, Meta: meta, Err: err}
}

func applyOverrides(base *core.Config, opts persistence.TaskOptions) *core.Config {
	cfg := *base
	if opts.Language != "" {
		cfg.Language = opts.Language
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.MinValidation != nil {
		cfg.MinValidation = *opts.MinValidation
	}
	if opts.MaxValidation != nil {
		cfg.MaxValidation = *opts.MaxValidation
	}
	if opts.QueryCount != nil {
		cfg.QueryCount = *opts.QueryCount
	}
	if opts.MinSources != nil {
		cfg.MinSources = *opts.MinSources
	}
	if opts.MaxSources != nil {
		cfg.MaxSources = *opts.MaxSources
	}
	return &cfg
}
