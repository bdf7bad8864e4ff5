// Package run implements RunService: the single-shot façade that resolves
// configuration, drives one Orchestrator execution, and persists the
// resulting report and HistoryMeta (spec §4.8).
package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
)

// Service resolves config overrides into an effective run, invokes the
// Orchestrator, and persists the outcome.
type Service struct {
	History *persistence.HistoryRepository
	Deps    orchestrator.Deps
	Logger  core.Logger
}

func New(history *persistence.HistoryRepository, deps orchestrator.Deps, logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Service{History: history, Deps: deps, Logger: logger}
}

// Run executes prompt against cfg end to end, persisting a HistoryMeta
// regardless of outcome (and the report only on success), and returns the
// HistoryMeta.
func (s *Service) Run(ctx context.Context, prompt string, cfg *core.Config, opts orchestrator.RunOptions) (*persistence.HistoryMeta, error) {
	createdAt := time.Now().UTC()
	id := s.nextID()
	correlationID := uuid.New().String()[:8]
	state := core.NewAgentState(prompt, cfg)

	s.Logger.Info("run: starting", map[string]interface{}{"id": id, "correlation_id": correlationID})
	final, runErr := orchestrator.Run(ctx, state, s.Deps, opts)

	meta := &persistence.HistoryMeta{
		ID:         id,
		Prompt:     prompt,
		CreatedAt:  createdAt,
		FinishedAt: time.Now().UTC(),
		Model:      cfg.Model,
		Language:   cfg.Language,
	}

	if runErr != nil {
		meta.Status = persistence.HistoryFailed
		meta.ErrorMessage = persistence.TruncateErrorMessage(runErr)
		meta.ValidationLoops = final.LoopCount
		meta.SourceCount = sourceCount(final)
		if err := s.History.SaveMeta(meta); err != nil {
			s.Logger.Error("run: failed to persist failure HistoryMeta", map[string]interface{}{"id": id, "error": err.Error()})
		}
		return meta, runErr
	}

	meta.Status = persistence.HistorySuccess
	meta.ValidationLoops = final.LoopCount
	meta.SourceCount = sourceCount(final)
	meta.ReportFile = "report-" + id + ".md"

	if err := s.History.SaveReport(id, final.ValidatedReport); err != nil {
		return meta, err
	}
	if err := s.History.SaveMeta(meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func (s *Service) nextID() string {
	existing, err := s.History.ListAll(0)
	if err != nil {
		return persistence.NewID(nil)
	}
	ids := make([]string, 0, len(existing))
	for _, m := range existing {
		ids = append(ids, m.ID)
	}
	return persistence.NewID(ids)
}

func sourceCount(state *core.AgentState) int {
	total := 0
	for _, hits := range state.QueryResults {
		total += len(hits)
	}
	return total
}
