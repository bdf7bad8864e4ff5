package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/fetch"
	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/clients/normalize"
	"github.com/hermesagent/hermes/clients/search"
	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/logging"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
	"github.com/hermesagent/hermes/queue"
	"github.com/hermesagent/hermes/run"
	"github.com/hermesagent/hermes/telemetry"
)

// app bundles every repository and service a command needs, resolved once
// from the effective Config.
type app struct {
	Config  *core.Config
	Logger  core.ComponentAwareLogger
	Tasks   *persistence.TaskRepository
	History *persistence.HistoryRepository
	Logs    *persistence.LogRepository
	Configs *persistence.ConfigRepository
	Run     *run.Service
	Queue   *queue.Service

	shutdownTelemetry func(context.Context) error
}

// Close flushes telemetry and should be deferred by every command after a
// successful newApp call.
func (a *app) Close() error {
	if a.shutdownTelemetry == nil {
		return nil
	}
	return a.shutdownTelemetry(context.Background())
}

// newApp resolves configuration and wires every collaborator. opts carry
// CLI flag overrides, applied after defaults/config.yaml/env per
// core.NewConfig's resolution order.
func newApp(opts ...core.Option) (*app, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	baseDir, err := cfg.ResolvedBaseDir()
	if err != nil {
		return nil, core.NewError("newApp", core.KindFatal, err)
	}

	logRepo := persistence.NewLogRepository(baseDir)
	logger := logging.New(logRepo)

	llmClient, err := llm.NewResilient(llm.New(cfg.LLMEndpoint, cfg.Model, cfg.LLMTimeout, logger.WithComponent("clients/llm")), logger.WithComponent("clients/llm"))
	if err != nil {
		return nil, core.NewError("newApp", core.KindFatal, err)
	}

	var searchClient search.Client = search.New(cfg.SearchEndpoint, cfg.SearchTimeout)
	resilientSearch, err := search.NewResilient(searchClient, logger.WithComponent("clients/search"))
	if err != nil {
		return nil, core.NewError("newApp", core.KindFatal, err)
	}

	robots := fetch.NewRobotsChecker("HermesResearchBot/1.0", cfg.RobotsTimeout)
	fetcher := fetch.New(cfg.FetchTimeout, robots)
	normalizer := normalize.New(logger.WithComponent("clients/normalize"))
	memCache := cache.New(cfg.RedisAddr)

	tasks := persistence.NewTaskRepository(baseDir)
	history := persistence.NewHistoryRepository(baseDir)
	configs := persistence.NewConfigRepository(baseDir)

	traceDir := filepath.Join(baseDir, "debug_log")
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return nil, core.NewError("newApp", core.KindFatal, err)
	}
	tracePath := filepath.Join(traceDir, fmt.Sprintf("trace-%s.jsonl", time.Now().UTC().Format("20060102")))
	traceFile, err := os.OpenFile(tracePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, core.NewError("newApp", core.KindFatal, err)
	}

	_, shutdownTracing, err := telemetry.NewProvider(context.Background(), "hermes", traceFile)
	if err != nil {
		_ = traceFile.Close()
		return nil, core.NewError("newApp", core.KindFatal, err)
	}
	shutdownTelemetry := func(ctx context.Context) error {
		err := shutdownTracing(ctx)
		if closeErr := traceFile.Close(); err == nil {
			err = closeErr
		}
		return err
	}

	deps := orchestrator.Deps{
		LLM:           llmClient,
		Search:        resilientSearch,
		Fetcher:       fetcher,
		Cache:         memCache,
		Memory:        core.NewInMemoryStore(),
		Normalizer:    normalizer,
		Logger:        logger.WithComponent("orchestrator"),
		Telemetry:     telemetry.New("hermes"),
		SearchWorkers: cfg.SearchWorkers,
		SearchRetries: cfg.RetryAttempts,
		TopFetch:      cfg.TopFetch,
		CacheTTL:      cfg.CacheTTL,
	}

	runSvc := run.New(history, deps, logger.WithComponent("run"))
	queueSvc := queue.New(tasks, runSvc, cfg, logger.WithComponent("queue"))

	return &app{
		Config:  cfg,
		Logger:  logger,
		Tasks:   tasks,
		History: history,
		Logs:    logRepo,
		Configs: configs,
		Run:     runSvc,
		Queue:   queueSvc,

		shutdownTelemetry: shutdownTelemetry,
	}, nil
}
