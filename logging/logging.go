// Package logging implements core.ComponentAwareLogger on top of
// persistence.LogRepository, so every stage, the orchestrator, and the CLI
// write through the same flat-file sink in the format from spec §6.4.
package logging

import (
	"context"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/persistence"
)

// RepositoryLogger adapts a LogRepository to core.ComponentAwareLogger.
type RepositoryLogger struct {
	repo      *persistence.LogRepository
	component string
}

func New(repo *persistence.LogRepository) *RepositoryLogger {
	return &RepositoryLogger{repo: repo, component: "hermes"}
}

// WithComponent returns a logger tagged with component, sharing the same
// underlying repository (and therefore the same writer mutex).
func (l *RepositoryLogger) WithComponent(component string) core.Logger {
	return &RepositoryLogger{repo: l.repo, component: component}
}

func (l *RepositoryLogger) write(level persistence.Level, msg string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	_ = l.repo.Write(level, l.component, msg, kv...)
}

func (l *RepositoryLogger) Info(msg string, fields map[string]interface{}) {
	l.write(persistence.LevelInfo, msg, fields)
}

func (l *RepositoryLogger) Error(msg string, fields map[string]interface{}) {
	l.write(persistence.LevelError, msg, fields)
}

func (l *RepositoryLogger) Warn(msg string, fields map[string]interface{}) {
	l.write(persistence.LevelWarn, msg, fields)
}

func (l *RepositoryLogger) Debug(msg string, fields map[string]interface{}) {
	l.write(persistence.LevelDebug, msg, fields)
}

func (l *RepositoryLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, fields)
}
func (l *RepositoryLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, fields)
}
func (l *RepositoryLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, fields)
}
func (l *RepositoryLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, fields)
}
