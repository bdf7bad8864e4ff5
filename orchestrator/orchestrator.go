// Package orchestrator drives the fixed research graph: normalize ->
// query_gen -> search -> process -> draft -> controller, looping back
// through validator -> search on "continue" until controller says
// finalize (spec §4.1). The graph is small and fixed enough to hand-roll
// rather than pull in a workflow engine.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/fetch"
	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/clients/normalize"
	"github.com/hermesagent/hermes/clients/search"
	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/stages"
)

// maxEdgeTraversals is the hard recursion limit from spec §4.1 step 3:
// guarantees termination even if the controller logic is buggy.
const maxEdgeTraversals = 50

// Deps bundles every external collaborator a stage needs. Stages are
// invoked only through these interfaces so alternative implementations
// (or test fakes) can be injected without touching the graph driver.
type Deps struct {
	LLM        llm.Client
	Search     search.Client
	Fetcher    fetch.Fetcher
	Cache      cache.Cache
	Memory     core.Memory
	Normalizer normalize.Normalizer
	Logger     core.Logger

	// Telemetry is optional; nil disables span creation entirely.
	Telemetry core.Telemetry

	SearchWorkers int
	SearchRetries int
	TopFetch      int
	CacheTTL      time.Duration
}

// traceStage starts a span named "stage/<name>" around fn when Telemetry is
// configured, else runs fn directly against ctx unchanged.
func traceStage(ctx context.Context, deps Deps, name string, fn func(context.Context)) {
	if deps.Telemetry == nil {
		fn(ctx)
		return
	}
	spanCtx, span := deps.Telemetry.StartSpan(ctx, "stage/"+name)
	defer span.End()
	fn(spanCtx)
}

// StageEvent is emitted after each stage in streaming mode.
type StageEvent struct {
	Stage string
	Delta core.StateDelta
	Err   error
}

// RunOptions configures one Orchestrator.Run invocation.
type RunOptions struct {
	// Cancel is polled between stage transitions (spec §5 cancellation).
	Cancel <-chan struct{}
	// Events, if non-nil, receives a StageEvent after every stage
	// (streaming mode). Each send blocks until the event is received,
	// so callers must keep it drained.
	Events chan<- StageEvent
}

func isCanceled(opts RunOptions) bool {
	if opts.Cancel == nil {
		return false
	}
	select {
	case <-opts.Cancel:
		return true
	default:
		return false
	}
}

func emit(opts RunOptions, stage string, delta core.StateDelta, err error) {
	if opts.Events == nil {
		return
	}
	opts.Events <- StageEvent{Stage: stage, Delta: delta, Err: err}
}

// Run executes the graph to completion, returning the final state. A
// fatal stage error aborts the run and is returned; non-fatal failures
// are recorded in state.ErrorLog and the run continues with a degraded
// delta (spec §7 propagation policy).
func Run(ctx context.Context, state *core.AgentState, deps Deps, opts RunOptions) (*core.AgentState, error) {
	if isCanceled(opts) {
		return state, core.NewError("orchestrator", core.KindFatal, core.ErrContextCanceled)
	}

	var delta core.StateDelta
	var err error
	traceStage(ctx, deps, "normalize", func(spanCtx context.Context) {
		delta, err = stages.Normalize(state)
	})
	emit(opts, "normalize", delta, err)
	if err != nil {
		return state, err
	}
	delta.Merge(state)

	if isCanceled(opts) {
		return state, core.NewError("orchestrator", core.KindFatal, core.ErrContextCanceled)
	}

	var qDelta core.StateDelta
	traceStage(ctx, deps, "query_gen", func(spanCtx context.Context) {
		qDelta = stages.QueryGenerator(spanCtx, state, deps.LLM)
	})
	emit(opts, "query_gen", qDelta, nil)
	qDelta.Merge(state)

	traversals := 0
	for {
		if isCanceled(opts) {
			return state, core.NewError("orchestrator", core.KindFatal, core.ErrContextCanceled)
		}

		var sDelta core.StateDelta
		traceStage(ctx, deps, "search", func(spanCtx context.Context) {
			sDelta = stages.Searcher(spanCtx, state, stages.SearcherDeps{
				Search:        deps.Search,
				Fetcher:       deps.Fetcher,
				Cache:         deps.Cache,
				Memory:        deps.Memory,
				Logger:        deps.Logger,
				Workers:       deps.SearchWorkers,
				RetryAttempts: deps.SearchRetries,
				TopFetch:      deps.TopFetch,
				CacheTTL:      deps.CacheTTL,
			})
		})
		emit(opts, "search", sDelta, nil)
		sDelta.Merge(state)

		var pDelta core.StateDelta
		traceStage(ctx, deps, "process", func(spanCtx context.Context) {
			pDelta = stages.Processor(spanCtx, state, deps.Normalizer)
		})
		emit(opts, "process", pDelta, nil)
		pDelta.Merge(state)

		if isCanceled(opts) {
			return state, core.NewError("orchestrator", core.KindFatal, core.ErrContextCanceled)
		}

		var dDelta core.StateDelta
		traceStage(ctx, deps, "draft", func(spanCtx context.Context) {
			dDelta = stages.Draft(spanCtx, state, deps.LLM)
		})
		emit(opts, "draft", dDelta, nil)
		dDelta.Merge(state)

		var cDelta core.StateDelta
		traceStage(ctx, deps, "controller", func(spanCtx context.Context) {
			cDelta = stages.Controller(state)
			if deps.Telemetry != nil && cDelta.QualityScore != nil {
				deps.Telemetry.RecordMetric(spanCtx, "quality_score", *cDelta.QualityScore, map[string]string{
					"loop": fmt.Sprintf("%d", state.LoopCount),
				})
			}
		})
		emit(opts, "controller", cDelta, nil)
		cDelta.Merge(state)

		if state.ValidationComplete {
			break
		}

		traversals++
		if traversals >= maxEdgeTraversals {
			state.AppendDiagnostic("orchestrator: hard recursion limit reached, forcing finalize")
			break
		}

		if isCanceled(opts) {
			return state, core.NewError("orchestrator", core.KindFatal, core.ErrContextCanceled)
		}

		var vDelta core.StateDelta
		traceStage(ctx, deps, "validator", func(spanCtx context.Context) {
			vDelta = stages.Validator(spanCtx, state, deps.LLM)
		})
		emit(opts, "validator", vDelta, nil)
		vDelta.Merge(state)
	}

	var fDelta core.StateDelta
	traceStage(ctx, deps, "finalize", func(spanCtx context.Context) {
		fDelta, err = stages.Finalizer(state)
	})
	emit(opts, "finalize", fDelta, err)
	if err != nil {
		return state, err
	}
	fDelta.Merge(state)

	return state, nil
}
