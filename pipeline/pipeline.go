// Package pipeline holds the per-run plumbing shared by the blog, prd, and
// research workflows.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/contextwindow"
	statestoreinmem "github.com/Gurpartap/promptchain/statestore/inmem"
)

// ErrMissingInput is returned when a required workflow input is blank.
var ErrMissingInput = errors.New("missing workflow input")

// Dependencies are shared across runs of a workflow.
type Dependencies struct {
	Generator chain.Generator
	Router    chain.Router
	Telemetry chain.Telemetry
	Logger    *slog.Logger
	// Retry re-runs failed generation attempts; nil makes one attempt.
	Retry chain.RetryFunc
	// CallTimeout bounds each generation call when positive.
	CallTimeout time.Duration
	// Budget overrides the workflow's default context budget when positive.
	Budget int
}

// Run is the isolated state of one workflow execution: a fresh store,
// window, and runner.
type Run struct {
	Workflow string
	Runner   *chain.Runner
	Store    *statestoreinmem.Store
	Window   *contextwindow.Window

	logger  *slog.Logger
	started time.Time
}

// Start wires a fresh run, seeds it, and emits workflow_start.
func Start(ctx context.Context, deps Dependencies, workflow string, budget int, seeds map[string]string) (*Run, error) {
	if deps.Budget > 0 {
		budget = deps.Budget
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := statestoreinmem.New()
	window := contextwindow.New(budget)
	runner, err := chain.NewRunner(chain.Dependencies{
		Generator:   deps.Generator,
		Router:      deps.Router,
		Store:       store,
		Window:      window,
		Telemetry:   deps.Telemetry,
		Retry:       deps.Retry,
		CallTimeout: deps.CallTimeout,
	})
	if err != nil {
		return nil, err
	}

	run := &Run{
		Workflow: workflow,
		Runner:   runner,
		Store:    store,
		Window:   window,
		logger:   logger.With(slog.String("workflow", workflow)),
		started:  time.Now(),
	}
	runner.Seed(seeds)
	runner.Telemetry().LogWorkflowStep(ctx, workflow, chain.StepEventWorkflowStart, map[string]any{
		"inputs": slices.Sorted(maps.Keys(seeds)),
		"budget": window.Budget(),
	})
	run.logger.DebugContext(ctx, "workflow started", slog.Int("budget", window.Budget()))
	return run, nil
}

// Checkpoint snapshots the store and records the checkpoint event.
func (r *Run) Checkpoint(ctx context.Context, name string) int64 {
	version := r.Store.Checkpoint(name)
	r.Runner.Telemetry().LogWorkflowStep(ctx, name, chain.StepEventCheckpoint, map[string]any{
		"version": version,
	})
	return version
}

// Finish emits workflow_end with the telemetry summary and the outcome.
func (r *Run) Finish(ctx context.Context, runErr error) {
	summary := r.Runner.Telemetry().Summary()
	metadata := map[string]any{
		"success":     runErr == nil,
		"duration_ms": time.Since(r.started).Milliseconds(),
		"total_calls": summary.TotalCalls,
		"total_cost":  summary.TotalCost,
		"versions":    r.Store.Version(),
	}
	if runErr != nil {
		metadata["error"] = runErr.Error()
		r.logger.ErrorContext(ctx, "workflow failed", slog.Any("error", runErr))
	} else {
		r.logger.DebugContext(ctx, "workflow finished", slog.Int("calls", summary.TotalCalls))
	}
	r.Runner.Telemetry().LogWorkflowStep(ctx, r.Workflow, chain.StepEventWorkflowEnd, metadata)
}

// Exec runs steps, then emits workflow_end whatever the outcome.
func (r *Run) Exec(ctx context.Context, steps []chain.StepSpec) (map[string]string, error) {
	state, err := r.Runner.Run(ctx, steps)
	r.Finish(ctx, err)
	return state, err
}
