// Package executor implements worker.PlanExecutor: it resolves a job's plan
// against secrets and targets, runs it through the execution engine, and
// reports the outcome back to the Hub.
package executor

import (
	"context"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
	"github.com/griffin-open-source/griffin-sub001/internal/app/engine"
	"github.com/griffin-open-source/griffin-sub001/internal/app/hubclient"
	"github.com/griffin-open-source/griffin-sub001/internal/app/secrets"
)

// HubClient is the subset of hubclient.Client the executor needs, so tests
// can substitute a stub without standing up an HTTP server.
type HubClient interface {
	engine.TargetResolver
	PatchRun(ctx context.Context, runID string, update hubclient.RunUpdate) error
}

// Executor adapts the execution engine to worker.PlanExecutor.
type Executor struct {
	engine   *engine.Engine
	secrets  *secrets.Registry
	hub      HubClient
}

// New builds an Executor that resolves markers with registry, runs plans
// with eng, and reports outcomes via hub.
func New(eng *engine.Engine, registry *secrets.Registry, hub HubClient) *Executor {
	return &Executor{engine: eng, secrets: registry, hub: hub}
}

// Execute resolves payload.Plan's markers, runs it, and PATCHes the Run
// record. A non-nil return value tells the worker to retry the job; marker
// resolution and plan-level (pre-flight) failures are retryable, while a
// completed-but-unsuccessful run (failed assertions, 4xx/5xx responses) is
// reported as a terminal outcome and does not cause a retry.
func (e *Executor) Execute(ctx context.Context, payload queue.ExecutePlanPayload) error {
	if err := e.hub.PatchRun(ctx, payload.JobRunID, hubclient.RunUpdate{Status: run.StatusRunning}); err != nil {
		return err
	}

	resolved, err := engine.ResolvePlan(ctx, e.secrets, e.hub, payload.Plan)
	if err != nil {
		return err
	}

	result, err := e.engine.Run(ctx, payload.JobRunID, resolved)
	if err != nil {
		return err
	}

	status := run.StatusCompleted
	if !result.Success {
		status = run.StatusFailed
	}

	return e.hub.PatchRun(ctx, payload.JobRunID, hubclient.RunUpdate{
		Status:  status,
		Errors:  result.Errors,
		Results: result.Results,
	})
}
