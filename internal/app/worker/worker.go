// Package worker implements the agent-side poll/ack/fail loop that drains
// execute-plan jobs from the durable queue and hands them to the execution
// engine.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
)

// PlanExecutor runs one execute-plan job's payload to completion.
type PlanExecutor interface {
	Execute(ctx context.Context, payload domainqueue.ExecutePlanPayload) error
}

// Hooks reports job outcomes without coupling the worker to the metrics
// package directly.
type Hooks struct {
	OnJobOutcome func(outcome string, duration time.Duration)
}

// Config parameterizes the poll loop's backoff behavior.
type Config struct {
	Location            string
	EmptyDelay           time.Duration
	MaxEmptyDelay        time.Duration
	PlanExecutionTimeout time.Duration
}

// Worker polls Queue for location's jobs and executes them one at a time.
// An empty queue doubles the poll delay up to MaxEmptyDelay; any dequeue
// resets the delay back to EmptyDelay.
type Worker struct {
	queue    queue.Queue
	executor PlanExecutor
	cfg      Config
	hooks    Hooks
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(q queue.Queue, executor PlanExecutor, cfg Config, hooks Hooks, logger *logging.Logger) *Worker {
	if cfg.EmptyDelay <= 0 {
		cfg.EmptyDelay = 500 * time.Millisecond
	}
	if cfg.MaxEmptyDelay <= 0 {
		cfg.MaxEmptyDelay = 60 * time.Second
	}
	if cfg.PlanExecutionTimeout <= 0 {
		cfg.PlanExecutionTimeout = 5 * time.Minute
	}
	return &Worker{queue: q, executor: executor, cfg: cfg, hooks: hooks, logger: logger}
}

func (w *Worker) Name() string { return "worker:" + w.cfg.Location }

func (w *Worker) Descriptor() core.Descriptor {
	return core.Descriptor{Name: w.Name(), Domain: "monitoring", Layer: core.LayerEngine, Capabilities: []string{"execute-plan"}}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(loopCtx)
	return nil
}

func (w *Worker) Stop(_ context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	delay := w.cfg.EmptyDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.Location)
		if err != nil {
			w.logger.WithError(err).Error("dequeue job")
			sleep(ctx, delay)
			continue
		}
		if job == nil {
			sleep(ctx, delay)
			delay = nextDelay(delay, w.cfg.MaxEmptyDelay)
			continue
		}

		delay = w.cfg.EmptyDelay
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *domainqueue.Job) {
	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, w.cfg.PlanExecutionTimeout)
	defer cancel()

	err := w.executor.Execute(execCtx, job.Data)
	duration := time.Since(start)

	if err != nil {
		w.logger.WithFields(map[string]interface{}{"job_id": job.ID, "error": err.Error()}).Error("execute plan job")
		retry := job.Attempts < job.MaxAttempts
		if failErr := w.queue.Fail(ctx, job.ID, err, retry); failErr != nil {
			w.logger.WithError(failErr).Error("mark job failed")
		}
		w.report("failed", duration)
		return
	}

	if ackErr := w.queue.Acknowledge(ctx, job.ID); ackErr != nil {
		w.logger.WithError(ackErr).Error("acknowledge job")
	}
	w.report("completed", duration)
}

func (w *Worker) report(outcome string, duration time.Duration) {
	if w.hooks.OnJobOutcome != nil {
		w.hooks.OnJobOutcome(outcome, duration)
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
