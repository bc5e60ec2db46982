// Package scheduler ticks on an interval, finds due plans, and enqueues one
// execute-plan job per target location for each.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
)

// PlanSource is the subset of a Plan store the scheduler needs.
type PlanSource interface {
	Due(ctx context.Context, now time.Time) ([]plan.Plan, error)
	MarkStarted(ctx context.Context, id string, startedAt time.Time) error
}

// LocationSource reports which locations currently have an online agent,
// backing the empty-`locations` fan-out policy.
type LocationSource interface {
	OnlineLocations(ctx context.Context) ([]string, error)
}

// Hooks lets the scheduler report tick/enqueue outcomes without importing
// the metrics package directly.
type Hooks struct {
	OnTick    func(skipped bool)
	OnEnqueue func(location string)
}

// Scheduler is a tick-driven system.Service that discovers due plans and
// enqueues their jobs.
type Scheduler struct {
	plans     PlanSource
	locations LocationSource
	queue     queue.Queue
	interval  time.Duration
	hooks     Hooks
	logger    *logging.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New constructs a Scheduler that ticks every interval.
func New(plans PlanSource, locations LocationSource, q queue.Queue, interval time.Duration, hooks Hooks, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		plans:     plans,
		locations: locations,
		queue:     q,
		interval:  interval,
		hooks:     hooks,
		logger:    logger,
	}
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{Name: s.Name(), Domain: "monitoring", Layer: core.LayerEngine, Capabilities: []string{"schedule-plans"}}
}

// Start runs the tick loop in a background goroutine. Each tick is skipped
// entirely (and reported via Hooks.OnTick(true)) if the previous tick is
// still in flight, so ticks never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var tickMu sync.Mutex
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickMu.Lock()
			if inFlight {
				tickMu.Unlock()
				if s.hooks.OnTick != nil {
					s.hooks.OnTick(true)
				}
				continue
			}
			inFlight = true
			tickMu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.tick(ctx)
				tickMu.Lock()
				inFlight = false
				tickMu.Unlock()
			}()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.hooks.OnTick != nil {
		s.hooks.OnTick(false)
	}

	now := time.Now().UTC()
	due, err := s.plans.Due(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("list due plans")
		return
	}

	for _, p := range due {
		if err := s.schedulePlan(ctx, p, now); err != nil {
			s.logger.WithFields(map[string]interface{}{"plan_id": p.ID, "error": err.Error()}).Error("schedule plan")
			continue
		}
		if err := s.plans.MarkStarted(ctx, p.ID, now); err != nil {
			s.logger.WithFields(map[string]interface{}{"plan_id": p.ID, "error": err.Error()}).Error("mark plan started")
		}
	}
}

// schedulePlan resolves p's target locations and enqueues one job per
// location. An explicit location list is used as-is; an empty list fans out
// to every currently-online location. Zero resolved locations enqueues
// nothing for this tick, which is not an error.
func (s *Scheduler) schedulePlan(ctx context.Context, p plan.Plan, now time.Time) error {
	targets := p.Locations
	if len(targets) == 0 {
		online, err := s.locations.OnlineLocations(ctx)
		if err != nil {
			return err
		}
		targets = online
	}
	if len(targets) == 0 {
		s.logger.WithFields(map[string]interface{}{"plan_id": p.ID}).Debug("no target locations resolved, skipping tick")
		return nil
	}

	executionGroupID := uuid.NewString()
	for _, location := range targets {
		jobRunID := uuid.NewString()
		payload := domainqueue.ExecutePlanPayload{
			Type:             domainqueue.PayloadTypeExecutePlan,
			PlanID:           p.ID,
			JobRunID:         jobRunID,
			Environment:      p.Environment,
			Location:         location,
			ExecutionGroupID: executionGroupID,
			Plan:             p,
			ScheduledAt:      now,
		}
		if _, err := s.queue.Enqueue(ctx, payload, domainqueue.EnqueueOptions{Location: location}.WithDefaults(now)); err != nil {
			s.logger.WithFields(map[string]interface{}{"plan_id": p.ID, "location": location, "error": err.Error()}).Error("enqueue job")
			continue
		}
		if s.hooks.OnEnqueue != nil {
			s.hooks.OnEnqueue(location)
		}
	}
	return nil
}
