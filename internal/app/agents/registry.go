// Package agents manages the registered-agent directory: registration,
// heartbeats, and the periodic staleness sweep that marks unresponsive
// agents OFFLINE.
package agents

import (
	"context"
	"sync"
	"time"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	domainagent "github.com/griffin-open-source/griffin-sub001/internal/app/domain/agent"
	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
)

// Store is the subset of an Agent store the registry needs.
type Store interface {
	Register(ctx context.Context, location string, metadata map[string]string) (*domainagent.Agent, error)
	Heartbeat(ctx context.Context, id string) (*domainagent.Agent, error)
	Get(ctx context.Context, id string) (*domainagent.Agent, error)
	Deregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]domainagent.Agent, error)
	OnlineLocations(ctx context.Context) ([]string, error)
	SweepStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error)
}

// Hooks reports heartbeat/online-count outcomes without a metrics import.
type Hooks struct {
	OnHeartbeat   func(location string)
	OnOnlineCount func(location string, count int)
}

// Registry is a system.Service that periodically sweeps for stale agents.
type Registry struct {
	store              Store
	monitoringInterval time.Duration
	heartbeatTimeout   time.Duration
	hooks              Hooks
	logger             *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(store Store, monitoringInterval, heartbeatTimeout time.Duration, hooks Hooks, logger *logging.Logger) *Registry {
	if monitoringInterval <= 0 {
		monitoringInterval = 30 * time.Second
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 60 * time.Second
	}
	return &Registry{store: store, monitoringInterval: monitoringInterval, heartbeatTimeout: heartbeatTimeout, hooks: hooks, logger: logger}
}

func (r *Registry) Name() string { return "agent-registry" }

func (r *Registry) Descriptor() core.Descriptor {
	return core.Descriptor{Name: r.Name(), Domain: "monitoring", Layer: core.LayerData, Capabilities: []string{"agent-directory"}}
}

func (r *Registry) Register(ctx context.Context, location string, metadata map[string]string) (*domainagent.Agent, error) {
	return r.store.Register(ctx, location, metadata)
}

func (r *Registry) Heartbeat(ctx context.Context, id string) (*domainagent.Agent, error) {
	a, err := r.store.Heartbeat(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.hooks.OnHeartbeat != nil {
		r.hooks.OnHeartbeat(a.Location)
	}
	return a, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*domainagent.Agent, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) Deregister(ctx context.Context, id string) error {
	return r.store.Deregister(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]domainagent.Agent, error) {
	return r.store.List(ctx)
}

func (r *Registry) OnlineLocations(ctx context.Context) ([]string, error) {
	return r.store.OnlineLocations(ctx)
}

func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.sweepLoop(loopCtx)
	return nil
}

func (r *Registry) Stop(_ context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.monitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	now := time.Now().UTC()
	swept, err := r.store.SweepStale(ctx, now, r.heartbeatTimeout)
	if err != nil {
		r.logger.WithError(err).Error("sweep stale agents")
		return
	}
	if swept > 0 {
		r.logger.WithFields(map[string]interface{}{"count": swept}).Info("swept stale agents offline")
	}
	r.publishOnlineCounts(ctx)
}

func (r *Registry) publishOnlineCounts(ctx context.Context) {
	if r.hooks.OnOnlineCount == nil {
		return
	}
	list, err := r.store.List(ctx)
	if err != nil {
		r.logger.WithError(err).Error("list agents for online-count publish")
		return
	}
	counts := make(map[string]int)
	for _, a := range list {
		if a.Status == domainagent.StatusOnline {
			counts[a.Location]++
		}
	}
	for location, count := range counts {
		r.hooks.OnOnlineCount(location, count)
	}
}
