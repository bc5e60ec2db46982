package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/agent"
)

// AgentStore is a mutex-guarded Agent repository.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]*agent.Agent)}
}

func (s *AgentStore) Register(_ context.Context, location string, metadata map[string]string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	a := &agent.Agent{
		ID:            uuid.NewString(),
		Location:      location,
		Status:        agent.StatusOnline,
		LastHeartbeat: now,
		RegisteredAt:  now,
		Metadata:      metadata,
	}
	s.agents[a.ID] = a

	out := *a
	return &out, nil
}

func (s *AgentStore) Heartbeat(_ context.Context, id string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, apperrors.NotFound("agent", id)
	}
	a.LastHeartbeat = time.Now().UTC()
	a.Status = agent.StatusOnline

	out := *a
	return &out, nil
}

func (s *AgentStore) Get(_ context.Context, id string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, apperrors.NotFound("agent", id)
	}
	out := *a
	return &out, nil
}

func (s *AgentStore) Deregister(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return apperrors.NotFound("agent", id)
	}
	delete(s.agents, id)
	return nil
}

func (s *AgentStore) List(_ context.Context) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

// OnlineLocations returns the distinct set of locations with at least one
// ONLINE agent, used by the scheduler's empty-`locations` fan-out policy.
func (s *AgentStore) OnlineLocations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, a := range s.agents {
		if a.Status == agent.StatusOnline {
			seen[a.Location] = true
		}
	}
	out := make([]string, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out, nil
}

// SetHeartbeatForTest backdates an agent's last heartbeat; exported only for
// tests that need to simulate staleness without sleeping.
func (s *AgentStore) SetHeartbeatForTest(id string, lastHeartbeat time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		a.LastHeartbeat = lastHeartbeat
	}
}

// SweepStale marks every agent whose heartbeat has expired as OFFLINE and
// returns how many were transitioned.
func (s *AgentStore) SweepStale(_ context.Context, now time.Time, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, a := range s.agents {
		if a.Status == agent.StatusOnline && a.IsStale(now, timeout) {
			a.Status = agent.StatusOffline
			count++
		}
	}
	return count, nil
}
