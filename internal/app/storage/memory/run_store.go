package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
)

// RunStore is a mutex-guarded Run repository.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*run.Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*run.Run)}
}

func (s *RunStore) Create(_ context.Context, r run.Run) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	stored := r
	s.runs[r.ID] = &stored

	out := r
	return &out, nil
}

func (s *RunStore) GetByID(_ context.Context, id string) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", id)
	}
	out := *r
	return &out, nil
}

// Transition applies CanTransition-guarded status updates, recording
// completion fields when the run reaches a terminal state.
func (s *RunStore) Transition(_ context.Context, id string, next run.Status, results []run.NodeResult, errs []string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", id)
	}
	if !r.CanTransition(next) {
		return nil, apperrors.Conflict("illegal run status transition from " + string(r.Status) + " to " + string(next))
	}
	r.Status = next
	if results != nil {
		r.Results = results
	}
	if errs != nil {
		r.Errors = errs
	}
	if next == run.StatusCompleted || next == run.StatusFailed {
		now := time.Now().UTC()
		r.CompletedAt = &now
		duration := now.Sub(r.StartedAt).Milliseconds()
		r.DurationMs = &duration
		success := next == run.StatusCompleted
		r.Success = &success
	}

	out := *r
	return &out, nil
}

// ListByPlan returns a plan's runs newest-first, matching the
// (planId, startedAt DESC) access pattern the HTTP surface exposes.
func (s *RunStore) ListByPlan(_ context.Context, planID string, limit int) ([]run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []run.Run
	for _, r := range s.runs {
		if r.PlanID == planID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
