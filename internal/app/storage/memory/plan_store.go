// Package memory provides in-process Plan/Run/Agent/Target stores for tests
// and single-process deployments, mirroring the semantics of their postgres
// counterparts without durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
)

// PlanStore is a mutex-guarded, name-keyed Plan repository.
type PlanStore struct {
	mu    sync.RWMutex
	byID  map[string]*plan.Plan
	byKey map[plan.Key]string
}

func NewPlanStore() *PlanStore {
	return &PlanStore{
		byID:  make(map[string]*plan.Plan),
		byKey: make(map[plan.Key]string),
	}
}

func (s *PlanStore) Create(_ context.Context, p plan.Plan) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	if _, exists := s.byKey[key]; exists {
		return nil, apperrors.AlreadyExists("plan", p.Name)
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.byID[p.ID] = &p
	s.byKey[key] = p.ID

	stored := p
	return &stored, nil
}

func (s *PlanStore) GetByID(_ context.Context, id string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("plan", id)
	}
	stored := *p
	return &stored, nil
}

func (s *PlanStore) GetByKey(_ context.Context, key plan.Key) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, apperrors.NotFound("plan", key.Name)
	}
	stored := *s.byID[id]
	return &stored, nil
}

func (s *PlanStore) Update(_ context.Context, p plan.Plan) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[p.ID]
	if !ok {
		return nil, apperrors.NotFound("plan", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if existing.Key() != p.Key() {
		delete(s.byKey, existing.Key())
		s.byKey[p.Key()] = p.ID
	}
	s.byID[p.ID] = &p

	stored := p
	return &stored, nil
}

// MarkStarted stamps LastStartedAt, used by the scheduler immediately after
// enqueuing a plan's jobs so the next tick's due-check excludes it.
func (s *PlanStore) MarkStarted(_ context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return apperrors.NotFound("plan", id)
	}
	p.LastStartedAt = &startedAt
	return nil
}

func (s *PlanStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return apperrors.NotFound("plan", id)
	}
	delete(s.byKey, p.Key())
	delete(s.byID, id)
	return nil
}

func (s *PlanStore) List(_ context.Context) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plan.Plan, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Due returns every plan whose frequency interval has elapsed as of now.
func (s *PlanStore) Due(_ context.Context, now time.Time) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []plan.Plan
	for _, p := range s.byID {
		if p.IsDue(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
