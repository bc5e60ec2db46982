package memory

import (
	"context"
	"sync"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/target"
)

type targetKey struct {
	organization string
	environment  string
}

// TargetStore is a mutex-guarded repository of per-(organization,
// environment) target maps.
type TargetStore struct {
	mu      sync.RWMutex
	configs map[targetKey]target.Config
}

func NewTargetStore() *TargetStore {
	return &TargetStore{configs: make(map[targetKey]target.Config)}
}

// Put replaces (or creates) the target map for organization/environment.
func (s *TargetStore) Put(_ context.Context, cfg target.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[targetKey{cfg.Organization, cfg.Environment}] = cfg
	return nil
}

func (s *TargetStore) Get(_ context.Context, organization, environment string) (*target.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[targetKey{organization, environment}]
	if !ok {
		return nil, apperrors.NotFound("target-config", organization+"/"+environment)
	}
	out := cfg
	return &out, nil
}

// Resolve looks up key's value (optionally spliced into template) within
// organization/environment's target map.
func (s *TargetStore) Resolve(ctx context.Context, organization, environment, key, template string) (string, error) {
	cfg, err := s.Get(ctx, organization, environment)
	if err != nil {
		return "", err
	}
	value, ok := cfg.Resolve(key, template)
	if !ok {
		return "", apperrors.NotFound("target", key)
	}
	return value, nil
}

// SetKey creates or replaces a single key within organization/environment's
// target map, creating the map itself on first use.
func (s *TargetStore) SetKey(_ context.Context, organization, environment, key, baseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := targetKey{organization, environment}
	cfg, ok := s.configs[tk]
	if !ok {
		cfg = target.Config{Organization: organization, Environment: environment, Targets: map[string]string{}}
	}
	if cfg.Targets == nil {
		cfg.Targets = map[string]string{}
	}
	cfg.Targets[key] = baseURL
	s.configs[tk] = cfg
	return nil
}

// DeleteKey removes a single key from organization/environment's target map.
func (s *TargetStore) DeleteKey(_ context.Context, organization, environment, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := targetKey{organization, environment}
	cfg, ok := s.configs[tk]
	if !ok {
		return apperrors.NotFound("target-config", organization+"/"+environment)
	}
	if _, ok := cfg.Targets[key]; !ok {
		return apperrors.NotFound("target", key)
	}
	delete(cfg.Targets, key)
	s.configs[tk] = cfg
	return nil
}
