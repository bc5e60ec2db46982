package secrets

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/metrics"
)

// DefaultCacheTTL is how long a resolved secret value is reused before the
// registry asks the owning provider to resolve it again.
const DefaultCacheTTL = 5 * time.Minute

// Registry holds the set of providers a Hub or Agent process has been
// configured with, and resolves Refs against them with a shared TTL cache.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	cache     *ttlCache
}

// NewRegistry constructs an empty registry. Providers are added with Register.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		cache:     newTTLCache(DefaultCacheTTL),
	}
}

// Register adds a provider, keyed by its own Name(). Registering a second
// provider under a name already in use returns a duplicate-provider error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return apperrors.SecretDuplicateProvider(p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

func (r *Registry) provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.SecretProviderUnknown(name)
	}
	return p, nil
}

// Resolve returns the value for ref, consulting the cache before calling the
// underlying provider, and records a secrets_resolutions_total metric either
// way.
func (r *Registry) Resolve(ctx context.Context, ref Ref, opts ResolveOptions) (string, error) {
	key := cacheKey(ref, opts)
	if v, ok := r.cache.Get(key); ok {
		metrics.RecordSecretResolution(ref.Provider, "cache_hit")
		return v, nil
	}

	p, err := r.provider(ref.Provider)
	if err != nil {
		metrics.RecordSecretResolution(ref.Provider, "unknown_provider")
		return "", err
	}

	value, err := p.Resolve(ctx, ref, opts)
	if err != nil {
		metrics.RecordSecretResolution(ref.Provider, "error")
		return "", err
	}

	r.cache.Set(key, value)
	metrics.RecordSecretResolution(ref.Provider, "success")
	return value, nil
}

// ResolveMany resolves a batch of Refs, grouping by provider and preferring
// each provider's ManyResolver implementation when available.
func (r *Registry) ResolveMany(ctx context.Context, refs []Ref, opts ResolveOptions) (map[Ref]string, error) {
	results := make(map[Ref]string, len(refs))
	byProvider := make(map[string][]Ref)
	for _, ref := range refs {
		byProvider[ref.Provider] = append(byProvider[ref.Provider], ref)
	}

	for name, providerRefs := range byProvider {
		p, err := r.provider(name)
		if err != nil {
			return nil, err
		}
		if many, ok := p.(ManyResolver); ok {
			batch, err := many.ResolveMany(ctx, providerRefs, opts)
			if err != nil {
				metrics.RecordSecretResolution(name, "error")
				return nil, err
			}
			for ref, v := range batch {
				key := cacheKey(ref, opts)
				r.cache.Set(key, v)
				results[ref] = v
			}
			metrics.RecordSecretResolution(name, "success")
			continue
		}
		for _, ref := range providerRefs {
			v, err := r.Resolve(ctx, ref, opts)
			if err != nil {
				return nil, err
			}
			results[ref] = v
		}
	}
	return results, nil
}

func cacheKey(ref Ref, opts ResolveOptions) string {
	return opts.OrganizationID + "/" + opts.Environment + "/" + ref.Provider + "/" + ref.Name + "/" + ref.Field
}
