// Package secrets resolves secret references embedded in plan documents
// against pluggable providers (environment variables, a cloud secret store,
// or a Vault KV mount) and substitutes the resolved values into the
// in-memory plan before it is handed to the execution engine.
package secrets

import "context"

// Ref identifies one secret value to resolve: Provider names a registered
// Provider, Name is the provider-specific secret identifier, and Field
// optionally selects one key out of a structured (JSON/KV) secret payload.
type Ref struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Field    string `json:"field,omitempty"`
}

// ResolveOptions carries call-scoped parameters a Provider may need, such as
// which organization/environment a lookup is scoped to.
type ResolveOptions struct {
	OrganizationID string
	Environment    string
}

// Provider resolves named secrets from a single backing store.
type Provider interface {
	// Name returns the provider identifier used in Ref.Provider.
	Name() string
	// Resolve returns the raw secret value for ref, or an error if it
	// cannot be found, the backend is unreachable, or ref.Field is absent
	// from a structured payload.
	Resolve(ctx context.Context, ref Ref, opts ResolveOptions) (string, error)
}

// ManyResolver is optionally implemented by providers that can batch-fetch
// several secrets in one round trip to their backend.
type ManyResolver interface {
	ResolveMany(ctx context.Context, refs []Ref, opts ResolveOptions) (map[Ref]string, error)
}

// Validator is optionally implemented by providers that can check their own
// configuration (credentials, reachability) before being registered.
type Validator interface {
	Validate(ctx context.Context) error
}
