package secrets

import (
	"context"
	"encoding/json"
	"os"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// EnvProvider resolves secrets from process environment variables. Ref.Name
// is used verbatim as the variable name; when Ref.Field is set, the variable
// is parsed as a JSON object and the field is extracted from it.
type EnvProvider struct{}

// NewEnvProvider constructs the "env" provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref Ref, _ ResolveOptions) (string, error) {
	raw, ok := os.LookupEnv(ref.Name)
	if !ok {
		return "", apperrors.SecretMissing(p.Name(), ref.Name)
	}
	if ref.Field == "" {
		return raw, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", apperrors.SecretParseFailure(p.Name(), ref.Name, err)
	}
	v, ok := payload[ref.Field]
	if !ok {
		return "", apperrors.SecretFieldAbsent(p.Name(), ref.Name, ref.Field)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperrors.SecretFieldAbsent(p.Name(), ref.Name, ref.Field)
	}
	return s, nil
}
