package secrets

import (
	"encoding/json"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// structuredField parses raw as a JSON object and extracts a string field
// from it, used by providers whose backend stores one secret value per
// logical name but lets callers address sub-fields of a JSON blob.
func structuredField(provider string, ref Ref, raw string) (string, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", apperrors.SecretParseFailure(provider, ref.Name, err)
	}
	v, ok := payload[ref.Field]
	if !ok {
		return "", apperrors.SecretFieldAbsent(provider, ref.Name, ref.Field)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperrors.SecretFieldAbsent(provider, ref.Name, ref.Field)
	}
	return s, nil
}
