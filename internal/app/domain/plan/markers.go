package plan

// MarkerKind tags the three possible shapes a value inside a node's headers
// or body can take: a literal value, a secret reference, or a target
// (variable) reference.
type MarkerKind string

const (
	MarkerLiteral  MarkerKind = "literal"
	MarkerSecret   MarkerKind = "secret"
	MarkerVariable MarkerKind = "variable"
)

// SecretMarkerKey is the reserved JSON object key identifying a secret
// reference fragment: {"$secret": {...}}.
const SecretMarkerKey = "$secret"

// VariableMarkerKey is the reserved JSON object key identifying a target
// (variable) reference fragment: {"$variable": {...}}.
const VariableMarkerKey = "$variable"

// SecretRef is the decoded form of a {"$secret": {...}} marker.
type SecretRef struct {
	Provider string `json:"provider"`
	Ref      string `json:"ref"`
	Version  string `json:"version,omitempty"`
	Field    string `json:"field,omitempty"`
}

// VariableRef is the decoded form of a {"$variable": {...}} marker.
type VariableRef struct {
	Key      string `json:"key"`
	Template string `json:"template,omitempty"`
}

// ClassifyMarker inspects a decoded JSON value (as produced by
// encoding/json.Unmarshal into interface{}) and reports which marker kind it
// represents, decoding the marker's payload when it is a secret or variable
// reference. Every traversal in this codebase goes through this function
// instead of peeking at map keys ad hoc.
func ClassifyMarker(value interface{}) (kind MarkerKind, secret *SecretRef, variable *VariableRef) {
	obj, ok := value.(map[string]interface{})
	if !ok || len(obj) != 1 {
		return MarkerLiteral, nil, nil
	}

	if raw, ok := obj[SecretMarkerKey]; ok {
		if ref, ok := decodeSecretRef(raw); ok {
			return MarkerSecret, ref, nil
		}
	}
	if raw, ok := obj[VariableMarkerKey]; ok {
		if ref, ok := decodeVariableRef(raw); ok {
			return MarkerVariable, nil, ref
		}
	}
	return MarkerLiteral, nil, nil
}

func decodeSecretRef(raw interface{}) (*SecretRef, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	provider, _ := m["provider"].(string)
	ref, _ := m["ref"].(string)
	if provider == "" || ref == "" {
		return nil, false
	}
	version, _ := m["version"].(string)
	field, _ := m["field"].(string)
	return &SecretRef{Provider: provider, Ref: ref, Version: version, Field: field}, true
}

func decodeVariableRef(raw interface{}) (*VariableRef, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	key, _ := m["key"].(string)
	if key == "" {
		return nil, false
	}
	template, _ := m["template"].(string)
	return &VariableRef{Key: key, Template: template}, true
}
