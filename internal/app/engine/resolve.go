package engine

import (
	"context"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	"github.com/griffin-open-source/griffin-sub001/internal/app/secrets"
)

// SecretResolver resolves a decoded $secret marker to its plain string
// value. *secrets.Registry satisfies this directly; tests can supply a stub.
type SecretResolver interface {
	Resolve(ctx context.Context, ref secrets.Ref, opts secrets.ResolveOptions) (string, error)
}

// TargetResolver resolves a decoded $variable marker's key, spliced into its
// template, against the Hub's per-(organization, environment) target map.
// hubclient.Client satisfies this over the Hub's target CRUD route.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, organization, environment, key, template string) (string, error)
}

// ResolvePlan walks every HTTP_REQUEST node's headers and body, replacing
// every $secret and $variable marker with its resolved plain-string value,
// and returns a deep copy of p with the substitutions applied. p itself is
// never mutated. A plan with no markers at all is returned unchanged
// (still a copy, since callers may mutate LastStartedAt etc. independently).
func ResolvePlan(ctx context.Context, secretResolver SecretResolver, targetResolver TargetResolver, p plan.Plan) (plan.Plan, error) {
	out := p
	out.Nodes = make([]plan.Node, len(p.Nodes))
	for i, n := range p.Nodes {
		if n.Type != plan.NodeHTTPRequest || n.HTTPRequest == nil {
			out.Nodes[i] = n
			continue
		}
		resolvedHeaders, err := resolveMarkers(ctx, secretResolver, targetResolver, n.HTTPRequest.Headers, p.Organization, p.Environment)
		if err != nil {
			return plan.Plan{}, err
		}
		resolvedBody, err := resolveMarkers(ctx, secretResolver, targetResolver, n.HTTPRequest.Body, p.Organization, p.Environment)
		if err != nil {
			return plan.Plan{}, err
		}
		clone := *n.HTTPRequest
		if headerMap, ok := resolvedHeaders.(map[string]interface{}); ok {
			clone.Headers = headerMap
		} else if resolvedHeaders == nil {
			clone.Headers = nil
		}
		clone.Body = resolvedBody
		out.Nodes[i] = plan.Node{Type: plan.NodeHTTPRequest, HTTPRequest: &clone}
	}
	return out, nil
}

func resolveMarkers(ctx context.Context, secretResolver SecretResolver, targetResolver TargetResolver, value interface{}, org, env string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	if obj, ok := value.(map[string]interface{}); ok {
		kind, secretRef, variableRef := plan.ClassifyMarker(obj)
		switch kind {
		case plan.MarkerSecret:
			val, err := secretResolver.Resolve(ctx, secrets.Ref{Provider: secretRef.Provider, Name: secretRef.Ref, Field: secretRef.Field}, secrets.ResolveOptions{
				OrganizationID: org,
				Environment:    env,
			})
			if err != nil {
				return nil, err
			}
			return val, nil
		case plan.MarkerVariable:
			val, err := targetResolver.ResolveTarget(ctx, org, env, variableRef.Key, variableRef.Template)
			if err != nil {
				return nil, err
			}
			return val, nil
		}

		resolved := make(map[string]interface{}, len(obj))
		for k, child := range obj {
			r, err := resolveMarkers(ctx, secretResolver, targetResolver, child, org, env)
			if err != nil {
				return nil, err
			}
			resolved[k] = r
		}
		return resolved, nil
	}

	if list, ok := value.([]interface{}); ok {
		resolved := make([]interface{}, len(list))
		for i, child := range list {
			r, err := resolveMarkers(ctx, secretResolver, targetResolver, child, org, env)
			if err != nil {
				return nil, err
			}
			resolved[i] = r
		}
		return resolved, nil
	}

	return value, nil
}
