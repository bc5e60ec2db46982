package plan

import (
	"fmt"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// Validate checks schema shape, graph reachability, node id uniqueness,
// edge-endpoint existence, and that every $secret/$variable marker embedded
// in the plan is syntactically well formed. It returns every violation found
// rather than failing fast on the first one.
func Validate(p Plan) []error {
	var errs []error

	if p.Version != SchemaVersion {
		errs = append(errs, apperrors.SchemaVersion(p.Version))
	}

	ids := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		id := n.ID()
		if id == "" {
			errs = append(errs, apperrors.New(apperrors.ErrCodeInvalidInput, "node missing id", 400))
			continue
		}
		if id == StartSentinel || id == EndSentinel {
			errs = append(errs, apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("node id %q is reserved", id), 400))
			continue
		}
		if ids[id] {
			errs = append(errs, apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("duplicate node id %q", id), 400))
			continue
		}
		ids[id] = true

		if err := validateNode(n); err != nil {
			errs = append(errs, err)
		}
	}

	for _, e := range p.Edges {
		if !validEndpoint(e.From, ids) {
			errs = append(errs, apperrors.DanglingEdge(e.From, e.To))
		}
		if !validEndpoint(e.To, ids) {
			errs = append(errs, apperrors.DanglingEdge(e.From, e.To))
		}
	}

	if cycleErr := checkAcyclicAndReachable(p, ids); cycleErr != nil {
		errs = append(errs, cycleErr)
	}

	errs = append(errs, validateMarkers(p)...)

	return errs
}

func validEndpoint(id string, ids map[string]bool) bool {
	return id == StartSentinel || id == EndSentinel || ids[id]
}

func validateNode(n Node) error {
	switch n.Type {
	case NodeHTTPRequest:
		if n.HTTPRequest == nil {
			return apperrors.New(apperrors.ErrCodeInvalidInput, "http_request node missing body", 400)
		}
		if !validMethod(n.HTTPRequest.Method) {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("invalid method %q", n.HTTPRequest.Method), 400)
		}
		if !validResponseFormat(n.HTTPRequest.ResponseFormat) {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("invalid response_format %q", n.HTTPRequest.ResponseFormat), 400)
		}
	case NodeWait:
		if n.Wait == nil || n.Wait.DurationMs < 0 {
			return apperrors.OutOfRange("duration_ms", "0", "")
		}
	case NodeAssertion:
		if n.Assertion == nil {
			return apperrors.New(apperrors.ErrCodeInvalidInput, "assertion node missing body", 400)
		}
		for _, a := range n.Assertion.Assertions {
			if !a.Predicate.Valid() {
				return apperrors.New(apperrors.ErrCodeInvalidInput,
					fmt.Sprintf("invalid predicate %q", a.Predicate), 400)
			}
		}
	default:
		return apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown node type %q", n.Type), 400)
	}
	return nil
}

func validMethod(m HTTPMethod) bool {
	switch m {
	case MethodGET, MethodPOST, MethodPUT, MethodDELETE, MethodPATCH, MethodHEAD, MethodOPTIONS, MethodCONNECT, MethodTRACE:
		return true
	default:
		return false
	}
}

func validResponseFormat(f ResponseFormat) bool {
	switch f {
	case ResponseJSON, ResponseXML, ResponseText:
		return true
	default:
		return false
	}
}

// checkAcyclicAndReachable verifies the graph rooted at __START__ is a DAG,
// that every node is reachable from __START__, and that every node can reach
// __END__.
func checkAcyclicAndReachable(p Plan, ids map[string]bool) error {
	adj := make(map[string][]string)
	rev := make(map[string][]string)
	for _, e := range p.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		rev[e.To] = append(rev[e.To], e.From)
	}

	if cycle := findCycle(StartSentinel, adj); cycle != "" {
		return apperrors.GraphCycle(cycle)
	}

	reachableFromStart := bfs(StartSentinel, adj)
	reachesEnd := bfs(EndSentinel, rev)

	for id := range ids {
		if !reachableFromStart[id] {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("node %q is unreachable from __START__", id), 400)
		}
		if !reachesEnd[id] {
			return apperrors.New(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("node %q has no path to __END__", id), 400)
		}
	}
	return nil
}

func findCycle(start string, adj map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var cycleNode string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, next := range adj[node] {
			switch color[next] {
			case gray:
				cycleNode = next
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	visit(start)
	return cycleNode
}

func bfs(start string, adj map[string][]string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

func validateMarkers(p Plan) []error {
	var errs []error
	for _, n := range p.Nodes {
		if n.Type != NodeHTTPRequest || n.HTTPRequest == nil {
			continue
		}
		walkMarkers(n.HTTPRequest.Headers, &errs)
		walkMarkers(n.HTTPRequest.Body, &errs)
	}
	return errs
}

func walkMarkers(value interface{}, errs *[]error) {
	switch v := value.(type) {
	case map[string]interface{}:
		kind, secret, variable := ClassifyMarker(v)
		switch kind {
		case MarkerSecret:
			if secret.Provider == "" || secret.Ref == "" {
				*errs = append(*errs, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed $secret marker", 400))
			}
			return
		case MarkerVariable:
			if variable.Key == "" {
				*errs = append(*errs, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed $variable marker", 400))
			}
			return
		}
		if _, ok := v[SecretMarkerKey]; ok {
			*errs = append(*errs, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed $secret marker", 400))
			return
		}
		if _, ok := v[VariableMarkerKey]; ok {
			*errs = append(*errs, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed $variable marker", 400))
			return
		}
		for _, child := range v {
			walkMarkers(child, errs)
		}
	case []interface{}:
		for _, child := range v {
			walkMarkers(child, errs)
		}
	}
}
