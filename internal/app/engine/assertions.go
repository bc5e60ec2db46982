package engine

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
)

// nodeResponse is what an HTTP_REQUEST node leaves behind for later
// ASSERTION nodes to inspect.
type nodeResponse struct {
	StatusCode int
	Headers    map[string]string
	RawBody    []byte
	Format     plan.ResponseFormat
}

// evaluateAssertion resolves assertion.Path against responses and checks
// assertion.Predicate. The path is rooted at an earlier node's response: its
// first segment names that node's id, its second selects the response facet
// ("status", "headers", or "body"); for "headers" the third segment is the
// header name; for "body" the remaining segments address into the parsed
// body (gjson dot-path for JSON, element-name chain for XML, ignored for
// TEXT, where the whole body is the value).
func evaluateAssertion(responses map[string]nodeResponse, a plan.Assertion) (bool, interface{}, error) {
	if len(a.Path) < 2 {
		return false, nil, apperrors.InvalidInput("path", "assertion path must be at least [nodeId, facet]")
	}
	sourceNodeID := a.Path[0]
	resp, ok := responses[sourceNodeID]
	if !ok {
		return false, nil, apperrors.NotFound("node response", sourceNodeID)
	}

	actual, err := resolvePath(resp, a.Path[1:])
	if err != nil {
		return false, nil, err
	}

	ok, err = evaluatePredicate(a.Predicate, actual, a.Expected)
	return ok, actual, err
}

func resolvePath(resp nodeResponse, path []string) (interface{}, error) {
	switch path[0] {
	case "status":
		return resp.StatusCode, nil
	case "headers":
		if len(path) < 2 {
			return nil, apperrors.InvalidInput("path", "headers path requires a header name")
		}
		return resp.Headers[path[1]], nil
	case "body":
		return resolveBodyPath(resp, path[1:])
	default:
		return nil, apperrors.InvalidInput("path", "unknown path root "+path[0])
	}
}

func resolveBodyPath(resp nodeResponse, rest []string) (interface{}, error) {
	switch resp.Format {
	case plan.ResponseJSON:
		if len(rest) == 0 {
			return string(resp.RawBody), nil
		}
		result := gjson.GetBytes(resp.RawBody, strings.Join(rest, "."))
		if !result.Exists() {
			return nil, nil
		}
		return result.Value(), nil
	case plan.ResponseXML:
		return resolveXMLPath(resp.RawBody, rest)
	default:
		return string(resp.RawBody), nil
	}
}

// resolveXMLPath walks a decoded XML token stream looking for the element
// chain named by rest, returning its character data. XML has no standard
// JSONPath-equivalent in this dependency set, so a direct streaming walk is
// used instead of unmarshaling into an intermediate structure.
func resolveXMLPath(body []byte, rest []string) (interface{}, error) {
	if len(rest) == 0 {
		return string(body), nil
	}
	decoder := xml.NewDecoder(strings.NewReader(string(body)))
	var stack []string
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if matchesPath(stack, rest) {
				var text string
				if err := decoder.DecodeElement(&text, &t); err == nil {
					return strings.TrimSpace(text), nil
				}
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil, nil
}

func matchesPath(stack, rest []string) bool {
	if len(stack) < len(rest) {
		return false
	}
	offset := len(stack) - len(rest)
	for i, seg := range rest {
		if stack[offset+i] != seg {
			return false
		}
	}
	return true
}

func evaluatePredicate(p plan.Predicate, actual, expected interface{}) (bool, error) {
	if !p.Valid() {
		return false, apperrors.InvalidInput("predicate", string(p))
	}

	if p.IsUnary() {
		switch p {
		case plan.PredicateIsNull:
			return actual == nil, nil
		case plan.PredicateIsNotNull:
			return actual != nil, nil
		case plan.PredicateIsTrue:
			return toBool(actual), nil
		case plan.PredicateIsFalse:
			return !toBool(actual), nil
		case plan.PredicateIsEmpty:
			return toString(actual) == "", nil
		case plan.PredicateIsNotEmpty:
			return toString(actual) != "", nil
		}
	}

	switch p {
	case plan.PredicateEQ:
		return compareEqual(actual, expected), nil
	case plan.PredicateNE:
		return !compareEqual(actual, expected), nil
	case plan.PredicateGT, plan.PredicateLT, plan.PredicateGE, plan.PredicateLE:
		return compareNumeric(p, actual, expected)
	case plan.PredicateContains:
		return strings.Contains(toString(actual), toString(expected)), nil
	case plan.PredicateNotContains:
		return !strings.Contains(toString(actual), toString(expected)), nil
	case plan.PredicateStartsWith:
		return strings.HasPrefix(toString(actual), toString(expected)), nil
	case plan.PredicateEndsWith:
		return strings.HasSuffix(toString(actual), toString(expected)), nil
	}
	return false, apperrors.InvalidInput("predicate", string(p))
}

func compareEqual(actual, expected interface{}) bool {
	return toString(actual) == toString(expected)
}

func compareNumeric(p plan.Predicate, actual, expected interface{}) (bool, error) {
	a, aok := toFloat(actual)
	b, bok := toFloat(expected)
	if !aok || !bok {
		return false, apperrors.InvalidFormat("expected", "numeric value")
	}
	switch p {
	case plan.PredicateGT:
		return a > b, nil
	case plan.PredicateLT:
		return a < b, nil
	case plan.PredicateGE:
		return a >= b, nil
	case plan.PredicateLE:
		return a <= b, nil
	}
	return false, nil
}

func toBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
