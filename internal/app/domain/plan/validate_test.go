package plan

import "testing"

func minimalValidPlan() Plan {
	return Plan{
		Version:   SchemaVersion,
		Frequency: Frequency{Every: 1, Unit: FrequencyMinute},
		Nodes: []Node{
			{Type: NodeHTTPRequest, HTTPRequest: &HTTPRequestNode{
				ID: "n1", Method: MethodGET, Base: "http://svc", Path: "/health", ResponseFormat: ResponseJSON,
			}},
		},
		Edges: []Edge{
			{From: StartSentinel, To: "n1"},
			{From: "n1", To: EndSentinel},
		},
	}
}

func TestValidateAcceptsMinimalPlan(t *testing.T) {
	errs := Validate(minimalValidPlan())
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateEmptyPlan(t *testing.T) {
	p := Plan{Version: SchemaVersion, Edges: []Edge{{From: StartSentinel, To: EndSentinel}}}
	errs := Validate(p)
	if len(errs) != 0 {
		t.Fatalf("expected empty plan with only sentinels to validate, got %v", errs)
	}
}

func TestValidateRejectsWrongSchemaVersion(t *testing.T) {
	p := minimalValidPlan()
	p.Version = "2.0"
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected schema version error")
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	p := minimalValidPlan()
	p.Edges = append(p.Edges, Edge{From: "n1", To: "ghost"})
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected dangling edge error")
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	p := minimalValidPlan()
	p.Nodes = append(p.Nodes, Node{Type: NodeWait, Wait: &WaitNode{ID: "n2", DurationMs: 10}})
	p.Edges = []Edge{
		{From: StartSentinel, To: "n1"},
		{From: "n1", To: "n2"},
		{From: "n2", To: "n1"},
		{From: "n2", To: EndSentinel},
	}
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected cycle detection error")
	}
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	p := minimalValidPlan()
	p.Nodes = append(p.Nodes, Node{Type: NodeWait, Wait: &WaitNode{ID: "n1", DurationMs: 10}})
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected duplicate node id error")
	}
}

func TestValidateRejectsMalformedSecretMarker(t *testing.T) {
	p := minimalValidPlan()
	p.Nodes[0].HTTPRequest.Headers = map[string]interface{}{
		"Authorization": map[string]interface{}{"$secret": map[string]interface{}{"ref": "TOK"}},
	}
	errs := Validate(p)
	if len(errs) == 0 {
		t.Fatal("expected malformed secret marker error")
	}
}

func TestClassifyMarkerVariants(t *testing.T) {
	kind, secret, _ := ClassifyMarker(map[string]interface{}{
		"$secret": map[string]interface{}{"provider": "env", "ref": "TOK"},
	})
	if kind != MarkerSecret || secret.Provider != "env" || secret.Ref != "TOK" {
		t.Fatalf("unexpected classification: %v %+v", kind, secret)
	}

	kind, _, variable := ClassifyMarker(map[string]interface{}{
		"$variable": map[string]interface{}{"key": "api-service"},
	})
	if kind != MarkerVariable || variable.Key != "api-service" {
		t.Fatalf("unexpected classification: %v %+v", kind, variable)
	}

	kind, _, _ = ClassifyMarker("literal-value")
	if kind != MarkerLiteral {
		t.Fatalf("expected literal classification, got %v", kind)
	}
}
