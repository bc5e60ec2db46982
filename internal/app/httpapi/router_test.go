package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/storage/memory"
)

func samplePlan(name string) plan.Plan {
	return plan.Plan{
		Organization: "acme",
		Project:      "web",
		Environment:  "prod",
		Name:         name,
		Version:      plan.SchemaVersion,
		Frequency:    plan.Frequency{Every: 5, Unit: plan.FrequencyMinute},
		Nodes: []plan.Node{
			{Type: plan.NodeWait, Wait: &plan.WaitNode{ID: "w1", DurationMs: 10}},
		},
		Edges: []plan.Edge{
			{From: plan.StartSentinel, To: "w1"},
			{From: "w1", To: plan.EndSentinel},
		},
	}
}

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Plans:   memory.NewPlanStore(),
		Runs:    memory.NewRunStore(),
		Agents:  memory.NewAgentStore(),
		Targets: memory.NewTargetStore(),
		Queue:   queue.NewMemoryQueue(),
	})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPlanCreateAndGet(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(samplePlan("checkout"))
	req := httptest.NewRequest(http.MethodPost, "/plan/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data plan.Plan `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Data.ID == "" {
		t.Fatal("expected a server-assigned id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/plan/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}
}

func TestPlanDeleteRequiresPrune(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(samplePlan("checkout"))
	createReq := httptest.NewRequest(http.MethodPost, "/plan/", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	r.ServeHTTP(createRec, createReq)

	var created struct {
		Data plan.Plan `json:"data"`
	}
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodDelete, "/plan/"+created.Data.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ?prune=true, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/plan/"+created.Data.ID+"?prune=true", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with ?prune=true, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAgentRegisterHeartbeatAndLocations(t *testing.T) {
	r := newTestRouter()

	body, _ := json.Marshal(map[string]interface{}{"location": "us-east"})
	req := httptest.NewRequest(http.MethodPost, "/agents/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var registered struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &registered)

	hbReq := httptest.NewRequest(http.MethodPost, "/agents/"+registered.Data.ID+"/heartbeat", nil)
	hbRec := httptest.NewRecorder()
	r.ServeHTTP(hbRec, hbReq)
	if hbRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", hbRec.Code)
	}

	locReq := httptest.NewRequest(http.MethodGet, "/agents/locations", nil)
	locRec := httptest.NewRecorder()
	r.ServeHTTP(locRec, locReq)
	if locRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", locRec.Code)
	}
	var locations struct {
		Data []string `json:"data"`
	}
	_ = json.Unmarshal(locRec.Body.Bytes(), &locations)
	if len(locations.Data) != 1 || locations.Data[0] != "us-east" {
		t.Fatalf("expected [us-east], got %v", locations.Data)
	}
}

func TestTargetSetGetDelete(t *testing.T) {
	r := newTestRouter()

	putBody, _ := json.Marshal(map[string]string{"baseUrl": "https://api.example.com"})
	putReq := httptest.NewRequest(http.MethodPut, "/config/acme/prod/targets/api", bytes.NewReader(putBody))
	putRec := httptest.NewRecorder()
	r.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/config/acme/prod/targets/api", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/config/acme/prod/targets/api", nil)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", delRec.Code)
	}
}

func TestJobsDequeueEmptyReturnsNoContent(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/jobs/dequeue?location=us-east", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}
