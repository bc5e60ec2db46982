// Package httpapi is the Hub's HTTP surface: plan CRUD, run trigger/query,
// agent registration/heartbeat, and target-config CRUD, behind the
// configured authentication mode.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
)

// Deps wires the concrete stores and queue a Router dispatches against.
type Deps struct {
	Plans   PlanStore
	Runs    RunStore
	Agents  AgentStore
	Targets TargetStore
	Queue   queue.Queue
	Auth    *Authenticator
}

// NewRouter builds the chi router for the Hub's HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	auth := deps.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{Mode: AuthNone})
	}

	plans := &planHandlers{store: deps.Plans}
	runs := &runHandlers{runs: deps.Runs, plans: deps.Plans, locations: deps.Agents, queue: deps.Queue}
	agents := &agentHandlers{store: deps.Agents}
	targets := &targetHandlers{store: deps.Targets}
	jobs := &jobHandlers{queue: deps.Queue}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/plan", func(r chi.Router) {
		r.Use(auth.RequireAuth())
		r.Get("/", plans.list)
		r.Post("/", plans.create)
		r.Get("/by-name", plans.getByName)
		r.Get("/{id}", plans.getByID)
		r.Put("/{id}", plans.update)
		r.Delete("/{id}", plans.delete)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Use(auth.RequireAuth())
		r.Get("/", runs.listByPlan)
		r.Get("/{id}", runs.getByID)
		r.Patch("/{id}", runs.patch)
		r.Post("/trigger-by-plan-id/{planId}", runs.triggerByPlanID)
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/register", agents.register)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth())
			r.Get("/", agents.list)
			r.Get("/locations", agents.locations)
			r.Get("/{id}", agents.get)
			r.Post("/{id}/heartbeat", agents.heartbeat)
			r.Delete("/{id}", agents.deregister)
		})
	})

	r.Route("/config/{organizationId}/{environment}/targets/{targetKey}", func(r chi.Router) {
		r.Use(auth.RequireAuth())
		r.Get("/", targets.get)
		r.Put("/", targets.put)
		r.Delete("/", targets.delete)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Use(auth.RequireAuth())
		r.Get("/dequeue", jobs.dequeue)
		r.Post("/{id}/ack", jobs.acknowledge)
		r.Post("/{id}/fail", jobs.fail)
	})

	return r
}
