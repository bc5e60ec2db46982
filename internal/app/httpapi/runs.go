package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
)

// RunStore is the subset of internal/app/storage the run handlers need.
type RunStore interface {
	Create(ctx context.Context, r run.Run) (*run.Run, error)
	GetByID(ctx context.Context, id string) (*run.Run, error)
	Transition(ctx context.Context, id string, next run.Status, results []run.NodeResult, errs []string) (*run.Run, error)
	ListByPlan(ctx context.Context, planID string, limit int) ([]run.Run, error)
}

// RunLocationSource reports which locations currently have an online agent,
// backing the fan-out for plans with an empty Locations list.
type RunLocationSource interface {
	OnlineLocations(ctx context.Context) ([]string, error)
}

type runHandlers struct {
	runs      RunStore
	plans     PlanStore
	locations RunLocationSource
	queue     queue.Queue
}

// triggerByPlanID creates one Run (and one execute-plan job) per resolved
// target location for the named plan, mirroring the scheduler's own
// location fan-out policy for an on-demand trigger.
func (h *runHandlers) triggerByPlanID(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planId")
	var body struct {
		Environment string `json:"environment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.plans.GetByID(r.Context(), planID)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Environment == "" {
		body.Environment = p.Environment
	}

	targets := p.Locations
	if len(targets) == 0 {
		online, err := h.locations.OnlineLocations(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		targets = online
	}
	if len(targets) == 0 {
		writeError(w, apperrors.InvalidInput("locations", "no online agent locations to run this plan on"))
		return
	}

	now := time.Now().UTC()
	executionGroupID := uuid.NewString()
	created := make([]run.Run, 0, len(targets))

	for _, location := range targets {
		jobRunID := uuid.NewString()
		newRun := run.Run{
			ID:               jobRunID,
			PlanID:           p.ID,
			ExecutionGroupID: executionGroupID,
			Location:         location,
			Environment:      body.Environment,
			TriggeredBy:      run.TriggeredByAPI,
			Status:           run.StatusPending,
			StartedAt:        now,
		}
		storedRun, err := h.runs.Create(r.Context(), newRun)
		if err != nil {
			writeError(w, err)
			return
		}

		payload := domainqueue.ExecutePlanPayload{
			Type:             domainqueue.PayloadTypeExecutePlan,
			PlanID:           p.ID,
			JobRunID:         jobRunID,
			Environment:      body.Environment,
			Location:         location,
			ExecutionGroupID: executionGroupID,
			Plan:             *p,
			ScheduledAt:      now,
		}
		if _, err := h.queue.Enqueue(r.Context(), payload, domainqueue.EnqueueOptions{Location: location}.WithDefaults(now)); err != nil {
			writeError(w, err)
			return
		}
		created = append(created, *storedRun)
	}

	writeData(w, http.StatusCreated, created)
}

func (h *runHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, run)
}

func (h *runHandlers) listByPlan(w http.ResponseWriter, r *http.Request) {
	planID := r.URL.Query().Get("planId")
	if planID == "" {
		writeError(w, apperrors.InvalidInput("planId", "query parameter is required"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	runs, err := h.runs.ListByPlan(r.Context(), planID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, runs)
}

// patch applies a partial update to a Run record; Agents call this to
// report a completed execution's outcome.
func (h *runHandlers) patch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Status  run.Status        `json:"status"`
		Errors  []string          `json:"errors"`
		Results []run.NodeResult  `json:"results"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.runs.Transition(r.Context(), id, body.Status, body.Results, body.Errors)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}
