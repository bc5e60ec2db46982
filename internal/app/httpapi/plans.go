package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
)

// PlanStore is the subset of internal/app/storage the plan handlers need.
type PlanStore interface {
	Create(ctx context.Context, p plan.Plan) (*plan.Plan, error)
	GetByID(ctx context.Context, id string) (*plan.Plan, error)
	GetByKey(ctx context.Context, key plan.Key) (*plan.Plan, error)
	Update(ctx context.Context, p plan.Plan) (*plan.Plan, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]plan.Plan, error)
}

type planHandlers struct {
	store PlanStore
}

func (h *planHandlers) list(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, plans)
}

func (h *planHandlers) create(w http.ResponseWriter, r *http.Request) {
	var p plan.Plan
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.Version != plan.SchemaVersion {
		writeError(w, apperrors.SchemaVersion(p.Version))
		return
	}
	if errs := plan.Validate(p); len(errs) > 0 {
		writeError(w, errs[0])
		return
	}

	created, err := h.store.Create(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (h *planHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *planHandlers) getByName(w http.ResponseWriter, r *http.Request) {
	key := plan.Key{
		Organization: r.URL.Query().Get("organization"),
		Project:      r.URL.Query().Get("project"),
		Environment:  r.URL.Query().Get("environment"),
		Name:         r.URL.Query().Get("name"),
	}
	p, err := h.store.GetByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *planHandlers) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p plan.Plan
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.ID = id
	if errs := plan.Validate(p); len(errs) > 0 {
		writeError(w, errs[0])
		return
	}
	updated, err := h.store.Update(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (h *planHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("prune") != "true" {
		writeError(w, apperrors.InvalidInput("prune", "deletion requires ?prune=true"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
