package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// TargetStore is the subset of internal/app/storage the target handlers
// need: a single key's base-URL value within (organization, environment)'s
// target map, with template splicing left to Resolve.
type TargetStore interface {
	Resolve(ctx context.Context, organization, environment, key, template string) (string, error)
	SetKey(ctx context.Context, organization, environment, key, baseURL string) error
	DeleteKey(ctx context.Context, organization, environment, key string) error
}

type targetHandlers struct {
	store TargetStore
}

func (h *targetHandlers) get(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "organizationId")
	env := chi.URLParam(r, "environment")
	key := chi.URLParam(r, "targetKey")
	template := r.URL.Query().Get("template")

	value, err := h.store.Resolve(r.Context(), org, env, key, template)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, value)
}

func (h *targetHandlers) put(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "organizationId")
	env := chi.URLParam(r, "environment")
	key := chi.URLParam(r, "targetKey")

	var body struct {
		BaseURL string `json:"baseUrl"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.BaseURL == "" {
		writeError(w, apperrors.InvalidInput("baseUrl", "must be non-empty"))
		return
	}
	if err := h.store.SetKey(r.Context(), org, env, key, body.BaseURL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *targetHandlers) delete(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "organizationId")
	env := chi.URLParam(r, "environment")
	key := chi.URLParam(r, "targetKey")

	if err := h.store.DeleteKey(r.Context(), org, env, key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
