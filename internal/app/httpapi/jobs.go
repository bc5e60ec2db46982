package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
)

// JobQueue is the subset of queue.Queue the agent-facing job endpoints need.
// It is deliberately narrower than queue.Queue since this surface exists
// only for remote agents that cannot reach the durable queue directly.
type JobQueue interface {
	Dequeue(ctx context.Context, location string) (*domainqueue.Job, error)
	Acknowledge(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error, retry bool) error
}

type jobHandlers struct {
	queue JobQueue
}

func (h *jobHandlers) dequeue(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeError(w, apperrors.InvalidInput("location", "query parameter is required"))
		return
	}
	job, err := h.queue.Dequeue(r.Context(), location)
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeData(w, http.StatusOK, job)
}

func (h *jobHandlers) acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Acknowledge(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *jobHandlers) fail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Error string `json:"error"`
		Retry bool   `json:"retry"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	cause := apperrors.InvalidInput("job", body.Error)
	if err := h.queue.Fail(r.Context(), id, cause, body.Retry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
