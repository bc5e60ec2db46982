package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/agent"
)

// AgentStore is the subset of internal/app/storage the agent handlers need.
type AgentStore interface {
	Register(ctx context.Context, location string, metadata map[string]string) (*agent.Agent, error)
	Heartbeat(ctx context.Context, id string) (*agent.Agent, error)
	Get(ctx context.Context, id string) (*agent.Agent, error)
	Deregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]agent.Agent, error)
	OnlineLocations(ctx context.Context) ([]string, error)
}

type agentHandlers struct {
	store AgentStore
}

func (h *agentHandlers) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string            `json:"location"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	registered, err := h.store.Register(r.Context(), body.Location, body.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, registered)
}

func (h *agentHandlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.Heartbeat(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *agentHandlers) deregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Deregister(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *agentHandlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *agentHandlers) list(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, agents)
}

func (h *agentHandlers) locations(w http.ResponseWriter, r *http.Request) {
	online, err := h.store.OnlineLocations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, online)
}
