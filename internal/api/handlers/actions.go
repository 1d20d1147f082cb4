package handlers

import (
	"net/http"
	"strconv"

	"github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ActionHandler struct {
	actions *service.ActionService
	agents  *service.AgentService
}

func NewActionHandler(actions *service.ActionService, agents *service.AgentService) *ActionHandler {
	return &ActionHandler{actions: actions, agents: agents}
}

// List returns an agent's audit log, most recent first.
func (h *ActionHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.ownedAgentID(w, r)
	if !ok {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	actions, err := h.actions.List(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// DatasetHistory returns the agent's interactions with one dataset.
func (h *ActionHandler) DatasetHistory(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.ownedAgentID(w, r)
	if !ok {
		return
	}

	datasetID, err := uuid.Parse(chi.URLParam(r, "datasetID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	history, err := h.actions.DatasetHistory(r.Context(), agentID, datasetID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": history})
}

// SellerStats aggregates revenue and volume over completed purchases.
func (h *ActionHandler) SellerStats(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	stats, err := h.actions.SellerStats(r.Context(), sellerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ActionHandler) ownedAgentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return uuid.Nil, false
	}

	agent, err := h.agents.GetByID(r.Context(), id)
	if err != nil || agent.OwnerID != owner.ID {
		writeError(w, http.StatusNotFound, "agent not found")
		return uuid.Nil, false
	}
	return id, true
}
