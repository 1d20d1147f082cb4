package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AgentHandler struct {
	svc *service.AgentService
}

func NewAgentHandler(svc *service.AgentService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

type createAgentRequest struct {
	Name             string              `json:"name"`
	Goal             string              `json:"goal"`
	Requirements     domain.Requirements `json:"requirements"`
	Budget           string              `json:"budget"`
	QualityThreshold float64             `json:"quality_threshold"`
	QuantityRequired *int                `json:"quantity_required,omitempty"`
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	budget, err := decimal.NewFromString(req.Budget)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid budget")
		return
	}
	if req.QualityThreshold < 0 || req.QualityThreshold > 1 {
		writeError(w, http.StatusBadRequest, "quality_threshold must be in [0,1]")
		return
	}

	agent := &domain.BuyerAgent{
		OwnerID:          owner.ID,
		Name:             req.Name,
		Goal:             req.Goal,
		Requirements:     req.Requirements,
		Budget:           budget,
		QualityThreshold: req.QualityThreshold,
		QuantityRequired: req.QuantityRequired,
	}

	if err := h.svc.Create(r.Context(), agent); err != nil {
		if errors.Is(err, service.ErrInvalidBudget) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	// New agents go straight onto the schedule.
	if err := h.svc.Start(r.Context(), agent.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "agent created but failed to start")
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	agents, err := h.svc.ListByOwner(r.Context(), owner.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Start)
}

func (h *AgentHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Pause)
}

func (h *AgentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Resume)
}

func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), agent.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lifecycle runs one owner-initiated status operation after the ownership
// check, mapping service errors onto HTTP statuses.
func (h *AgentHandler) lifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id uuid.UUID) error) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), agent.ID); err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}
	updated, err := h.svc.GetByID(r.Context(), agent.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload agent")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AgentHandler) ownedAgent(w http.ResponseWriter, r *http.Request) (*domain.BuyerAgent, bool) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return nil, false
	}

	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return nil, false
	}
	if agent.OwnerID != owner.ID {
		writeError(w, http.StatusNotFound, service.ErrAgentNotFound.Error())
		return nil, false
	}
	return agent, true
}
