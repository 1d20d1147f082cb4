package handlers

import (
	"net/http"
	"time"

	"github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const feedPollInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FeedHandler streams an agent's audit log over a WebSocket, polling the
// action store on a short interval and forwarding anything new. Browsers
// cannot set headers on WebSocket dials, so the API key is also accepted as
// a query parameter.
type FeedHandler struct {
	owners  domain.OwnerStore
	agents  *service.AgentService
	actions *service.ActionService
	logger  *zap.Logger
}

func NewFeedHandler(owners domain.OwnerStore, agents *service.AgentService,
	actions *service.ActionService, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{owners: owners, agents: agents, actions: actions, logger: logger}
}

func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	owner, err := h.owners.GetByAPIKeyHash(r.Context(), middleware.HashAPIKey(token))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}
	middleware.TagOwner(r.Context(), owner)

	agentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	agent, err := h.agents.GetByID(r.Context(), agentID)
	if err != nil || agent.OwnerID != owner.ID {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Read pump exists only to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	watermark := time.Now()
	ticker := time.NewTicker(feedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		actions, err := h.actions.ListSince(r.Context(), agentID, watermark)
		if err != nil {
			h.logger.Warn("feed poll failed",
				zap.String("agent_id", agentID.String()),
				zap.Error(err))
			continue
		}
		for _, a := range actions {
			if err := conn.WriteJSON(a); err != nil {
				return
			}
			if a.CreatedAt.After(watermark) {
				watermark = a.CreatedAt
			}
		}
	}
}
