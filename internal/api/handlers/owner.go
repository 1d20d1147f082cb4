package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
)

type OwnerHandler struct {
	owners domain.OwnerStore
}

func NewOwnerHandler(owners domain.OwnerStore) *OwnerHandler {
	return &OwnerHandler{owners: owners}
}

type createOwnerRequest struct {
	Name string `json:"name"`
}

type createOwnerResponse struct {
	Owner  *domain.Owner `json:"owner"`
	APIKey string        `json:"api_key"`
}

// Create is the bootstrap endpoint: it mints an API key, stores only its
// hash, and returns the key this one time.
func (h *OwnerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	apiKey := uuid.NewString() + uuid.NewString()
	owner := &domain.Owner{
		Name:       req.Name,
		APIKeyHash: middleware.HashAPIKey(apiKey),
	}

	if err := h.owners.Create(r.Context(), owner); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "owner already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create owner")
		return
	}

	writeJSON(w, http.StatusCreated, createOwnerResponse{Owner: owner, APIKey: apiKey})
}
