package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// agentHeader lets a buying agent attribute its requests for auditing.
const agentHeader = "X-Agent-ID"

type DatasetHandler struct {
	catalog domain.CatalogStore
	gateway *payment.Gateway
	logger  *zap.Logger
}

func NewDatasetHandler(catalog domain.CatalogStore, gateway *payment.Gateway, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{catalog: catalog, gateway: gateway, logger: logger}
}

func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.DiscoveryFilter{Category: r.URL.Query().Get("category")}
	if mq := r.URL.Query().Get("min_quality"); mq != "" {
		if v, err := strconv.ParseFloat(mq, 64); err == nil {
			filter.MinQuality = v
		}
	}

	datasets, err := h.catalog.GetActiveDatasets(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (h *DatasetHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

// Sample serves a small free preview for quality evaluation.
func (h *DatasetHandler) Sample(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.dataset(w, r)
	if !ok {
		return
	}

	limit := 5
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10 {
			limit = v
		}
	}

	records, err := h.catalog.GetRecords(r.Context(), dataset.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sample")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Records is the paid data endpoint. A request without X-PAYMENT gets a 402
// challenge; a request with a valid proof gets the records.
func (h *DatasetHandler) Records(w http.ResponseWriter, r *http.Request) {
	datasetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid quantity")
			return
		}
		quantity = v
	}

	var agentID *uuid.UUID
	if raw := r.Header.Get(agentHeader); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			agentID = &id
		}
	}

	var proof *domain.SignedPayment
	if raw := r.Header.Get(domain.PaymentHeader); raw != "" {
		proof = &domain.SignedPayment{}
		if err := json.Unmarshal([]byte(raw), proof); err != nil {
			writeError(w, http.StatusBadRequest, payment.ErrInvalidPayment.Error())
			return
		}
	}

	result, err := h.gateway.Authorize(r.Context(), datasetID, quantity, proof, agentID)
	if err != nil {
		if errors.Is(err, payment.ErrDatasetNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("authorize failed",
			zap.String("dataset_id", datasetID.String()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "authorization failed")
		return
	}

	switch result.Status {
	case payment.AuthChallenge:
		writeJSON(w, http.StatusPaymentRequired, result.Challenge)

	case payment.AuthDenied:
		writeError(w, http.StatusPaymentRequired, result.Reason)

	case payment.AuthAllow:
		records, err := h.catalog.GetRecords(r.Context(), datasetID, quantity)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load records")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records":          records,
			"amount":           result.Payment.Amount,
			"transaction_hash": result.TxHash,
		})
	}
}

func (h *DatasetHandler) dataset(w http.ResponseWriter, r *http.Request) (*domain.Dataset, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataset id")
		return nil, false
	}
	dataset, err := h.catalog.GetDataset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "dataset not found")
		return nil, false
	}
	if !dataset.Active {
		writeError(w, http.StatusNotFound, "dataset not found")
		return nil, false
	}
	return dataset, true
}
