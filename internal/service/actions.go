package service

import (
	"context"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionService wraps the append-only audit log.
type ActionService struct {
	store  domain.ActionStore
	logger *zap.Logger
}

func NewActionService(store domain.ActionStore, logger *zap.Logger) *ActionService {
	return &ActionService{store: store, logger: logger}
}

// Record appends one entry. Failures are logged and swallowed: a broken audit
// write must never abort the cycle or payment it describes.
func (s *ActionService) Record(ctx context.Context, agentID uuid.UUID, t domain.ActionType,
	status domain.ActionStatus, details map[string]any) *domain.AgentAction {
	a := &domain.AgentAction{AgentID: agentID, Type: t, Status: status, Details: details}
	if err := s.store.Append(ctx, a); err != nil {
		s.logger.Error("failed to append audit action",
			zap.String("agent_id", agentID.String()),
			zap.String("action_type", string(t)),
			zap.Error(err))
		return nil
	}
	return a
}

func (s *ActionService) List(ctx context.Context, agentID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, agentID, limit)
}

func (s *ActionService) ListSince(ctx context.Context, agentID uuid.UUID, after time.Time) ([]domain.AgentAction, error) {
	return s.store.ListSince(ctx, agentID, after)
}

func (s *ActionService) SellerStats(ctx context.Context, sellerID uuid.UUID) (*domain.SellerStats, error) {
	return s.store.SellerStats(ctx, sellerID)
}

func (s *ActionService) DatasetHistory(ctx context.Context, agentID uuid.UUID, datasetID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.DatasetHistory(ctx, agentID, datasetID, limit)
}
