package service

import (
	"context"
	"errors"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidBudget     = errors.New("budget must be positive")
)

// AgentService owns buyer agent CRUD and the owner-facing status toggles.
// Spent/quantity mutations belong to the cycle executor, not here.
type AgentService struct {
	agents    domain.BuyerAgentStore
	wallets   WalletProvisioner
	scheduler *Scheduler
	logger    *zap.Logger
}

func NewAgentService(agents domain.BuyerAgentStore, wallets WalletProvisioner,
	scheduler *Scheduler, logger *zap.Logger) *AgentService {
	return &AgentService{agents: agents, wallets: wallets, scheduler: scheduler, logger: logger}
}

// Create provisions the owner's wallet (if absent) and persists the agent in
// active status. Scheduling is a separate, explicit Start.
func (s *AgentService) Create(ctx context.Context, a *domain.BuyerAgent) error {
	if a.Budget.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidBudget
	}

	w, err := s.wallets.Provision(ctx, a.OwnerID)
	if err != nil {
		return err
	}
	a.WalletID = w.ID
	a.WalletAddress = w.Address
	a.Status = domain.AgentStatusActive
	a.Spent = decimal.Zero

	return s.agents.Create(ctx, a)
}

func (s *AgentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.BuyerAgent, error) {
	a, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BuyerAgent, error) {
	return s.agents.ListByOwner(ctx, ownerID)
}

// Start schedules an active agent.
func (s *AgentService) Start(ctx context.Context, id uuid.UUID) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AgentStatusActive {
		return ErrInvalidTransition
	}
	return s.scheduler.Start(ctx, id)
}

// Pause takes an active agent out of the schedule until explicitly resumed.
func (s *AgentService) Pause(ctx context.Context, id uuid.UUID) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AgentStatusActive {
		return ErrInvalidTransition
	}
	if err := s.agents.UpdateStatus(ctx, id, domain.AgentStatusPaused); err != nil {
		return err
	}
	s.scheduler.Stop(id)
	return nil
}

// Resume reactivates a paused agent and puts it back on the schedule. There
// is no resume path out of completed or failed.
func (s *AgentService) Resume(ctx context.Context, id uuid.UUID) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AgentStatusPaused {
		return ErrInvalidTransition
	}
	if err := s.agents.UpdateStatus(ctx, id, domain.AgentStatusActive); err != nil {
		return err
	}
	return s.scheduler.Start(ctx, id)
}

// Delete cancels any running schedule before removing the record.
func (s *AgentService) Delete(ctx context.Context, id uuid.UUID) error {
	s.scheduler.Stop(id)
	if err := s.agents.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	s.logger.Info("agent deleted", zap.String("agent_id", id.String()))
	return nil
}
