package service

import (
	"context"
	"sync"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCycleInterval = 10 * time.Second

// WalletProvisioner creates or fetches the owner's wallet at agent start.
type WalletProvisioner interface {
	Provision(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
}

// Scheduler owns the recurring execution of agent cycles. One goroutine per
// running agent; the loop sleeps the full period after each cycle completes,
// so two cycles of the same agent can never overlap. Stop suppresses future
// firings but never interrupts a cycle already in flight.
type Scheduler struct {
	cycles   *CycleService
	agents   domain.BuyerAgentStore
	wallets  WalletProvisioner
	actions  *ActionService
	interval time.Duration
	logger   *zap.Logger

	// baseCtx is what cycles actually run on. Per-agent cancellation only
	// breaks the timer wait; baseCtx is cancelled solely by Shutdown, so Stop
	// can never abort a purchase mid-handshake.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(cycles *CycleService, agents domain.BuyerAgentStore,
	wallets WalletProvisioner, actions *ActionService, logger *zap.Logger) *Scheduler {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Scheduler{
		cycles:     cycles,
		agents:     agents,
		wallets:    wallets,
		actions:    actions,
		interval:   defaultCycleInterval,
		logger:     logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// Start schedules an agent. Idempotent: starting an already-running agent is
// a no-op. An agent without a wallet gets one provisioned from its owner's
// account first; provisioning failure aborts the start and is logged once as
// an error action, with no automatic retry.
func (s *Scheduler) Start(ctx context.Context, agentID uuid.UUID) error {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return err
	}

	if agent.WalletID == uuid.Nil {
		w, err := s.wallets.Provision(ctx, agent.OwnerID)
		if err != nil {
			s.actions.Record(ctx, agentID, domain.ActionError, domain.ActionFailed, map[string]any{
				"step":  "wallet_provisioning",
				"error": err.Error(),
			})
			return err
		}
		if err := s.agents.SetWallet(ctx, agentID, w.ID, w.Address); err != nil {
			return err
		}
		s.actions.Record(ctx, agentID, domain.ActionWalletProvisioned, domain.ActionSuccess, map[string]any{
			"wallet_id": w.ID.String(),
			"address":   w.Address,
		})
	}

	s.mu.Lock()
	if _, ok := s.running[agentID]; ok {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.running[agentID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("agent schedule started",
		zap.String("agent_id", agentID.String()),
		zap.Duration("interval", s.interval))

	go s.loop(loopCtx, agentID)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, agentID uuid.UUID) {
	defer s.wg.Done()
	defer s.remove(agentID)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if done := s.cycles.RunCycle(s.baseCtx, agentID); done {
			s.logger.Info("agent schedule ended", zap.String("agent_id", agentID.String()))
			return
		}
		timer.Reset(s.interval)
	}
}

// Stop removes the agent from the scheduled set. The current cycle, if any,
// still runs to completion.
func (s *Scheduler) Stop(agentID uuid.UUID) {
	s.mu.Lock()
	cancel, ok := s.running[agentID]
	delete(s.running, agentID)
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info("agent schedule stopped", zap.String("agent_id", agentID.String()))
	}
}

// Running reports whether the agent is currently scheduled.
func (s *Scheduler) Running(agentID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[agentID]
	return ok
}

// RecoverActive is the crash-recovery sweep, run once at process start: every
// agent persisted as active gets its schedule back.
func (s *Scheduler) RecoverActive(ctx context.Context) error {
	agents, err := s.agents.ListByStatus(ctx, domain.AgentStatusActive)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if err := s.Start(ctx, a.ID); err != nil {
			s.logger.Error("failed to recover agent schedule",
				zap.String("agent_id", a.ID.String()),
				zap.Error(err))
		}
	}
	s.logger.Info("recovered active agents", zap.Int("count", len(agents)))
	return nil
}

// Shutdown cancels every schedule, hard-cancels in-flight cycles, and waits
// for them to return.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.running {
		cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()
	s.baseCancel()
	s.wg.Wait()
}

func (s *Scheduler) remove(agentID uuid.UUID) {
	s.mu.Lock()
	if cancel, ok := s.running[agentID]; ok {
		cancel()
		delete(s.running, agentID)
	}
	s.mu.Unlock()
}
