package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// sampleSize is how many records a cycle requests for evaluation.
const sampleSize = 5

// WalletDebitor charges the buyer's wallet once a purchase has settled.
type WalletDebitor interface {
	Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
}

// CycleService runs one acquisition cycle per invocation: discover, select,
// probe, sample, assess, decide, pay, record. Every step is independently
// fallible; failures are logged to the audit stream and the cycle simply ends,
// leaving the retry to the next period.
type CycleService struct {
	agents  domain.BuyerAgentStore
	market  domain.Market
	actions *ActionService
	wallets WalletDebitor
	logger  *zap.Logger
}

func NewCycleService(agents domain.BuyerAgentStore, market domain.Market,
	actions *ActionService, wallets WalletDebitor, logger *zap.Logger) *CycleService {
	return &CycleService{agents: agents, market: market, actions: actions, wallets: wallets, logger: logger}
}

// RunCycle executes one cycle and reports whether the agent is finished with
// scheduling (terminal or no longer active). A panic anywhere in the cycle is
// contained here so one bad dataset cannot take down the scheduler; the agent
// just retries next period.
func (s *CycleService) RunCycle(ctx context.Context, agentID uuid.UUID) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked",
				zap.String("agent_id", agentID.String()),
				zap.Any("panic", r))
			s.actions.Record(ctx, agentID, domain.ActionError, domain.ActionFailed, map[string]any{
				"step":  "cycle",
				"error": fmt.Sprintf("panic: %v", r),
			})
			done = false
		}
	}()

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("agent gone, ending schedule", zap.String("agent_id", agentID.String()))
			return true
		}
		s.logger.Error("failed to reload agent", zap.String("agent_id", agentID.String()), zap.Error(err))
		return false
	}

	if agent.Status != domain.AgentStatusActive {
		return true
	}

	if agent.Spent.GreaterThanOrEqual(agent.Budget) {
		s.transition(ctx, agent, domain.AgentStatusFailed, domain.ActionBudgetExhausted, map[string]any{
			"budget": agent.Budget.StringFixed(6),
			"spent":  agent.Spent.StringFixed(6),
		})
		return true
	}

	if agent.QuantityRequired != nil && agent.QuantityAcquired >= *agent.QuantityRequired {
		s.transition(ctx, agent, domain.AgentStatusCompleted, domain.ActionGoalCompleted, map[string]any{
			"quantity_required": *agent.QuantityRequired,
			"quantity_acquired": agent.QuantityAcquired,
		})
		return true
	}

	dataset, ok := s.discoverAndSelect(ctx, agent)
	if !ok {
		return false
	}

	// Probe for authoritative metadata; the discovery row may be stale.
	dataset, err = s.market.Probe(ctx, dataset.ID)
	if err != nil {
		s.fail(ctx, agent.ID, "probe", err)
		return false
	}

	sample, err := s.market.Sample(ctx, dataset.ID, sampleSize)
	if err != nil {
		s.fail(ctx, agent.ID, "sample", err)
		return false
	}
	if len(sample) == 0 {
		s.actions.Record(ctx, agent.ID, domain.ActionSampleReceived, domain.ActionFailed, map[string]any{
			"dataset_id": dataset.ID.String(),
			"reason":     "empty sample",
		})
		return false
	}
	s.actions.Record(ctx, agent.ID, domain.ActionSampleReceived, domain.ActionSuccess, map[string]any{
		"dataset_id": dataset.ID.String(),
		"records":    len(sample),
	})

	assessment := Assess(sample, agent.Requirements.RequiredFields, dataset.Schema)
	s.actions.Record(ctx, agent.ID, domain.ActionQualityAssessed, domain.ActionSuccess, map[string]any{
		"dataset_id":    dataset.ID.String(),
		"overall_score": assessment.OverallScore,
		"completeness":  assessment.Completeness,
		"schema_match":  assessment.SchemaMatch,
		"data_quality":  assessment.DataQuality,
		"issues":        assessment.Issues,
	})

	decision := Decide(agent, dataset, assessment)
	if !decision.Approve {
		s.actions.Record(ctx, agent.ID, domain.ActionDecisionSkip, domain.ActionSuccess, map[string]any{
			"dataset_id": dataset.ID.String(),
			"reason":     decision.Reason,
		})
		return false
	}

	return s.purchase(ctx, agent, dataset, decision)
}

func (s *CycleService) discoverAndSelect(ctx context.Context, agent *domain.BuyerAgent) (*domain.Dataset, bool) {
	s.actions.Record(ctx, agent.ID, domain.ActionSearching, domain.ActionSuccess, map[string]any{
		"category": agent.Requirements.Category,
	})

	candidates, err := s.market.Discover(ctx, domain.DiscoveryFilter{
		Category:   agent.Requirements.Category,
		MinQuality: agent.Requirements.MinQuality,
	})
	if err != nil {
		s.fail(ctx, agent.ID, "discovery", err)
		return nil, false
	}

	var eligible []domain.Dataset
	for _, d := range candidates {
		if d.QualityScore >= agent.QualityThreshold {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		s.actions.Record(ctx, agent.ID, domain.ActionNoDatasetsFound, domain.ActionSuccess, map[string]any{
			"category": agent.Requirements.Category,
		})
		return nil, false
	}

	// Best value wins: quality minus price, ties keep discovery order.
	best := eligible[0]
	bestValue := value(best)
	for _, d := range eligible[1:] {
		if v := value(d); v > bestValue {
			best = d
			bestValue = v
		}
	}

	s.actions.Record(ctx, agent.ID, domain.ActionDatasetSelected, domain.ActionSuccess, map[string]any{
		"dataset_id":       best.ID.String(),
		"dataset_name":     best.Name,
		"quality_score":    best.QualityScore,
		"price_per_record": best.PricePerRecord.StringFixed(6),
	})
	return &best, true
}

func value(d domain.Dataset) float64 {
	return d.QualityScore - d.PricePerRecord.InexactFloat64()
}

func (s *CycleService) purchase(ctx context.Context, agent *domain.BuyerAgent,
	dataset *domain.Dataset, decision Decision) bool {

	result, err := s.market.Purchase(ctx, agent, dataset, decision.Quantity)
	if err != nil {
		s.fail(ctx, agent.ID, "purchase", err)
		return false
	}

	s.actions.Record(ctx, agent.ID, domain.ActionPurchaseComplete, domain.ActionSuccess, map[string]any{
		"dataset_id":       dataset.ID.String(),
		"quantity":         len(result.Records),
		"amount":           result.AmountPaid.StringFixed(6),
		"transaction_hash": result.TxHash,
	})

	updated, err := s.agents.AddPurchase(ctx, agent.ID, result.AmountPaid, len(result.Records))
	if err != nil {
		s.fail(ctx, agent.ID, "record_purchase", err)
		return false
	}

	// Wallet debit mirrors the settlement; the agent's spent counter above is
	// the authoritative budget record.
	if agent.WalletID != uuid.Nil {
		if err := s.wallets.Debit(ctx, agent.WalletID, result.AmountPaid); err != nil {
			s.logger.Warn("failed to debit wallet",
				zap.String("agent_id", agent.ID.String()),
				zap.String("wallet_id", agent.WalletID.String()),
				zap.Error(err))
		}
	}

	// Post-purchase status re-check is an else-chain: goal completion wins,
	// so a purchase that both satisfies the goal and drains the budget lands
	// on completed. Only a purchase that drains the budget while still short
	// of the goal lands on failed. Keep this order.
	if updated.QuantityRequired != nil && updated.QuantityAcquired >= *updated.QuantityRequired {
		s.transition(ctx, updated, domain.AgentStatusCompleted, domain.ActionGoalCompleted, map[string]any{
			"quantity_required": *updated.QuantityRequired,
			"quantity_acquired": updated.QuantityAcquired,
		})
		return true
	}
	if updated.Spent.GreaterThanOrEqual(updated.Budget) {
		s.transition(ctx, updated, domain.AgentStatusFailed, domain.ActionBudgetExhausted, map[string]any{
			"budget": updated.Budget.StringFixed(6),
			"spent":  updated.Spent.StringFixed(6),
		})
		return true
	}
	return false
}

func (s *CycleService) transition(ctx context.Context, agent *domain.BuyerAgent,
	status domain.AgentStatus, actionType domain.ActionType, details map[string]any) {
	if err := s.agents.UpdateStatus(ctx, agent.ID, status); err != nil {
		s.logger.Error("failed to update agent status",
			zap.String("agent_id", agent.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	actionStatus := domain.ActionSuccess
	if status == domain.AgentStatusFailed {
		actionStatus = domain.ActionFailed
	}
	s.actions.Record(ctx, agent.ID, actionType, actionStatus, details)
	s.logger.Info("agent reached terminal status",
		zap.String("agent_id", agent.ID.String()),
		zap.String("status", string(status)))
}

// fail records a step failure without propagating; the scheduler retries the
// whole cycle next period.
func (s *CycleService) fail(ctx context.Context, agentID uuid.UUID, step string, err error) {
	s.logger.Warn("cycle step failed",
		zap.String("agent_id", agentID.String()),
		zap.String("step", step),
		zap.Error(err))
	s.actions.Record(ctx, agentID, domain.ActionError, domain.ActionFailed, map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}
