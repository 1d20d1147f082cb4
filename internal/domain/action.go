package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is the closed set of audit event types. Adding a new event means
// adding a constant here; handlers and stores never see free-form strings.
type ActionType string

const (
	ActionSearching          ActionType = "searching"
	ActionNoDatasetsFound    ActionType = "no_datasets_found"
	ActionDatasetSelected    ActionType = "dataset_selected"
	ActionSampleReceived     ActionType = "sample_received"
	ActionQualityAssessed    ActionType = "quality_assessed"
	ActionDecisionSkip       ActionType = "decision_skip"
	ActionPayment402Received ActionType = "payment_402_received"
	ActionPaymentSigning     ActionType = "payment_signing"
	ActionPaymentSent        ActionType = "payment_sent"
	ActionPaymentVerified    ActionType = "payment_verified"
	ActionPaymentSettled     ActionType = "payment_settled"
	ActionPurchaseComplete   ActionType = "purchase_complete"
	ActionGoalCompleted      ActionType = "goal_completed"
	ActionBudgetExhausted    ActionType = "budget_exhausted"
	ActionWalletProvisioned  ActionType = "wallet_provisioned"
	ActionError              ActionType = "error"
)

// ActionStatus is the outcome of an audit entry. Pending entries may receive
// exactly one later transition to success or failed; nothing else on an
// AgentAction is ever updated.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// AgentAction is one immutable audit entry, ordered by CreatedAt.
type AgentAction struct {
	ID        uuid.UUID      `json:"id"`
	AgentID   uuid.UUID      `json:"agent_id"`
	Type      ActionType     `json:"action_type"`
	Status    ActionStatus   `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SellerStats aggregates completed purchases from the seller's point of view.
type SellerStats struct {
	Revenue     string `json:"revenue"`
	RecordsSold int64  `json:"records_sold"`
	Purchases   int64  `json:"purchases"`
}
