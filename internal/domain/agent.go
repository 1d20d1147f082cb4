package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgentStatus is the lifecycle state of a buyer agent.
type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "active"
	AgentStatusPaused    AgentStatus = "paused"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
)

// Requirements describes what kind of data an agent is shopping for.
type Requirements struct {
	Category       string         `json:"category,omitempty"`
	RequiredFields []string       `json:"required_fields,omitempty"`
	Format         string         `json:"format,omitempty"`
	MinQuality     float64        `json:"min_quality,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
}

// BuyerAgent is one autonomous acquisition task. Spent and QuantityAcquired
// only ever grow; status leaves `active` exactly once per transition.
type BuyerAgent struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Name             string          `json:"name"`
	Goal             string          `json:"goal"`
	Requirements     Requirements    `json:"requirements"`
	WalletID         uuid.UUID       `json:"wallet_id,omitempty"`
	WalletAddress    string          `json:"wallet_address,omitempty"`
	Status           AgentStatus     `json:"status"`
	Budget           decimal.Decimal `json:"budget"`
	Spent            decimal.Decimal `json:"spent"`
	QualityThreshold float64         `json:"quality_threshold"`
	QuantityRequired *int            `json:"quantity_required,omitempty"`
	QuantityAcquired int             `json:"quantity_acquired"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RemainingBudget is Budget minus Spent; can be negative after the final
// purchase of a run.
func (a *BuyerAgent) RemainingBudget() decimal.Decimal {
	return a.Budget.Sub(a.Spent)
}

// RemainingGoal is how many records are still wanted. Agents with no explicit
// quantity goal shop in batches of at most 100.
func (a *BuyerAgent) RemainingGoal() int {
	if a.QuantityRequired == nil {
		return 100
	}
	remaining := *a.QuantityRequired - a.QuantityAcquired
	if remaining < 0 {
		return 0
	}
	return remaining
}
