package service

import (
	"fmt"
	"strings"

	"github.com/agoradata/agora/internal/domain"
	"github.com/shopspring/decimal"
)

// maxBatch caps how many records a single cycle will buy.
const maxBatch = 100

// Decision is the outcome of the purchase policy for one candidate dataset.
type Decision struct {
	Approve       bool            `json:"approve"`
	Reason        string          `json:"reason"`
	Quantity      int             `json:"quantity"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
}

// Decide applies the purchase policy. Checks run in a fixed order and the
// first failing one names the reason: quality threshold, required fields,
// remaining budget, price sanity, then affordability of at least one record.
func Decide(agent *domain.BuyerAgent, dataset *domain.Dataset, assessment Assessment) Decision {
	if assessment.OverallScore < agent.QualityThreshold {
		return Decision{
			Reason: fmt.Sprintf("quality score %.2f below threshold %.2f",
				assessment.OverallScore, agent.QualityThreshold),
		}
	}

	if !assessment.RequiredFieldsPresent {
		return Decision{
			Reason: fmt.Sprintf("required fields missing: %s", strings.Join(assessment.Issues, "; ")),
		}
	}

	remainingBudget := agent.RemainingBudget()
	if remainingBudget.LessThanOrEqual(decimal.Zero) {
		return Decision{Reason: "budget exhausted"}
	}

	// A non-positive price must not reach the division below. Negative prices
	// are broken listings; a zero price costs nothing, so the batch is limited
	// only by the remaining goal.
	if dataset.PricePerRecord.IsNegative() {
		return Decision{Reason: "dataset has a negative price"}
	}
	if dataset.PricePerRecord.IsZero() {
		quantity := int64(agent.RemainingGoal())
		if quantity > maxBatch {
			quantity = maxBatch
		}
		if quantity <= 0 {
			return Decision{Reason: "quantity goal already met"}
		}
		return Decision{
			Approve:       true,
			Reason:        "free dataset within quality requirements",
			Quantity:      int(quantity),
			EstimatedCost: decimal.Zero,
		}
	}

	maxAffordable := remainingBudget.Div(dataset.PricePerRecord).Floor().IntPart()

	quantity := int64(agent.RemainingGoal())
	if maxAffordable < quantity {
		quantity = maxAffordable
	}
	if quantity > maxBatch {
		quantity = maxBatch
	}
	if quantity <= 0 {
		return Decision{Reason: "cannot afford any records at this price"}
	}

	return Decision{
		Approve:       true,
		Reason:        "within budget and quality requirements",
		Quantity:      int(quantity),
		EstimatedCost: dataset.PricePerRecord.Mul(decimal.NewFromInt(quantity)),
	}
}
