package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is one row of marketplace data. Values are whatever the seller
// uploaded; the assessment engine only inspects shape and emptiness.
type Record map[string]any

// Dataset is a purchasable listing in the catalog.
type Dataset struct {
	ID             uuid.UUID         `json:"id"`
	SellerID       uuid.UUID         `json:"seller_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Category       string            `json:"category"`
	PricePerRecord decimal.Decimal   `json:"price_per_record"`
	QualityScore   float64           `json:"quality_score"`
	RecordCount    int               `json:"record_count"`
	Schema         map[string]string `json:"schema,omitempty"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// DiscoveryFilter narrows catalog discovery queries.
type DiscoveryFilter struct {
	Category   string
	MinQuality float64
}
