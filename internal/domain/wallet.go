package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds an owner's payment keys and spendable balance. One wallet per
// owner; every agent of that owner pays from it.
type Wallet struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	Address    string          `json:"address"`
	PublicKey  []byte          `json:"-"`
	PrivateKey []byte          `json:"-"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Owner is an account that creates agents and lists datasets. API access is
// authenticated by a hashed key, never the key itself.
type Owner struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
