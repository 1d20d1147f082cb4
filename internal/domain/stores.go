package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OwnerStore interface {
	Create(ctx context.Context, o *Owner) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Owner, error)
}

// CatalogStore is the marketplace's read surface over listings, sellers and
// their uploaded rows.
type CatalogStore interface {
	GetActiveDatasets(ctx context.Context, filter DiscoveryFilter) ([]Dataset, error)
	GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error)
	GetSellerPayoutAddress(ctx context.Context, sellerID uuid.UUID) (string, error)
	GetRecords(ctx context.Context, datasetID uuid.UUID, limit int) ([]Record, error)
}

// BuyerAgentStore persists agents. AddPurchase must apply both increments in
// one statement so concurrent writers never lose an update.
type BuyerAgentStore interface {
	Create(ctx context.Context, a *BuyerAgent) error
	GetByID(ctx context.Context, id uuid.UUID) (*BuyerAgent, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]BuyerAgent, error)
	ListByStatus(ctx context.Context, status AgentStatus) ([]BuyerAgent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AgentStatus) error
	SetWallet(ctx context.Context, id uuid.UUID, walletID uuid.UUID, address string) error
	AddPurchase(ctx context.Context, id uuid.UUID, amount decimal.Decimal, records int) (*BuyerAgent, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ActionStore is the append-only audit log. UpdateStatus is the single
// sanctioned mutation: promoting a pending entry to its final status.
type ActionStore interface {
	Append(ctx context.Context, a *AgentAction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status ActionStatus) error
	List(ctx context.Context, agentID uuid.UUID, limit int) ([]AgentAction, error)
	ListSince(ctx context.Context, agentID uuid.UUID, after time.Time) ([]AgentAction, error)
	SellerStats(ctx context.Context, sellerID uuid.UUID) (*SellerStats, error)
	DatasetHistory(ctx context.Context, agentID uuid.UUID, datasetID uuid.UUID, limit int) ([]AgentAction, error)
}

type WalletStore interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Wallet, error)
	AddBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// WalletSigner produces signatures over payment payloads and reports balances.
type WalletSigner interface {
	Sign(ctx context.Context, walletID uuid.UUID, payload []byte) (string, error)
	GetBalance(ctx context.Context, walletID uuid.UUID, asset string) (decimal.Decimal, error)
}

// Facilitator verifies a signed payment against its challenge and settles it,
// returning the settlement transaction hash.
type Facilitator interface {
	Verify(ctx context.Context, payment *SignedPayment, challenge *PaymentChallenge) (string, error)
}

// Market is the buyer side of the marketplace: everything an agent cycle
// touches over the network. Purchase runs the full x402 handshake.
type Market interface {
	Discover(ctx context.Context, filter DiscoveryFilter) ([]Dataset, error)
	Probe(ctx context.Context, datasetID uuid.UUID) (*Dataset, error)
	Sample(ctx context.Context, datasetID uuid.UUID, n int) ([]Record, error)
	Purchase(ctx context.Context, agent *BuyerAgent, dataset *Dataset, quantity int) (*PurchaseResult, error)
}
