package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// SchemeX402 tags every challenge and proof in the handshake.
	SchemeX402 = "x402"

	// CurrencyUSDC is the only settlement asset.
	CurrencyUSDC = "USDC"

	// PaymentHeader carries the JSON-encoded SignedPayment on a retried request.
	PaymentHeader = "X-PAYMENT"

	// ChallengeTTL bounds how long an issued challenge stays payable.
	ChallengeTTL = 5 * time.Minute
)

// PaymentChallenge is the ephemeral server-side state for one 402 handshake,
// keyed by nonce. It lives only in the challenge cache; loss on restart is
// fine, a retried request just gets a fresh one.
type PaymentChallenge struct {
	Nonce     string          `json:"nonce"`
	Amount    decimal.Decimal `json:"amount"`
	Recipient string          `json:"recipient"`
	Network   string          `json:"network"`
	IssuedAt  time.Time       `json:"issued_at"`
	DatasetID uuid.UUID       `json:"dataset_id"`
	Quantity  int             `json:"quantity"`
}

// Expired reports whether the challenge is past its TTL.
func (c *PaymentChallenge) Expired(now time.Time) bool {
	return now.After(c.IssuedAt.Add(ChallengeTTL))
}

// ChallengeMetadata echoes request context back to the payer.
type ChallengeMetadata struct {
	DatasetID      string `json:"dataset_id"`
	DatasetName    string `json:"dataset_name"`
	Quantity       int    `json:"quantity"`
	PricePerRecord string `json:"price_per_record"`
}

// ChallengeBody is the wire form of a 402 response.
type ChallengeBody struct {
	Scheme      string            `json:"scheme"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Recipient   string            `json:"recipient"`
	Network     string            `json:"network"`
	Nonce       string            `json:"nonce"`
	Timestamp   int64             `json:"timestamp"`
	Facilitator string            `json:"facilitator"`
	Metadata    ChallengeMetadata `json:"metadata"`
}

// SignedPayment is the proof of payment submitted in the X-PAYMENT header.
type SignedPayment struct {
	Scheme    string `json:"scheme"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PurchaseResult is what a completed x402 handshake hands back to the buyer.
type PurchaseResult struct {
	Records    []Record        `json:"records"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	TxHash     string          `json:"transaction_hash,omitempty"`
}
