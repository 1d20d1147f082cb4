package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"go.uber.org/zap"
)

// HTTPFacilitator verifies and settles signed payments against a remote
// facilitator service.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPFacilitator(baseURL string, logger *zap.Logger) *HTTPFacilitator {
	return &HTTPFacilitator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type verifyRequest struct {
	Scheme    string `json:"scheme"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Signature string `json:"signature"`
	Network   string `json:"network"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type verifyResponse struct {
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error,omitempty"`
}

// Verify submits the proof for cryptographic verification and on-chain
// settlement. A transport-level failure comes back wrapped in
// ErrFacilitatorUnreachable so the gateway can tell it apart from a rejection.
func (f *HTTPFacilitator) Verify(ctx context.Context, p *domain.SignedPayment, ch *domain.PaymentChallenge) (string, error) {
	body, err := json.Marshal(verifyRequest{
		Scheme:    p.Scheme,
		Amount:    p.Amount,
		Recipient: p.Recipient,
		Signature: p.Signature,
		Network:   ch.Network,
		Nonce:     ch.Nonce,
		Timestamp: p.Timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFacilitatorUnreachable, err)
	}
	defer resp.Body.Close()

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("facilitator rejected payment",
			zap.Int("status", resp.StatusCode),
			zap.String("nonce", ch.Nonce),
			zap.String("reason", vr.Error))
		return "", fmt.Errorf("%w: %s", ErrVerificationFailed, vr.Error)
	}

	return vr.TransactionHash, nil
}
