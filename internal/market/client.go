// Package market implements the buyer side of the marketplace protocol: the
// discovery, probe and sample reads, and the x402 purchase handshake of
// request, challenge, sign, resubmit.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agoradata/agora/internal/buildconfig"
	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AgentHeader identifies the buying agent so the seller side can attribute
// audit entries.
const AgentHeader = "X-Agent-ID"

type Client struct {
	baseURL string
	client  *http.Client
	signer  domain.WalletSigner
	logger  *zap.Logger
}

func NewClient(baseURL string, signer domain.WalletSigner, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		signer:  signer,
		logger:  logger,
	}
}

func (c *Client) Discover(ctx context.Context, filter domain.DiscoveryFilter) ([]domain.Dataset, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.MinQuality > 0 {
		q.Set("min_quality", strconv.FormatFloat(filter.MinQuality, 'f', -1, 64))
	}
	endpoint := c.baseURL + "/v1/datasets"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var out struct {
		Datasets []domain.Dataset `json:"datasets"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("discover datasets: %w", err)
	}
	return out.Datasets, nil
}

func (c *Client) Probe(ctx context.Context, datasetID uuid.UUID) (*domain.Dataset, error) {
	var d domain.Dataset
	if err := c.getJSON(ctx, c.baseURL+"/v1/datasets/"+datasetID.String(), &d); err != nil {
		return nil, fmt.Errorf("probe dataset %s: %w", datasetID, err)
	}
	return &d, nil
}

func (c *Client) Sample(ctx context.Context, datasetID uuid.UUID, n int) ([]domain.Record, error) {
	endpoint := fmt.Sprintf("%s/v1/datasets/%s/sample?limit=%d", c.baseURL, datasetID, n)
	var out struct {
		Records []domain.Record `json:"records"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("sample dataset %s: %w", datasetID, err)
	}
	return out.Records, nil
}

type purchaseResponse struct {
	Records         []domain.Record `json:"records"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	Amount          string          `json:"amount"`
}

// Purchase runs the full handshake: an unpaid request yields a 402 challenge,
// the challenge payload is signed with the agent's wallet, and the request is
// resubmitted with the proof in the X-PAYMENT header.
func (c *Client) Purchase(ctx context.Context, agent *domain.BuyerAgent,
	dataset *domain.Dataset, quantity int) (*domain.PurchaseResult, error) {

	endpoint := fmt.Sprintf("%s/v1/datasets/%s/records?quantity=%d", c.baseURL, dataset.ID, quantity)

	challenge, err := c.requestChallenge(ctx, endpoint, agent.ID)
	if err != nil {
		return nil, err
	}

	proof, err := c.signChallenge(ctx, agent, challenge)
	if err != nil {
		return nil, err
	}

	resp, err := c.submitProof(ctx, endpoint, agent.ID, proof)
	if err != nil {
		return nil, err
	}

	paid, err := decimal.NewFromString(resp.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse paid amount %q: %w", resp.Amount, err)
	}

	c.logger.Info("purchase completed",
		zap.String("agent_id", agent.ID.String()),
		zap.String("dataset_id", dataset.ID.String()),
		zap.Int("records", len(resp.Records)),
		zap.String("amount", resp.Amount))

	return &domain.PurchaseResult{
		Records:    resp.Records,
		AmountPaid: paid,
		TxHash:     resp.TransactionHash,
	}, nil
}

func (c *Client) requestChallenge(ctx context.Context, endpoint string, agentID uuid.UUID) (*domain.ChallengeBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	req.Header.Set(AgentHeader, agentID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("expected 402 challenge, got %d", resp.StatusCode)
	}

	challenge := &domain.ChallengeBody{}
	if err := json.NewDecoder(resp.Body).Decode(challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	if challenge.Scheme != domain.SchemeX402 {
		return nil, fmt.Errorf("unexpected challenge scheme %q", challenge.Scheme)
	}
	return challenge, nil
}

// signingPayload is the canonical byte form the wallet signs; both sides of
// the handshake must agree on it.
type signingPayload struct {
	Scheme    string `json:"scheme"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Network   string `json:"network"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Client) signChallenge(ctx context.Context, agent *domain.BuyerAgent,
	challenge *domain.ChallengeBody) (*domain.SignedPayment, error) {

	payload, err := json.Marshal(signingPayload{
		Scheme:    challenge.Scheme,
		Amount:    challenge.Amount,
		Recipient: challenge.Recipient,
		Network:   challenge.Network,
		Nonce:     challenge.Nonce,
		Timestamp: challenge.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal signing payload: %w", err)
	}

	signature, err := c.signer.Sign(ctx, agent.WalletID, payload)
	if err != nil {
		return nil, fmt.Errorf("sign payment: %w", err)
	}

	return &domain.SignedPayment{
		Scheme:    domain.SchemeX402,
		Amount:    challenge.Amount,
		Recipient: challenge.Recipient,
		Signature: signature,
		Nonce:     challenge.Nonce,
		Timestamp: challenge.Timestamp,
	}, nil
}

func (c *Client) submitProof(ctx context.Context, endpoint string, agentID uuid.UUID,
	proof *domain.SignedPayment) (*purchaseResponse, error) {

	header, err := json.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("marshal payment header: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	req.Header.Set(AgentHeader, agentID.String())
	req.Header.Set(domain.PaymentHeader, string(header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("purchase rejected with status %d: %s", resp.StatusCode, body)
	}

	out := &purchaseResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode purchase response: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
