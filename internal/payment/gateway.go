package payment

import (
	"context"
	"errors"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrDatasetNotFound        = errors.New("dataset not found or inactive")
	ErrInvalidPayment         = errors.New("invalid payment format")
	ErrChallengeNotFound      = errors.New("payment challenge not found")
	ErrChallengeExpired       = errors.New("payment challenge expired")
	ErrVerificationFailed     = errors.New("payment verification failed")
	ErrFacilitatorUnreachable = errors.New("facilitator unreachable")
)

// AuthStatus is the outcome of one Authorize call.
type AuthStatus string

const (
	AuthAllow     AuthStatus = "allow"
	AuthChallenge AuthStatus = "challenge"
	AuthDenied    AuthStatus = "denied"
)

// AuthResult carries whichever branch Authorize took. Challenge is set for
// AuthChallenge, TxHash/Settled for AuthAllow, Reason for AuthDenied.
type AuthResult struct {
	Status    AuthStatus
	Dataset   *domain.Dataset
	Challenge *domain.ChallengeBody
	Payment   *domain.SignedPayment
	TxHash    string
	Settled   bool
	Reason    string
}

// Gateway implements the x402 request/challenge/verify handshake in front of
// paid data access. It never mutates agent records; it only authorizes and
// writes audit entries.
type Gateway struct {
	catalog        domain.CatalogStore
	actions        domain.ActionStore
	cache          ChallengeCache
	facilitator    domain.Facilitator
	facilitatorURL string
	network        string
	logger         *zap.Logger
}

func NewGateway(catalog domain.CatalogStore, actions domain.ActionStore, cache ChallengeCache,
	facilitator domain.Facilitator, facilitatorURL, network string, logger *zap.Logger) *Gateway {
	return &Gateway{
		catalog:        catalog,
		actions:        actions,
		cache:          cache,
		facilitator:    facilitator,
		facilitatorURL: facilitatorURL,
		network:        network,
		logger:         logger,
	}
}

// Authorize resolves one inbound data-access request. With no proof attached
// it mints a challenge; with a proof it verifies and either allows or denies.
func (g *Gateway) Authorize(ctx context.Context, datasetID uuid.UUID, quantity int,
	proof *domain.SignedPayment, agentID *uuid.UUID) (*AuthResult, error) {

	dataset, err := g.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	if !dataset.Active {
		return nil, ErrDatasetNotFound
	}

	recipient, err := g.catalog.GetSellerPayoutAddress(ctx, dataset.SellerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}

	if proof == nil {
		return g.issueChallenge(ctx, dataset, recipient, quantity, agentID)
	}
	return g.verifyProof(ctx, dataset, recipient, quantity, proof, agentID)
}

func (g *Gateway) issueChallenge(ctx context.Context, dataset *domain.Dataset, recipient string,
	quantity int, agentID *uuid.UUID) (*AuthResult, error) {

	now := time.Now()
	amount := dataset.PricePerRecord.Mul(decimal.NewFromInt(int64(quantity)))

	challenge := &domain.PaymentChallenge{
		Nonce:     uuid.NewString(),
		Amount:    amount,
		Recipient: recipient,
		Network:   g.network,
		IssuedAt:  now,
		DatasetID: dataset.ID,
		Quantity:  quantity,
	}
	if err := g.cache.Put(ctx, challenge); err != nil {
		return nil, err
	}

	body := &domain.ChallengeBody{
		Scheme:      domain.SchemeX402,
		Amount:      amount.StringFixed(6),
		Currency:    domain.CurrencyUSDC,
		Recipient:   recipient,
		Network:     g.network,
		Nonce:       challenge.Nonce,
		Timestamp:   now.Unix(),
		Facilitator: g.facilitatorURL,
		Metadata: domain.ChallengeMetadata{
			DatasetID:      dataset.ID.String(),
			DatasetName:    dataset.Name,
			Quantity:       quantity,
			PricePerRecord: dataset.PricePerRecord.StringFixed(6),
		},
	}

	if agentID != nil {
		g.record(ctx, *agentID, domain.ActionPayment402Received, domain.ActionPending, map[string]any{
			"dataset_id": dataset.ID.String(),
			"amount":     body.Amount,
			"nonce":      challenge.Nonce,
			"quantity":   quantity,
		})
	}

	return &AuthResult{Status: AuthChallenge, Dataset: dataset, Challenge: body}, nil
}

func (g *Gateway) verifyProof(ctx context.Context, dataset *domain.Dataset, recipient string,
	quantity int, proof *domain.SignedPayment, agentID *uuid.UUID) (*AuthResult, error) {

	if proof.Scheme != domain.SchemeX402 || proof.Signature == "" || proof.Recipient == "" {
		return &AuthResult{Status: AuthDenied, Dataset: dataset, Reason: ErrInvalidPayment.Error()}, nil
	}
	amount, err := decimal.NewFromString(proof.Amount)
	if err != nil {
		return &AuthResult{Status: AuthDenied, Dataset: dataset, Reason: ErrInvalidPayment.Error()}, nil
	}

	challenge, err := g.cache.Take(ctx, proof.Nonce)
	if err != nil {
		// Unknown or expired nonce: rebuild a challenge from the proof's own
		// fields. This path cannot guarantee nonce freshness; the facilitator
		// is the only check left standing.
		g.logger.Warn("payment challenge missing, reconstructing from proof",
			zap.String("nonce", proof.Nonce),
			zap.Error(err))
		challenge = &domain.PaymentChallenge{
			Nonce:     proof.Nonce,
			Amount:    amount,
			Recipient: proof.Recipient,
			Network:   g.network,
			IssuedAt:  time.Now(),
			DatasetID: dataset.ID,
			Quantity:  quantity,
		}
	}

	var signing *domain.AgentAction
	if agentID != nil {
		signing = g.record(ctx, *agentID, domain.ActionPaymentSigning, domain.ActionPending, map[string]any{
			"dataset_id": dataset.ID.String(),
			"amount":     proof.Amount,
			"recipient":  recipient,
		})
	}

	txHash, err := g.facilitator.Verify(ctx, proof, challenge)
	switch {
	case err == nil:
	case errors.Is(err, ErrFacilitatorUnreachable):
		// Deliberate lenient fallback: accept a structurally valid proof when
		// the facilitator cannot be reached, rather than blocking all
		// purchases on its availability. Known weak point; a hardened
		// deployment should fail closed here.
		g.logger.Warn("facilitator unreachable, accepting payment without settlement",
			zap.String("dataset_id", dataset.ID.String()),
			zap.Error(err))
		g.finishSigning(ctx, signing, domain.ActionSuccess)
		if agentID != nil {
			g.record(ctx, *agentID, domain.ActionPaymentVerified, domain.ActionSuccess, map[string]any{
				"dataset_id": dataset.ID.String(),
				"amount":     proof.Amount,
				"degraded":   true,
			})
		}
		return &AuthResult{Status: AuthAllow, Dataset: dataset, Payment: proof}, nil
	default:
		g.finishSigning(ctx, signing, domain.ActionFailed)
		if agentID != nil {
			g.record(ctx, *agentID, domain.ActionError, domain.ActionFailed, map[string]any{
				"dataset_id": dataset.ID.String(),
				"step":       "payment_verification",
				"error":      err.Error(),
			})
		}
		return &AuthResult{Status: AuthDenied, Dataset: dataset, Reason: ErrVerificationFailed.Error()}, nil
	}

	g.finishSigning(ctx, signing, domain.ActionSuccess)
	if agentID != nil {
		details := map[string]any{
			"dataset_id": dataset.ID.String(),
			"amount":     proof.Amount,
			"recipient":  recipient,
		}
		g.record(ctx, *agentID, domain.ActionPaymentSent, domain.ActionSuccess, details)
		g.record(ctx, *agentID, domain.ActionPaymentVerified, domain.ActionSuccess, details)
		g.record(ctx, *agentID, domain.ActionPaymentSettled, domain.ActionSuccess, map[string]any{
			"dataset_id":       dataset.ID.String(),
			"amount":           proof.Amount,
			"transaction_hash": txHash,
		})
	}

	return &AuthResult{Status: AuthAllow, Dataset: dataset, Payment: proof, TxHash: txHash, Settled: true}, nil
}

// record appends an audit entry best-effort; a log write failure never blocks
// the payment path.
func (g *Gateway) record(ctx context.Context, agentID uuid.UUID, t domain.ActionType,
	status domain.ActionStatus, details map[string]any) *domain.AgentAction {
	a := &domain.AgentAction{AgentID: agentID, Type: t, Status: status, Details: details}
	if err := g.actions.Append(ctx, a); err != nil {
		g.logger.Error("failed to append audit action",
			zap.String("agent_id", agentID.String()),
			zap.String("action_type", string(t)),
			zap.Error(err))
		return nil
	}
	return a
}

func (g *Gateway) finishSigning(ctx context.Context, signing *domain.AgentAction, status domain.ActionStatus) {
	if signing == nil {
		return
	}
	if err := g.actions.UpdateStatus(ctx, signing.ID, status); err != nil {
		g.logger.Warn("failed to finalize signing action",
			zap.String("action_id", signing.ID.String()),
			zap.Error(err))
	}
}
