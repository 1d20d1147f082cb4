// Package wallet provides a local ed25519 implementation of the payment
// signer. Keys never leave the wallets table; callers only see signatures,
// addresses and balances.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoWallet = errors.New("no wallet configured")

type Service struct {
	store        domain.WalletStore
	faucetAmount decimal.Decimal
	logger       *zap.Logger
}

// NewService builds a signer backed by the wallet store. faucetAmount is the
// starting balance credited to freshly provisioned wallets.
func NewService(s domain.WalletStore, faucetAmount decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{store: s, faucetAmount: faucetAmount, logger: logger}
}

// Provision returns the owner's wallet, creating one if none exists yet.
func (s *Service) Provision(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.store.GetByOwner(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	w = &domain.Wallet{
		OwnerID:    ownerID,
		Address:    deriveAddress(pub),
		PublicKey:  pub,
		PrivateKey: priv,
		Balance:    s.faucetAmount,
	}
	if err := s.store.Create(ctx, w); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another request provisioned concurrently; use theirs.
			return s.store.GetByOwner(ctx, ownerID)
		}
		return nil, err
	}

	s.logger.Info("provisioned wallet",
		zap.String("owner_id", ownerID.String()),
		zap.String("address", w.Address))
	return w, nil
}

// Sign produces a hex signature over the payload with the wallet's key.
func (s *Service) Sign(ctx context.Context, walletID uuid.UUID, payload []byte) (string, error) {
	w, err := s.store.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoWallet
		}
		return "", err
	}
	sig := ed25519.Sign(ed25519.PrivateKey(w.PrivateKey), payload)
	return hex.EncodeToString(sig), nil
}

// Debit subtracts a settled payment from the wallet balance.
func (s *Service) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	if err := s.store.AddBalance(ctx, walletID, amount.Neg()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoWallet
		}
		return err
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, walletID uuid.UUID, asset string) (decimal.Decimal, error) {
	if asset != domain.CurrencyUSDC {
		return decimal.Zero, fmt.Errorf("unsupported asset %q", asset)
	}
	w, err := s.store.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrNoWallet
		}
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// deriveAddress hashes the public key and keeps the trailing 20 bytes,
// rendered 0x-hex like an EVM address.
func deriveAddress(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[12:])
}
