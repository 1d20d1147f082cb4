package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type WalletStore struct {
	db *pgxpool.Pool
}

func NewWalletStore(db *pgxpool.Pool) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, w *domain.Wallet) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO wallets (owner_id, address, public_key, private_key, balance)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		w.OwnerID, w.Address, w.PublicKey, w.PrivateKey, w.Balance.String(),
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *WalletStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return s.get(ctx, `SELECT id, owner_id, address, public_key, private_key, balance::text, created_at
		 FROM wallets WHERE id = $1`, id)
}

func (s *WalletStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return s.get(ctx, `SELECT id, owner_id, address, public_key, private_key, balance::text, created_at
		 FROM wallets WHERE owner_id = $1`, ownerID)
}

func (s *WalletStore) AddBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE wallets SET balance = balance + $2::numeric WHERE id = $1`,
		id, delta.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *WalletStore) get(ctx context.Context, query string, arg any) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var balance string
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&w.ID, &w.OwnerID, &w.Address, &w.PublicKey, &w.PrivateKey, &balance, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return w, nil
}
