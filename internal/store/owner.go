package store

import (
	"context"
	"errors"

	"github.com/agoradata/agora/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OwnerStore struct {
	db *pgxpool.Pool
}

func NewOwnerStore(db *pgxpool.Pool) *OwnerStore {
	return &OwnerStore{db: db}
}

func (s *OwnerStore) Create(ctx context.Context, o *domain.Owner) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO owners (name, api_key_hash) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		o.Name, o.APIKeyHash,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *OwnerStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Owner, error) {
	o := &domain.Owner{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, api_key_hash, created_at, updated_at
		 FROM owners WHERE api_key_hash = $1`,
		apiKeyHash,
	).Scan(&o.ID, &o.Name, &o.APIKeyHash, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}
