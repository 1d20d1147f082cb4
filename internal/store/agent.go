package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type BuyerAgentStore struct {
	db *pgxpool.Pool
}

func NewBuyerAgentStore(db *pgxpool.Pool) *BuyerAgentStore {
	return &BuyerAgentStore{db: db}
}

func (s *BuyerAgentStore) Create(ctx context.Context, a *domain.BuyerAgent) error {
	reqs, err := json.Marshal(a.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO buyer_agents
		   (owner_id, name, goal, requirements, wallet_id, wallet_address,
		    status, budget, spent, quality_threshold, quantity_required, quantity_acquired)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		a.OwnerID, a.Name, a.Goal, reqs, nilIfZero(a.WalletID), a.WalletAddress,
		a.Status, a.Budget.String(), a.Spent.String(), a.QualityThreshold,
		a.QuantityRequired, a.QuantityAcquired,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

const agentColumns = `id, owner_id, name, goal, requirements, wallet_id, wallet_address,
	status, budget::text, spent::text, quality_threshold, quantity_required,
	quantity_acquired, created_at, updated_at`

func (s *BuyerAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.BuyerAgent, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM buyer_agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *BuyerAgentStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BuyerAgent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+` FROM buyer_agents WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (s *BuyerAgentStore) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]domain.BuyerAgent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+` FROM buyer_agents WHERE status = $1 ORDER BY created_at`,
		status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (s *BuyerAgentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AgentStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE buyer_agents SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BuyerAgentStore) SetWallet(ctx context.Context, id uuid.UUID, walletID uuid.UUID, address string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE buyer_agents SET wallet_id = $2, wallet_address = $3, updated_at = now() WHERE id = $1`,
		id, walletID, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPurchase bumps spent and quantity_acquired in a single statement and
// returns the updated row, so concurrent cycles cannot lose increments.
func (s *BuyerAgentStore) AddPurchase(ctx context.Context, id uuid.UUID, amount decimal.Decimal, records int) (*domain.BuyerAgent, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE buyer_agents
		 SET spent = spent + $2::numeric,
		     quantity_acquired = quantity_acquired + $3,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+agentColumns,
		id, amount.String(), records)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *BuyerAgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM buyer_agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.BuyerAgent, error) {
	a := &domain.BuyerAgent{}
	var (
		reqs     []byte
		walletID *uuid.UUID
		budget   string
		spent    string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Goal, &reqs, &walletID, &a.WalletAddress,
		&a.Status, &budget, &spent, &a.QualityThreshold, &a.QuantityRequired,
		&a.QuantityAcquired, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(reqs) > 0 {
		if err := json.Unmarshal(reqs, &a.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshal requirements: %w", err)
		}
	}
	if walletID != nil {
		a.WalletID = *walletID
	}
	if a.Budget, err = decimal.NewFromString(budget); err != nil {
		return nil, fmt.Errorf("parse budget: %w", err)
	}
	if a.Spent, err = decimal.NewFromString(spent); err != nil {
		return nil, fmt.Errorf("parse spent: %w", err)
	}
	return a, nil
}

func collectAgents(rows pgx.Rows) ([]domain.BuyerAgent, error) {
	var agents []domain.BuyerAgent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
