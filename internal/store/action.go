package store

import (
	"context"
	"errors"
	"time"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActionStore struct {
	db *pgxpool.Pool
}

func NewActionStore(db *pgxpool.Pool) *ActionStore {
	return &ActionStore{db: db}
}

func (s *ActionStore) Append(ctx context.Context, a *domain.AgentAction) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO agent_actions (agent_id, action_type, status, details)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		a.AgentID, a.Type, a.Status, a.Details,
	).Scan(&a.ID, &a.CreatedAt)
}

// UpdateStatus promotes a pending entry to its final status. This is the only
// mutation the log permits, done as one atomic update keyed by entry id.
func (s *ActionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ActionStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_actions SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ActionStore) List(ctx context.Context, agentID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, action_type, status, details, created_at
		 FROM agent_actions WHERE agent_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// ListSince returns entries strictly after the watermark in chronological
// order, for incremental feed polling.
func (s *ActionStore) ListSince(ctx context.Context, agentID uuid.UUID, after time.Time) ([]domain.AgentAction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, action_type, status, details, created_at
		 FROM agent_actions WHERE agent_id = $1 AND created_at > $2
		 ORDER BY created_at`,
		agentID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// SellerStats sums completed purchases across every dataset the seller lists.
// Not a hot path; it scans the log joined on the dataset_id inside details.
func (s *ActionStore) SellerStats(ctx context.Context, sellerID uuid.UUID) (*domain.SellerStats, error) {
	stats := &domain.SellerStats{}
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM((a.details->>'amount')::numeric), 0)::text,
		        COALESCE(SUM((a.details->>'quantity')::bigint), 0),
		        COUNT(*)
		 FROM agent_actions a
		 JOIN datasets d ON d.id = (a.details->>'dataset_id')::uuid
		 WHERE d.seller_id = $1
		   AND a.action_type = 'purchase_complete'
		   AND a.status = 'success'`,
		sellerID,
	).Scan(&stats.Revenue, &stats.RecordsSold, &stats.Purchases)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stats, nil
}

func (s *ActionStore) DatasetHistory(ctx context.Context, agentID uuid.UUID, datasetID uuid.UUID, limit int) ([]domain.AgentAction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, action_type, status, details, created_at
		 FROM agent_actions
		 WHERE agent_id = $1 AND details->>'dataset_id' = $2
		 ORDER BY created_at DESC LIMIT $3`,
		agentID, datasetID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

func collectActions(rows pgx.Rows) ([]domain.AgentAction, error) {
	var actions []domain.AgentAction
	for rows.Next() {
		var a domain.AgentAction
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Type, &a.Status, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
