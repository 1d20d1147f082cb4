package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type CatalogStore struct {
	db *pgxpool.Pool
}

func NewCatalogStore(db *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{db: db}
}

const datasetColumns = `id, seller_id, name, description, category, price_per_record::text,
	quality_score, record_count, schema, active, created_at, updated_at`

func (s *CatalogStore) GetActiveDatasets(ctx context.Context, filter domain.DiscoveryFilter) ([]domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE active = true`
	args := []any{}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.MinQuality > 0 {
		args = append(args, filter.MinQuality)
		query += fmt.Sprintf(` AND quality_score >= $%d`, len(args))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []domain.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

func (s *CatalogStore) GetDataset(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, id)
	d, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *CatalogStore) GetSellerPayoutAddress(ctx context.Context, sellerID uuid.UUID) (string, error) {
	var address string
	err := s.db.QueryRow(ctx,
		`SELECT payout_address FROM sellers WHERE id = $1`, sellerID,
	).Scan(&address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return address, nil
}

func (s *CatalogStore) GetRecords(ctx context.Context, datasetID uuid.UUID, limit int) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM dataset_records WHERE dataset_id = $1 ORDER BY position LIMIT $2`,
		datasetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDataset(row rowScanner) (*domain.Dataset, error) {
	d := &domain.Dataset{}
	var price string
	err := row.Scan(&d.ID, &d.SellerID, &d.Name, &d.Description, &d.Category, &price,
		&d.QualityScore, &d.RecordCount, &d.Schema, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.PricePerRecord, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return d, nil
}
