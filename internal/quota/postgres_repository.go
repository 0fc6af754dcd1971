package quota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. The
// quota is a single-row table; the row id is fixed so upserts are
// idempotent full-record writes.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL quota repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves the persisted quota record.
func (r *PostgresRepository) Get(ctx context.Context) (*Usage, error) {
	query := `
		SELECT distance_traveled_m, distance_limit_m, search_count, search_limit, last_reset
		FROM usage_quota
		WHERE id = 1
	`

	var usage Usage
	err := r.pool.QueryRow(ctx, query).Scan(
		&usage.DistanceTraveledMeters,
		&usage.DistanceLimitMeters,
		&usage.SearchCount,
		&usage.SearchLimit,
		&usage.LastReset,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, err
	}

	return &usage, nil
}

// Upsert writes the full quota record.
func (r *PostgresRepository) Upsert(ctx context.Context, usage Usage) error {
	query := `
		INSERT INTO usage_quota (
			id, distance_traveled_m, distance_limit_m, search_count, search_limit, last_reset, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			distance_traveled_m = EXCLUDED.distance_traveled_m,
			distance_limit_m = EXCLUDED.distance_limit_m,
			search_count = EXCLUDED.search_count,
			search_limit = EXCLUDED.search_limit,
			last_reset = EXCLUDED.last_reset,
			updated_at = now()
	`

	_, err := r.pool.Exec(ctx, query,
		usage.DistanceTraveledMeters,
		usage.DistanceLimitMeters,
		usage.SearchCount,
		usage.SearchLimit,
		usage.LastReset,
	)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
