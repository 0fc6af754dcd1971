package prefs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadtripper/roadtripper/internal/poi"
)

// PostgresRepository is a PostgreSQL implementation of Repository. The
// service is single-profile, so preferences live in one fixed row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL preferences repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context) (*Preferences, error) {
	query := `
		SELECT categories, min_rating, open_now_only, theme, updated_at
		FROM user_preferences
		WHERE id = 1
	`

	var (
		categories []string
		prefs      Preferences
		theme      string
	)

	err := r.pool.QueryRow(ctx, query).Scan(
		&categories,
		&prefs.Filter.MinRating,
		&prefs.Filter.OpenNowOnly,
		&theme,
		&prefs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreferencesNotFound
		}
		return nil, err
	}

	prefs.Theme = Theme(theme)
	prefs.Filter.Categories = make([]poi.Category, 0, len(categories))
	for _, c := range categories {
		prefs.Filter.Categories = append(prefs.Filter.Categories, poi.Category(c))
	}

	return &prefs, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p Preferences) error {
	query := `
		INSERT INTO user_preferences (id, categories, min_rating, open_now_only, theme, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			categories = EXCLUDED.categories,
			min_rating = EXCLUDED.min_rating,
			open_now_only = EXCLUDED.open_now_only,
			theme = EXCLUDED.theme,
			updated_at = EXCLUDED.updated_at
	`

	categories := make([]string, 0, len(p.Filter.Categories))
	for _, c := range p.Filter.Categories {
		categories = append(categories, string(c))
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, query,
		categories,
		p.Filter.MinRating,
		p.Filter.OpenNowOnly,
		string(p.Theme),
		updatedAt,
	)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
