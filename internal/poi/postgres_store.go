package poi

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadtripper/roadtripper/internal/geo"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL POI store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CachePOIs bulk-upserts cached rows in a single batch.
func (s *PostgresStore) CachePOIs(ctx context.Context, rows []CachedPOI) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO cached_pois (
			id, name, category, lat, lng, rating, rating_count,
			price_level, is_open, address, photo_url,
			cached_at, search_lat, search_lng, search_radius_m
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			rating = EXCLUDED.rating,
			rating_count = EXCLUDED.rating_count,
			price_level = EXCLUDED.price_level,
			is_open = EXCLUDED.is_open,
			address = EXCLUDED.address,
			photo_url = EXCLUDED.photo_url,
			cached_at = EXCLUDED.cached_at,
			search_lat = EXCLUDED.search_lat,
			search_lng = EXCLUDED.search_lng,
			search_radius_m = EXCLUDED.search_radius_m
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			row.ID,
			row.Name,
			string(row.Category),
			row.Location.Lat,
			row.Location.Lng,
			row.Rating,
			row.RatingCount,
			row.PriceLevel,
			row.IsOpen,
			row.Address,
			row.PhotoURL,
			row.CachedAt,
			row.SearchCenter.Lat,
			row.SearchCenter.Lng,
			row.SearchRadiusMeters,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// CachedPOIs returns unexpired rows whose search center lies within
// radiusMeters of center. A coarse bounding box narrows the scan in SQL;
// the precise radius check runs in-process.
func (s *PostgresStore) CachedPOIs(ctx context.Context, center geo.Point, radiusMeters int, maxAge time.Duration) ([]CachedPOI, error) {
	cutoff := time.Now().Add(-maxAge)

	// Degrees per meter, padded so the box never clips the circle.
	latDelta := float64(radiusMeters) / 111000 * 1.1
	lngDelta := latDelta / math.Max(math.Cos(center.Lat*math.Pi/180), 0.01)

	query := `
		SELECT
			id, name, category, lat, lng, rating, rating_count,
			price_level, is_open, address, photo_url,
			cached_at, search_lat, search_lng, search_radius_m
		FROM cached_pois
		WHERE cached_at >= $1
		  AND search_lat BETWEEN $2 AND $3
		  AND search_lng BETWEEN $4 AND $5
	`

	rows, err := s.pool.Query(ctx, query,
		cutoff,
		center.Lat-latDelta, center.Lat+latDelta,
		center.Lng-lngDelta, center.Lng+lngDelta,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CachedPOI
	for rows.Next() {
		var (
			row      CachedPOI
			category string
		)
		err := rows.Scan(
			&row.ID,
			&row.Name,
			&category,
			&row.Location.Lat,
			&row.Location.Lng,
			&row.Rating,
			&row.RatingCount,
			&row.PriceLevel,
			&row.IsOpen,
			&row.Address,
			&row.PhotoURL,
			&row.CachedAt,
			&row.SearchCenter.Lat,
			&row.SearchCenter.Lng,
			&row.SearchRadiusMeters,
		)
		if err != nil {
			return nil, err
		}
		row.Category = Category(category)

		if geo.ApproxDistance(center, row.SearchCenter) > float64(radiusMeters) {
			continue
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ClearExpired deletes rows older than maxAge.
func (s *PostgresStore) ClearExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	tag, err := s.pool.Exec(ctx, `DELETE FROM cached_pois WHERE cached_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
