package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"landscout/models"
)

// PostgresStore is the shared copy of acquired listings and region scores. SQLite stays the
// working store; rows reach Postgres through the sync worker.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the tables this store writes to if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id UUID PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		building_name TEXT,
		unit TEXT,
		floor TEXT,
		area TEXT,
		property_code TEXT,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		unit_id UUID NOT NULL REFERENCES units(id),
		region_id TEXT NOT NULL,
		trade_code TEXT,
		price TEXT,
		broker TEXT,
		confirmed_at TEXT,
		data JSONB,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listing_images (
		listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (listing_id, position)
	);

	CREATE TABLE IF NOT EXISTS region_scores (
		region_code TEXT PRIMARY KEY,
		region_name TEXT,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		counts JSONB,
		total_score INTEGER,
		scored_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_listings_unit ON listings(unit_id);
	CREATE INDEX IF NOT EXISTS idx_listings_region ON listings(region_id, last_seen_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Units
// =============================================================================

// UpsertUnit returns the id of the unit with this fingerprint, creating it if needed.
func (s *PostgresStore) UpsertUnit(ctx context.Context, fingerprint string, l *models.Listing) (uuid.UUID, error) {
	query := `
		INSERT INTO units (id, fingerprint, building_name, unit, floor, area, property_code, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO UPDATE SET
			lat = COALESCE(EXCLUDED.lat, units.lat),
			lng = COALESCE(EXCLUDED.lng, units.lng),
			updated_at = NOW()
		RETURNING id`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		uuid.New(), fingerprint, l.BuildingName, l.Unit, l.Floor, l.Area, l.PropertyCode,
		nullCoord(l.Lat), nullCoord(l.Lon),
	).Scan(&id)
	return id, err
}

// =============================================================================
// Listings
// =============================================================================

func (s *PostgresStore) UpsertListing(ctx context.Context, unitID uuid.UUID, regionID string, l *models.Listing, seenAt time.Time) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", l.ID, err)
	}

	query := `
		INSERT INTO listings (id, unit_id, region_id, trade_code, price, broker, confirmed_at, data, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			unit_id = EXCLUDED.unit_id,
			price = EXCLUDED.price,
			broker = EXCLUDED.broker,
			confirmed_at = EXCLUDED.confirmed_at,
			data = EXCLUDED.data,
			last_seen_at = GREATEST(listings.last_seen_at, EXCLUDED.last_seen_at)`

	_, err = s.pool.Exec(ctx, query,
		l.ID, unitID, regionID, l.TradeCode, l.Price, l.Broker, l.ConfirmedAt, data, seenAt)
	return err
}

// ReplaceListingImages swaps the image set of a listing in one transaction.
func (s *PostgresStore) ReplaceListingImages(ctx context.Context, listingID string, urls models.ImageURLSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM listing_images WHERE listing_id = $1`, listingID)
	for i, u := range urls {
		batch.Queue(`INSERT INTO listing_images (listing_id, position, url) VALUES ($1, $2, $3)`, listingID, i, u)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("images for %s: %w", listingID, err)
	}
	return tx.Commit(ctx)
}

// CountListingsForUnit reports how many listings advertise the unit.
func (s *PostgresStore) CountListingsForUnit(ctx context.Context, unitID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE unit_id = $1`, unitID).Scan(&n)
	return n, err
}

// =============================================================================
// Region scores
// =============================================================================

func (s *PostgresStore) UpsertRegionScore(ctx context.Context, score *models.RegionScore) error {
	counts, err := json.Marshal(score.Counts)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO region_scores (region_code, region_name, lat, lng, counts, total_score, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (region_code) DO UPDATE SET
			region_name = EXCLUDED.region_name,
			lat = COALESCE(EXCLUDED.lat, region_scores.lat),
			lng = COALESCE(EXCLUDED.lng, region_scores.lng),
			counts = EXCLUDED.counts,
			total_score = EXCLUDED.total_score,
			scored_at = EXCLUDED.scored_at`

	_, err = s.pool.Exec(ctx, query,
		score.RegionCode, score.RegionName, score.Lat, score.Lon, counts, score.Total, score.ScoredAt)
	return err
}

func nullCoord(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
