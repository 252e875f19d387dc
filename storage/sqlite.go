package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"landscout/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		region_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		building_name TEXT,
		unit TEXT,
		property_code TEXT,
		trade_code TEXT,
		price TEXT,
		area TEXT,
		floor TEXT,
		data JSON,
		first_seen_at DATETIME,
		last_seen_at DATETIME,
		times_seen INTEGER DEFAULT 1,
		synced BOOLEAN DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS listing_images (
		listing_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (listing_id, position)
	);

	CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		position INTEGER,
		original_url TEXT NOT NULL UNIQUE,
		s3_key TEXT,
		content_hash TEXT,
		status TEXT DEFAULT 'pending',
		attempts INTEGER DEFAULT 0,
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS acquisition_runs (
		id INTEGER PRIMARY KEY,
		keyword TEXT,
		region_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		total_estimate INTEGER,
		listings_found INTEGER,
		images_resolved INTEGER,
		errors_count INTEGER,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		source TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS region_stats (
		region_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_listings INTEGER,
		listings_synced INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE TABLE IF NOT EXISTS admin_regions (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS region_scores (
		region_code TEXT PRIMARY KEY,
		region_name TEXT,
		lat REAL,
		lon REAL,
		counts JSON,
		total_score INTEGER,
		scored_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listings_fingerprint ON listings(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_listings_region ON listings(region_id, last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_media_pending ON media(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON acquisition_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertListing stores the listing under its fingerprint and reports whether it was new.
// A listing seen again keeps its first_seen_at and is flagged for re-sync.
func (s *SQLiteStore) UpsertListing(regionID, fingerprint string, l *models.Listing, seenAt time.Time) (bool, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return false, fmt.Errorf("encode listing %s: %w", l.ID, err)
	}

	var existing int
	err = s.db.QueryRow(`SELECT 1 FROM listings WHERE id = ?`, l.ID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	isNew := err == sql.ErrNoRows

	_, err = s.db.Exec(`
		INSERT INTO listings (id, region_id, fingerprint, building_name, unit, property_code, trade_code,
			price, area, floor, data, first_seen_at, last_seen_at, times_seen, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, FALSE)
		ON CONFLICT(id) DO UPDATE SET
			region_id = excluded.region_id,
			fingerprint = excluded.fingerprint,
			price = excluded.price,
			data = excluded.data,
			last_seen_at = excluded.last_seen_at,
			times_seen = times_seen + 1,
			synced = FALSE`,
		l.ID, regionID, fingerprint, l.BuildingName, l.Unit, l.PropertyCode, l.TradeCode,
		l.Price, l.Area, l.Floor, string(data), seenAt, seenAt)
	if err != nil {
		return false, err
	}
	return isNew, nil
}

func (s *SQLiteStore) GetListing(id string) (*models.Listing, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM listings WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l models.Listing
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", id, err)
	}
	return &l, nil
}

// ListingIDsByFingerprint returns every listing id sharing the fingerprint, oldest first.
func (s *SQLiteStore) ListingIDsByFingerprint(fingerprint string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM listings WHERE fingerprint = ? ORDER BY first_seen_at, id`, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) GetListingCount(regionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM listings WHERE region_id = ?`, regionID).Scan(&count)
	return count, err
}

// UnsyncedListing is a listing waiting to be mirrored to Postgres.
type UnsyncedListing struct {
	RegionID    string
	Fingerprint string
	Listing     models.Listing
	SeenAt      time.Time
}

func (s *SQLiteStore) GetUnsyncedListings(limit int) ([]UnsyncedListing, error) {
	rows, err := s.db.Query(`
		SELECT region_id, fingerprint, data, last_seen_at
		FROM listings WHERE synced = FALSE ORDER BY last_seen_at LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnsyncedListing
	for rows.Next() {
		var u UnsyncedListing
		var data string
		if err := rows.Scan(&u.RegionID, &u.Fingerprint, &data, &u.SeenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &u.Listing); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkListingSynced(id string) error {
	_, err := s.db.Exec(`UPDATE listings SET synced = TRUE WHERE id = ?`, id)
	return err
}

// ReplaceListingImages swaps the stored image set of a listing for urls, in order.
func (s *SQLiteStore) ReplaceListingImages(listingID string, urls models.ImageURLSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM listing_images WHERE listing_id = ?`, listingID); err != nil {
		return err
	}
	for i, u := range urls {
		if _, err := tx.Exec(`
			INSERT INTO listing_images (listing_id, position, url) VALUES (?, ?, ?)`,
			listingID, i, u); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetListingImages(listingID string) (models.ImageURLSet, error) {
	rows, err := s.db.Query(`
		SELECT url FROM listing_images WHERE listing_id = ? ORDER BY position`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls models.ImageURLSet
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// EnqueueMedia inserts a pending media row unless the URL is already queued.
// It reports whether a row was added.
func (s *SQLiteStore) EnqueueMedia(m *models.Media) (bool, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = models.MediaStatusPending
	}
	result, err := s.db.Exec(`
		INSERT INTO media (id, listing_id, position, original_url, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(original_url) DO NOTHING`,
		m.ID.String(), m.ListingID, m.Position, m.OriginalURL, m.Status, m.Attempts, m.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) GetPendingMedia(limit, maxAttempts int) ([]models.Media, error) {
	rows, err := s.db.Query(`
		SELECT id, listing_id, position, original_url, s3_key, COALESCE(content_hash, ''), status, attempts, created_at
		FROM media
		WHERE status = 'pending' AND attempts < ?
		ORDER BY created_at
		LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []models.Media
	for rows.Next() {
		var m models.Media
		var id string
		var s3Key sql.NullString
		if err := rows.Scan(&id, &m.ListingID, &m.Position, &m.OriginalURL, &s3Key,
			&m.ContentHash, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("media id %q: %w", id, err)
		}
		m.ID = parsed
		if s3Key.Valid {
			key := s3Key.String
			m.S3Key = &key
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (s *SQLiteStore) UpdateMediaStatus(id uuid.UUID, status string, s3Key *string, contentHash string, attempts int) error {
	var hash interface{}
	if contentHash != "" {
		hash = contentHash
	}
	_, err := s.db.Exec(`
		UPDATE media SET status = ?, s3_key = COALESCE(?, s3_key), content_hash = COALESCE(?, content_hash), attempts = ?
		WHERE id = ?`,
		status, s3Key, hash, attempts, id.String())
	return err
}

func (s *SQLiteStore) MediaQueueDepth() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM media GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) CreateRun(run *models.AcquisitionRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO acquisition_runs (keyword, region_id, started_at, status, total_estimate,
			listings_found, images_resolved, errors_count, error_message)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, '')`,
		run.Keyword, run.RegionID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.AcquisitionRun) error {
	_, err := s.db.Exec(`
		UPDATE acquisition_runs SET region_id = ?, finished_at = ?, status = ?, total_estimate = ?,
			listings_found = ?, images_resolved = ?, errors_count = ?, error_message = ?
		WHERE id = ?`,
		run.RegionID, run.FinishedAt, run.Status, run.TotalEstimate,
		run.ListingsFound, run.ImagesResolved, run.ErrorsCount, run.ErrorMessage, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.AcquisitionRun, error) {
	var run models.AcquisitionRun
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, keyword, COALESCE(region_id, ''), started_at, finished_at, status, total_estimate,
			listings_found, images_resolved, errors_count, COALESCE(error_message, '')
		FROM acquisition_runs WHERE id = ?`, id).Scan(
		&run.ID, &run.Keyword, &run.RegionID, &run.StartedAt, &finished, &run.Status, &run.TotalEstimate,
		&run.ListingsFound, &run.ImagesResolved, &run.ErrorsCount, &run.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// Log records a log line. runID is nil for lines outside an acquisition run.
func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, source, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, source, message)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, source, message)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID int64) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, source, message
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Source, &l.Message); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) UpdateRegionStats(regionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO region_stats (region_id, last_run_at, last_run_status, total_listings,
			listings_synced, success_rate, avg_run_duration_sec)
		SELECT
			?,
			COALESCE(
				(SELECT started_at FROM acquisition_runs WHERE region_id = ? AND status = 'completed' ORDER BY started_at DESC LIMIT 1),
				(SELECT started_at FROM acquisition_runs WHERE region_id = ? ORDER BY started_at DESC LIMIT 1)
			),
			(SELECT status FROM acquisition_runs WHERE region_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM listings WHERE region_id = ?),
			(SELECT COUNT(*) FROM listings WHERE region_id = ? AND synced = TRUE),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM acquisition_runs WHERE region_id = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM acquisition_runs WHERE region_id = ? AND finished_at IS NOT NULL)
		ON CONFLICT(region_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_listings = excluded.total_listings,
			listings_synced = excluded.listings_synced,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		regionID, regionID, regionID, regionID, regionID, regionID, regionID, regionID)
	return err
}

func (s *SQLiteStore) GetLastRunTime(regionID string) (time.Time, error) {
	var lastRun sql.NullTime
	err := s.db.QueryRow(`
		SELECT last_run_at FROM region_stats WHERE region_id = ?`, regionID).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return lastRun.Time, nil
}

// ReplaceAdminRegions stores the latest catalogue snapshot.
func (s *SQLiteStore) ReplaceAdminRegions(regions []models.AdminRegion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM admin_regions`); err != nil {
		return err
	}
	for _, r := range regions {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO admin_regions (code, name) VALUES (?, ?)`, r.Code, r.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAdminRegions() ([]models.AdminRegion, error) {
	rows, err := s.db.Query(`SELECT code, name FROM admin_regions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []models.AdminRegion
	for rows.Next() {
		var r models.AdminRegion
		if err := rows.Scan(&r.Code, &r.Name); err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (s *SQLiteStore) UpsertRegionScore(score *models.RegionScore) error {
	counts, err := json.Marshal(score.Counts)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO region_scores (region_code, region_name, lat, lon, counts, total_score, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(region_code) DO UPDATE SET
			region_name = excluded.region_name,
			lat = COALESCE(excluded.lat, lat),
			lon = COALESCE(excluded.lon, lon),
			counts = excluded.counts,
			total_score = excluded.total_score,
			scored_at = excluded.scored_at`,
		score.RegionCode, score.RegionName, score.Lat, score.Lon, string(counts), score.Total, score.ScoredAt)
	return err
}

// GetRegionScores returns stored scores, best first.
func (s *SQLiteStore) GetRegionScores() ([]models.RegionScore, error) {
	rows, err := s.db.Query(`
		SELECT region_code, region_name, lat, lon, counts, total_score, scored_at
		FROM region_scores ORDER BY total_score DESC, region_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []models.RegionScore
	for rows.Next() {
		var sc models.RegionScore
		var lat, lon sql.NullFloat64
		var counts string
		if err := rows.Scan(&sc.RegionCode, &sc.RegionName, &lat, &lon, &counts, &sc.Total, &sc.ScoredAt); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			sc.Lat, sc.Lon = &lat.Float64, &lon.Float64
		}
		if err := json.Unmarshal([]byte(counts), &sc.Counts); err != nil {
			return nil, fmt.Errorf("decode counts for %s: %w", sc.RegionCode, err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw interface{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return 0, err
		}
		raw = string(data)
	}
	result, err := s.db.Exec(`
		INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`, cmd, raw, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		var processed sql.NullTime
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &processed); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func (s *SQLiteStore) ResetAllData() error {
	tables := []string{
		"run_logs",
		"acquisition_runs",
		"listing_images",
		"media",
		"listings",
		"region_stats",
		"region_scores",
		"admin_regions",
		"commands",
	}

	for _, table := range tables {
		_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	return nil
}
