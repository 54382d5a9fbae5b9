package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yclients-scraper/models"
	"yclients-scraper/utils"

	_ "github.com/lib/pq"
)

// PostgresStore persists slot records and the source registry in PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresStore opens the connection pool and pings the DB
func NewPostgresStore(connStr string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to PostgreSQL successfully")
	return &PostgresStore{db: db, logger: logger}, nil
}

// CreateTables creates the urls and booking_slots tables if they don't exist
func (s *PostgresStore) CreateTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS urls (
		id         SERIAL PRIMARY KEY,
		url        TEXT UNIQUE NOT NULL,
		name       TEXT        NOT NULL DEFAULT '',
		status     TEXT        NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS booking_slots (
		id                  SERIAL PRIMARY KEY,
		url_id              INTEGER NOT NULL REFERENCES urls(id) ON DELETE CASCADE,
		venue_name          TEXT    NOT NULL DEFAULT '',
		date                DATE    NOT NULL,
		slot_time           TEXT    NOT NULL,
		price               INTEGER NOT NULL,
		currency            TEXT    NOT NULL DEFAULT '₽',
		duration            INTEGER NOT NULL,
		court_type          TEXT    NOT NULL DEFAULT 'GENERAL',
		service_name        TEXT    NOT NULL DEFAULT '',
		provider            TEXT    NOT NULL DEFAULT '',
		seat_number         TEXT    NOT NULL DEFAULT '',
		time_category       TEXT    NOT NULL DEFAULT '',
		review_count        INTEGER NOT NULL DEFAULT 0,
		prepayment_required BOOLEAN NOT NULL DEFAULT false,
		extracted_at        TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (url_id, date, slot_time, service_name, provider)
	);

	CREATE INDEX IF NOT EXISTS idx_booking_slots_date  ON booking_slots (date);
	CREATE INDEX IF NOT EXISTS idx_booking_slots_venue ON booking_slots (venue_name);
	CREATE INDEX IF NOT EXISTS idx_booking_slots_court ON booking_slots (court_type);
	`
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	s.logger.Info("Tables 'urls' and 'booking_slots' are ready")
	return nil
}

// UpsertSlots writes each record as its own indivisible upsert. There is
// deliberately no surrounding transaction: a record that fails is counted
// and skipped, records already written stay written, and the next scheduled
// cycle retries the whole batch anyway.
func (s *PostgresStore) UpsertSlots(ctx context.Context, records []models.SlotRecord) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO booking_slots (
			url_id, venue_name, date, slot_time, price, currency, duration,
			court_type, service_name, provider, seat_number, time_category,
			review_count, prepayment_required, extracted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (url_id, date, slot_time, service_name, provider) DO UPDATE SET
			venue_name          = EXCLUDED.venue_name,
			price               = EXCLUDED.price,
			currency            = EXCLUDED.currency,
			duration            = EXCLUDED.duration,
			court_type          = EXCLUDED.court_type,
			seat_number         = EXCLUDED.seat_number,
			time_category       = EXCLUDED.time_category,
			review_count        = EXCLUDED.review_count,
			prepayment_required = EXCLUDED.prepayment_required,
			extracted_at        = EXCLUDED.extracted_at,
			updated_at          = NOW()
	`)
	if err != nil {
		return WriteResult{}, &StoreError{Op: "prepare upsert", Err: err}
	}
	defer stmt.Close()

	var result WriteResult
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.SourceID,
			r.VenueName,
			r.Date,
			r.Time,
			r.Price,
			r.Currency,
			r.Duration,
			r.CourtType,
			r.ServiceName,
			r.Provider,
			r.SeatNumber,
			r.TimeCategory,
			r.ReviewCount,
			r.Prepayment,
			r.ExtractedAt,
		)
		if err != nil {
			s.logger.Warn("Upsert failed for %s %s %q: %v", r.Date.Format("2006-01-02"), r.Time, r.ServiceName, err)
			result.Failed++
			continue
		}
		result.Written++
	}

	s.logger.Info("Upserted %d/%d slots", result.Written, len(records))
	return result, nil
}

// QuerySlots returns stored records matching the filter in date order
func (s *PostgresStore) QuerySlots(ctx context.Context, filter SlotFilter) ([]models.SlotRecord, error) {
	query := `
		SELECT id, url_id, venue_name, date, slot_time, price, currency, duration,
		       court_type, service_name, provider, seat_number, time_category,
		       review_count, prepayment_required, extracted_at, created_at, updated_at
		FROM booking_slots
		WHERE 1=1`
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.SourceID != 0 {
		query += " AND url_id = " + arg(filter.SourceID)
	}
	if filter.Venue != "" {
		query += " AND venue_name = " + arg(filter.Venue)
	}
	if filter.CourtType != "" {
		query += " AND court_type = " + arg(filter.CourtType)
	}
	if !filter.DateFrom.IsZero() {
		query += " AND date >= " + arg(filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query += " AND date <= " + arg(filter.DateTo)
	}
	query += " ORDER BY date, slot_time, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "query slots", Err: err}
	}
	defer rows.Close()

	var records []models.SlotRecord
	for rows.Next() {
		var r models.SlotRecord
		if err := rows.Scan(
			&r.ID, &r.SourceID, &r.VenueName, &r.Date, &r.Time, &r.Price, &r.Currency,
			&r.Duration, &r.CourtType, &r.ServiceName, &r.Provider, &r.SeatNumber,
			&r.TimeCategory, &r.ReviewCount, &r.Prepayment, &r.ExtractedAt,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, &StoreError{Op: "scan slot", Err: err}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountSlots returns the total number of stored slot rows
func (s *PostgresStore) CountSlots(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM booking_slots`).Scan(&count); err != nil {
		return 0, &StoreError{Op: "count slots", Err: err}
	}
	return count, nil
}

// AddSource registers a booking page URL. Re-adding an existing URL is
// idempotent and returns the existing row.
func (s *PostgresStore) AddSource(ctx context.Context, url, name string) (models.SourceConfig, error) {
	var src models.SourceConfig
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO urls (url, name)
		VALUES ($1, $2)
		ON CONFLICT (url) DO UPDATE SET updated_at = NOW()
		RETURNING id, url, name, status, created_at, updated_at
	`, url, name).Scan(&src.ID, &src.URL, &src.Name, &src.Status, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return models.SourceConfig{}, &StoreError{Op: "add source", Err: err}
	}
	return src, nil
}

// ListSources returns every configured source
func (s *PostgresStore) ListSources(ctx context.Context) ([]models.SourceConfig, error) {
	return s.listSources(ctx, false)
}

// ListActiveSources returns only sources eligible for the next cycle
func (s *PostgresStore) ListActiveSources(ctx context.Context) ([]models.SourceConfig, error) {
	return s.listSources(ctx, true)
}

func (s *PostgresStore) listSources(ctx context.Context, activeOnly bool) ([]models.SourceConfig, error) {
	query := `SELECT id, url, name, status, created_at, updated_at FROM urls`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &StoreError{Op: "list sources", Err: err}
	}
	defer rows.Close()

	var sources []models.SourceConfig
	for rows.Next() {
		var src models.SourceConfig
		if err := rows.Scan(&src.ID, &src.URL, &src.Name, &src.Status, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, &StoreError{Op: "scan source", Err: err}
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSourceStatus flips a source between active and inactive
func (s *PostgresStore) UpdateSourceStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE urls SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return &StoreError{Op: "update source", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StoreError{Op: "update source", Err: fmt.Errorf("source %d not found", id)}
	}
	return nil
}

// RemoveSource deletes a source and, via cascade, all of its slots
func (s *PostgresStore) RemoveSource(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM urls WHERE id = $1`, id)
	if err != nil {
		return false, &StoreError{Op: "remove source", Err: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
