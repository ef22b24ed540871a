package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hut-availability/models"
	"hut-availability/utils"

	"github.com/lib/pq"
)

// records of one save are complete for each date they cover, so rooms of
// earlier runs missing from the save are dropped, date-wide rows included
const deleteReplacedRooms = `
	DELETE FROM hut_availability
	WHERE hut_id = $1 AND date = $2 AND NOT (room_type = ANY($3))
`

const upsertAvailability = `
	INSERT INTO hut_availability (hut_id, date, room_type, places_avail, status, last_updated, last_run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (hut_id, date, room_type) DO UPDATE SET
		places_avail = EXCLUDED.places_avail,
		status       = EXCLUDED.status,
		last_updated = EXCLUDED.last_updated,
		last_run_id  = EXCLUDED.last_run_id
`

// PostgresWriter upserts availability records into PostgreSQL
type PostgresWriter struct {
	db     *sql.DB
	runID  string
	logger *utils.Logger
	now    func() time.Time
}

// NewPostgresWriter opens the database and pings it. runID tags every row written by this run.
func NewPostgresWriter(ctx context.Context, connStr, runID string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to PostgreSQL successfully")
	return &PostgresWriter{db: db, runID: runID, logger: logger, now: time.Now}, nil
}

// CreateTable creates the hut_availability table if it doesn't exist
func (w *PostgresWriter) CreateTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS hut_availability (
		hut_id       INTEGER     NOT NULL,
		date         DATE        NOT NULL,
		room_type    TEXT        NOT NULL DEFAULT '',
		places_avail INTEGER,
		status       TEXT        NOT NULL DEFAULT '',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_run_id  UUID,
		PRIMARY KEY (hut_id, date, room_type)
	);

	CREATE INDEX IF NOT EXISTS idx_hut_availability_date ON hut_availability (date);
	`
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	w.logger.Info("Table 'hut_availability' is ready")
	return nil
}

// SaveRecords replaces the rows of every date in records for one hut, in a single transaction
func (w *PostgresWriter) SaveRecords(ctx context.Context, hutID int, records []models.AvailabilityRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, d := range roomsByDate(records) {
		if _, err = tx.ExecContext(ctx, deleteReplacedRooms, hutID, d.date, pq.Array(d.rooms)); err != nil {
			return fmt.Errorf("clear hut %d %s: %w", hutID, models.FormatDate(d.date), err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, upsertAvailability)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := w.now().UTC()
	runID := sql.NullString{String: w.runID, Valid: w.runID != ""}
	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, hutID, r.Date, r.RoomType, placesValue(r), r.Status, updated, runID); err != nil {
			return fmt.Errorf("upsert hut %d %s %q: %w", hutID, models.FormatDate(r.Date), r.RoomType, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.logger.Debug("Upserted %d records for hut %d", len(records), hutID)
	return nil
}

// Close closes the database connection
func (w *PostgresWriter) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// places_avail is NULL when the site showed text instead of a number
func placesValue(r models.AvailabilityRecord) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(r.Places), Valid: r.HasPlaces()}
}

type dateRooms struct {
	date  time.Time
	rooms []string
}

// roomsByDate lists the room types written per date, dates in first-seen order
func roomsByDate(records []models.AvailabilityRecord) []dateRooms {
	var out []dateRooms
	index := make(map[time.Time]int)
	for _, r := range records {
		i, ok := index[r.Date]
		if !ok {
			i = len(out)
			index[r.Date] = i
			out = append(out, dateRooms{date: r.Date})
		}
		out[i].rooms = append(out[i].rooms, r.RoomType)
	}
	return out
}
