package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"limitboard/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ CalendarStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS trading_calendar (
	date TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS calendar_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	start_date TEXT    NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// SQLiteStore implements CalendarStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteStoreFromDB(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an already opened database.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating calendar schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCalendar replaces the stored calendar in a single transaction.
func (s *SQLiteStore) SaveCalendar(ctx context.Context, snap CalendarSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin calendar tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trading_calendar"); err != nil {
		return fmt.Errorf("clearing calendar: %w", err)
	}
	for _, d := range snap.Dates {
		if _, err := tx.ExecContext(ctx, "INSERT INTO trading_calendar (date) VALUES (?)", string(d)); err != nil {
			return fmt.Errorf("inserting calendar date %s: %w", d, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO calendar_meta (id, start_date, fetched_at) VALUES (1, ?, ?)",
		string(snap.StartDate), snap.FetchedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("writing calendar meta: %w", err)
	}
	return tx.Commit()
}

// LoadCalendar returns the stored calendar, or ErrNotFound if none was saved.
func (s *SQLiteStore) LoadCalendar(ctx context.Context) (CalendarSnapshot, error) {
	var (
		snap      CalendarSnapshot
		start     string
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT start_date, fetched_at FROM calendar_meta WHERE id = 1",
	).Scan(&start, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("reading calendar meta: %w", err)
	}
	snap.StartDate = domain.TradingDate(start)
	snap.FetchedAt = time.UnixMilli(fetchedAt)

	rows, err := s.db.QueryContext(ctx, "SELECT date FROM trading_calendar ORDER BY date")
	if err != nil {
		return snap, fmt.Errorf("reading calendar dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return snap, err
		}
		snap.Dates = append(snap.Dates, domain.TradingDate(d))
	}
	return snap, rows.Err()
}
