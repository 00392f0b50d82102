package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"netflow-crawler/internal/record"
)

const (
	createSQLiteTableSQL = `CREATE TABLE IF NOT EXISTS netflow_rows (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   TEXT    NOT NULL,
		captured_at INTEGER NOT NULL,
		raw_values  TEXT    NOT NULL,
		market_cap  TEXT
	)`
	createSQLiteIndexSQL = `CREATE INDEX IF NOT EXISTS idx_netflow_captured ON netflow_rows(captured_at)`

	insertSQLiteRowSQL = `INSERT INTO netflow_rows (timestamp, captured_at, raw_values, market_cap)
		VALUES (:timestamp, :captured_at, :raw_values, :market_cap)`
	countSQLiteRowsSQL = `SELECT COUNT(*) FROM netflow_rows`
)

// sqliteRow is the stored shape of a record; values are kept as a JSON array.
type sqliteRow struct {
	Timestamp  string         `db:"timestamp"`
	CapturedAt int64          `db:"captured_at"`
	RawValues  string         `db:"raw_values"`
	MarketCap  sql.NullString `db:"market_cap"`
}

// SQLiteStore mirrors records into a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the table if absent.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createSQLiteTableSQL, createSQLiteIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Append implements Writer.
func (s *SQLiteStore) Append(ctx context.Context, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := json.Marshal(rec.Values)
	if err != nil {
		return &PersistenceError{Store: "sqlite", Err: err}
	}

	row := sqliteRow{
		Timestamp:  rec.Timestamp,
		CapturedAt: rec.CapturedAt.Unix(),
		RawValues:  string(values),
		MarketCap:  sql.NullString{String: rec.MarketCap, Valid: rec.HasMarketCap()},
	}
	if _, err := s.db.NamedExecContext(ctx, insertSQLiteRowSQL, row); err != nil {
		return &PersistenceError{Store: "sqlite", Err: err}
	}
	return nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, countSQLiteRowsSQL); err != nil {
		return 0, fmt.Errorf("count sqlite rows: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Writer = (*SQLiteStore)(nil)
