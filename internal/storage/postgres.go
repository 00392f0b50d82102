package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"netflow-crawler/internal/config"
	"netflow-crawler/internal/record"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createNetflowRowsSQL = `CREATE TABLE IF NOT EXISTS netflow_rows (
        id          BIGSERIAL PRIMARY KEY,
        timestamp   TEXT        NOT NULL,
        captured_at TIMESTAMPTZ NOT NULL,
        raw_values  TEXT[]      NOT NULL,
        market_cap  TEXT,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertNetflowRowSQL = `INSERT INTO netflow_rows (
        timestamp,
        captured_at,
        raw_values,
        market_cap
    ) VALUES (
        $1,$2,$3,$4
    );`
)

// NewPool opens the pool behind the Postgres mirror. Connections are dialled
// lazily, so a reachable server is only needed on first use.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := mirrorPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &PersistenceError{Store: "postgres", Err: fmt.Errorf("create pool: %w", err)}
	}
	return pool, nil
}

// mirrorPoolConfig parses the DSN and applies database.* limits. A mirror
// never needs more than a handful of connections: one insert per cycle.
func mirrorPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required for the postgres mirror")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database.dsn: %w", err)
	}

	switch {
	case cfg.MaxOpenConns > 0:
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	default:
		poolConfig.MaxConns = 2
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = min(int32(cfg.MaxIdleConns), poolConfig.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return poolConfig, nil
}

// PostgresStore mirrors records into PostgreSQL. Rows are only ever inserted.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the netflow table if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createNetflowRowsSQL); err != nil {
		return fmt.Errorf("create netflow table: %w", err)
	}
	return nil
}

// Append implements Writer.
func (s *PostgresStore) Append(ctx context.Context, rec record.Record) error {
	pool, err := s.getPool()
	if err != nil {
		return &PersistenceError{Store: "postgres", Err: err}
	}

	var marketCap interface{}
	if rec.HasMarketCap() {
		marketCap = rec.MarketCap
	}

	if _, execErr := pool.Exec(ctx, insertNetflowRowSQL,
		rec.Timestamp,
		rec.CapturedAt.UTC(),
		rec.Values,
		marketCap,
	); execErr != nil {
		return &PersistenceError{Store: "postgres", Err: fmt.Errorf("insert netflow row: %w", execErr)}
	}
	return nil
}

var _ Writer = (*PostgresStore)(nil)
