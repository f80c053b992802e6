package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeovahfialho/capital-gains/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS operation_batches (
    id          UUID PRIMARY KEY,
    source      TEXT NOT NULL DEFAULT '',
    size        INTEGER NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS operations (
    batch_id    UUID NOT NULL REFERENCES operation_batches(id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    operation   TEXT NOT NULL CHECK (operation IN ('buy', 'sell')),
    unit_cost   NUMERIC(18, 4) NOT NULL CHECK (unit_cost > 0),
    quantity    BIGINT NOT NULL CHECK (quantity > 0),
    symbol      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (batch_id, seq)
);
`

// DB holds the connection pool used to store input operations. Ledger state
// is never written here.
type DB struct {
	pool *pgxpool.Pool
}

func NewDB(cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("erro ao parsear config: %w", err)
	}

	poolConfig.MaxConns = cfg.DatabaseMaxConns
	poolConfig.MinConns = cfg.DatabaseMinConns
	poolConfig.MaxConnLifetime = cfg.DatabaseMaxConnLife
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("erro ao conectar: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) HealthCheck(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// EnsureSchema creates the operation tables when they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("erro ao criar schema: %w", err)
	}
	return nil
}
