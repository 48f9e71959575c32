package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaykit/relayq/pkg/queue"
)

// DefaultSnapshotTable is the table used when none is configured.
const DefaultSnapshotTable = "queue_snapshots"

// Postgres connection errors
var (
	ErrFailedToParsePostgresConfig = errors.New("failed to parse postgres connection string")
	ErrPostgresNotReady            = errors.New("postgres server is not ready")
)

// PostgresConfig holds the connection settings for a Postgres-backed store.
type PostgresConfig struct {
	ConnectionString string        `env:"POSTGRES_URL" envDefault:"postgres://localhost:5432/relayq"`
	RetryAttempts    int           `env:"POSTGRES_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"POSTGRES_RETRY_INTERVAL" envDefault:"5s"`
}

// ConnectPostgres establishes a connection pool, retrying per the configuration.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParsePostgresConfig, err)
	}

	for i := 0; i < cfg.RetryAttempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrPostgresNotReady, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrPostgresNotReady
}

// PostgresStore persists queue state as a single snapshot row, replaced
// transactionally on every save.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore creates a Postgres-backed store. An empty table name
// falls back to DefaultSnapshotTable.
func NewPostgresStore(pool *pgxpool.Pool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("postgres pool cannot be nil")
	}
	if table == "" {
		table = DefaultSnapshotTable
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Table returns the snapshot table name.
func (s *PostgresStore) Table() string { return s.table }

// Migrate creates the snapshot table when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrateSQL(s.table))
	if err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

// Save implements queue.Store
func (s *PostgresStore) Save(ctx context.Context, state queue.State) error {
	items, err := json.Marshal(state.Items)
	if err != nil {
		return fmt.Errorf("failed to encode queue items: %w", err)
	}
	stats, err := json.Marshal(state.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode queue stats: %w", err)
	}

	_, err = s.pool.Exec(ctx, saveSQL(s.table),
		state.SchemaVersion, state.SavedAt, stats, items)
	if err != nil {
		return fmt.Errorf("failed to store queue state in postgres: %w", err)
	}
	return nil
}

// Load implements queue.Store. A missing row yields an empty state.
func (s *PostgresStore) Load(ctx context.Context) (queue.State, error) {
	var (
		state queue.State
		stats []byte
		items []byte
	)

	row := s.pool.QueryRow(ctx, loadSQL(s.table))
	err := row.Scan(&state.SchemaVersion, &state.SavedAt, &stats, &items)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.State{SchemaVersion: queue.SchemaVersion}, nil
	}
	if err != nil {
		return queue.State{}, fmt.Errorf("failed to read queue state from postgres: %w", err)
	}

	if err := json.Unmarshal(stats, &state.Stats); err != nil {
		return queue.State{}, fmt.Errorf("failed to decode queue stats: %w", err)
	}
	if err := json.Unmarshal(items, &state.Items); err != nil {
		return queue.State{}, fmt.Errorf("failed to decode queue items: %w", err)
	}
	return state, nil
}

// The snapshot table holds exactly one row; the check constraint makes
// the singleton explicit and lets Save be a plain upsert.
func migrateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	schema_version INT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL,
	stats JSONB NOT NULL,
	items JSONB NOT NULL
)`, table)
}

func saveSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, schema_version, saved_at, stats, items)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	schema_version = EXCLUDED.schema_version,
	saved_at = EXCLUDED.saved_at,
	stats = EXCLUDED.stats,
	items = EXCLUDED.items`, table)
}

func loadSQL(table string) string {
	return fmt.Sprintf(`SELECT schema_version, saved_at, stats, items FROM %s WHERE id = 1`, table)
}
