package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/db"
	"github.com/sells-group/opendate-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	key         TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	cursor      INTEGER NOT NULL,
	payload     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_resolutions (
	run_id                TEXT NOT NULL,
	entity_id             TEXT NOT NULL,
	source                TEXT NOT NULL,
	outcome               TEXT NOT NULL,
	is_primary            BOOLEAN NOT NULL DEFAULT false,
	date_value            TEXT,
	year                  INTEGER,
	date_precision        TEXT,
	tier                  TEXT,
	external_reference_id TEXT,
	match_confidence      DOUBLE PRECISION,
	error                 TEXT,
	duration_ms           BIGINT NOT NULL DEFAULT 0,
	geom                  BYTEA,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, entity_id, source)
);

CREATE INDEX IF NOT EXISTS idx_entity_resolutions_entity ON entity_resolutions(entity_id);
CREATE INDEX IF NOT EXISTS idx_entity_resolutions_primary ON entity_resolutions(run_id) WHERE is_primary;
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveCheckpoint replaces the checkpoint stored under key.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, key string, cp *model.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (key, run_id, fingerprint, cursor, payload, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (key) DO UPDATE SET run_id = EXCLUDED.run_id, fingerprint = EXCLUDED.fingerprint,
		 cursor = EXCLUDED.cursor, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		key, cp.RunID, cp.Fingerprint, cp.Cursor, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", key)
}

// LoadCheckpoint returns nil, nil when no checkpoint is stored under key.
func (s *PostgresStore) LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM checkpoints WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s", key)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal checkpoint %s", key)
	}
	return &cp, nil
}

// DeleteCheckpoint removes key. Missing keys are not an error.
func (s *PostgresStore) DeleteCheckpoint(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: delete checkpoint %s", key)
}

// SaveResolutions upserts audit rows through COPY into a temp table.
func (s *PostgresStore) SaveResolutions(ctx context.Context, rows []Resolution) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.values()
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "entity_resolutions",
		Columns:      resolutionColumns,
		ConflictKeys: []string{"run_id", "entity_id", "source"},
	}, values)
	return n, eris.Wrap(err, "postgres: save resolutions")
}

// AppendResolutions inserts audit rows for a fresh run with plain COPY. It
// fails on any existing (run, entity, source) key.
func (s *PostgresStore) AppendResolutions(ctx context.Context, rows []Resolution) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.values()
	}
	return db.CopyFrom(ctx, s.pool, "entity_resolutions", resolutionColumns, values)
}

// ListResolutions returns a run's audit rows ordered by entity and source.
func (s *PostgresStore) ListResolutions(ctx context.Context, runID string) ([]Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(resolutionColumns, ", ")+` FROM entity_resolutions WHERE run_id = $1 ORDER BY entity_id, source`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list resolutions %s", runID)
	}
	defer rows.Close()

	var out []Resolution
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate resolutions")
}

// Open returns the store named by driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		s, err := NewPostgres(ctx, dsn, poolCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
