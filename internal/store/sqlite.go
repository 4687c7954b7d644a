package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/opendate-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	key         TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	cursor      INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entity_resolutions (
	run_id                TEXT NOT NULL,
	entity_id             TEXT NOT NULL,
	source                TEXT NOT NULL,
	outcome               TEXT NOT NULL,
	is_primary            INTEGER NOT NULL DEFAULT 0,
	date_value            TEXT,
	year                  INTEGER,
	date_precision        TEXT,
	tier                  TEXT,
	external_reference_id TEXT,
	match_confidence      REAL,
	error                 TEXT,
	duration_ms           INTEGER NOT NULL DEFAULT 0,
	geom                  BLOB,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, entity_id, source)
);

CREATE INDEX IF NOT EXISTS idx_entity_resolutions_entity ON entity_resolutions(entity_id);
CREATE INDEX IF NOT EXISTS idx_entity_resolutions_primary ON entity_resolutions(run_id, is_primary);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCheckpoint replaces the checkpoint stored under key.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, key string, cp *model.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (key, run_id, fingerprint, cursor, payload, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET run_id = excluded.run_id, fingerprint = excluded.fingerprint,
		 cursor = excluded.cursor, payload = excluded.payload, updated_at = excluded.updated_at`,
		key, cp.RunID, cp.Fingerprint, cp.Cursor, string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", key)
}

// LoadCheckpoint returns nil, nil when no checkpoint is stored under key.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s", key)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal checkpoint %s", key)
	}
	return &cp, nil
}

// DeleteCheckpoint removes key. Missing keys are not an error.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete checkpoint %s", key)
}

// SaveResolutions upserts audit rows in one transaction.
func (s *SQLiteStore) SaveResolutions(ctx context.Context, rows []Resolution) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin resolutions tx")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(resolutionColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entity_resolutions (`+strings.Join(resolutionColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare resolutions insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.values()...); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert resolution %s/%s", r.EntityID, r.Source)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit resolutions")
	}
	return n, nil
}

// ListResolutions returns a run's audit rows ordered by entity and source.
func (s *SQLiteStore) ListResolutions(ctx context.Context, runID string) ([]Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(resolutionColumns, ", ")+` FROM entity_resolutions WHERE run_id = ? ORDER BY entity_id, source`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list resolutions %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []Resolution
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate resolutions")
}
