package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/harrisonrobin/lamp/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	source      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	remote_id   TEXT NOT NULL,
	revision    TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	fields      TEXT NOT NULL,
	updated     TEXT NOT NULL,
	PRIMARY KEY (source, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_remote ON snapshots(source, remote_id);
CREATE TABLE IF NOT EXISTS cursors (
	source TEXT PRIMARY KEY,
	cursor TEXT NOT NULL
);
`

// SQLiteStore keeps snapshots in a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{conn: conn, path: path}, nil
}

const selectSnapshot = `SELECT entity_id, kind, remote_id, revision, fingerprint, fields, updated FROM snapshots`

func scanSnapshot(row interface{ Scan(...any) error }) (Snapshot, error) {
	var snap Snapshot
	var id, kind, fields, updated string
	if err := row.Scan(&id, &kind, &snap.RemoteID, &snap.Revision, &snap.Fingerprint, &fields, &updated); err != nil {
		return Snapshot{}, err
	}
	snap.EntityID = model.ID(id)
	snap.Kind = model.Kind(kind)
	if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
		return Snapshot{}, fmt.Errorf("invalid field hashes for %s: %w", id, err)
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid update time for %s: %w", id, err)
	}
	snap.Updated = t
	return snap, nil
}

func (s *SQLiteStore) Get(ctx context.Context, source string, id model.ID) (Snapshot, bool, error) {
	row := s.conn.QueryRowContext(ctx, selectSnapshot+` WHERE source = ? AND entity_id = ?`, source, string(id))
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, source string) ([]Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx, selectSnapshot+` WHERE source = ? ORDER BY entity_id`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Cursor(ctx context.Context, source string) (string, error) {
	var cursor string
	err := s.conn.QueryRowContext(ctx, `SELECT cursor FROM cursors WHERE source = ?`, source).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, err
}

// Apply runs the batch in one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, source string, b Batch) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range b.Delete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE source = ? AND entity_id = ?`, source, string(id)); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
		}
	}
	for _, snap := range b.Put {
		fields, err := json.Marshal(snap.Fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (source, entity_id, kind, remote_id, revision, fingerprint, fields, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source, entity_id) DO UPDATE SET
				kind = excluded.kind,
				remote_id = excluded.remote_id,
				revision = excluded.revision,
				fingerprint = excluded.fingerprint,
				fields = excluded.fields,
				updated = excluded.updated`,
			source, string(snap.EntityID), string(snap.Kind), snap.RemoteID, snap.Revision,
			snap.Fingerprint, string(fields), snap.Updated.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to store snapshot %s: %w", snap.EntityID, err)
		}
	}
	if b.Cursor != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cursors (source, cursor) VALUES (?, ?)
			ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor`, source, *b.Cursor)
		if err != nil {
			return fmt.Errorf("failed to store cursor: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
