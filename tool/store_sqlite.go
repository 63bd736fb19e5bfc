package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (name, version)
);`

const defaultSQLiteStoreDB = "toolrun.db"

// SQLiteStore persists manifests in SQLite. Intended for daemon mode where
// multiple components share one registry.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default SQLite path for daemon storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultSQLiteStoreDB), nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed manifest store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("tool: sqlite store dsn is required")
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return nil, fmt.Errorf("tool: create sqlite store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetManifest implements Source. An empty version selects the highest
// registered version string.
func (s *SQLiteStore) GetManifest(ctx context.Context, name, version string) (Manifest, error) {
	query := `SELECT payload FROM manifests WHERE name = ? AND version = ?`
	args := []any{name, version}
	if version == "" {
		query = `SELECT payload FROM manifests WHERE name = ? ORDER BY version DESC LIMIT 1`
		args = []any{name}
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, manifestNotFound(name, version)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("tool: sqlite store get %q: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return Manifest{}, fmt.Errorf("tool: sqlite store decode %q: %w", name, err)
	}
	return m, nil
}

// List returns all manifests in name/version order.
func (s *SQLiteStore) List(ctx context.Context) ([]Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM manifests ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store list: %w", err)
	}
	defer rows.Close()

	var out []Manifest
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("tool: sqlite store scan: %w", err)
		}
		var m Manifest
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("tool: sqlite store decode: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Put validates and upserts a manifest by (name, version).
func (s *SQLiteStore) Put(ctx context.Context, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("tool: sqlite store encode %q: %w", m.Name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests (name, version, payload) VALUES (?, ?, ?)
		ON CONFLICT (name, version) DO UPDATE SET
			payload = excluded.payload,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		m.Name, m.Version, payload)
	if err != nil {
		return fmt.Errorf("tool: sqlite store put %q: %w", m.Name, err)
	}
	return nil
}

// Delete removes one manifest version, or every version when version is "".
func (s *SQLiteStore) Delete(ctx context.Context, name, version string) error {
	query := `DELETE FROM manifests WHERE name = ? AND version = ?`
	args := []any{name, version}
	if version == "" {
		query = `DELETE FROM manifests WHERE name = ?`
		args = []any{name}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("tool: sqlite store delete %q: %w", name, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
