package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGo)
)

// SQLiteBackend persists a single document (keyed by Owner, e.g. an
// agent's addr or the literal "controller") as a JSON blob in a SQLite
// database. Suitable for a single-host controller tracking many groups,
// or an agent that wants crash-safe WAL durability instead of plain file
// replace-on-write.
type SQLiteBackend struct {
	db    *sql.DB
	owner string
}

// NewSQLiteBackend opens (and migrates) a SQLite-backed document store.
// dbPath may be ":memory:" for tests.
func NewSQLiteBackend(dbPath, owner string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		owner TEXT PRIMARY KEY,
		data  TEXT NOT NULL DEFAULT '{}'
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLiteBackend{db: db, owner: owner}, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load returns the owner's document, or an empty map if no row exists yet.
func (b *SQLiteBackend) Load() (map[string]any, error) {
	var raw string
	err := b.db.QueryRow(`SELECT data FROM documents WHERE owner = ?`, b.owner).Scan(&raw)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document for %s: %w", b.owner, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse document for %s: %w", b.owner, err)
	}
	return data, nil
}

// Save upserts the owner's document as a JSON blob.
func (b *SQLiteBackend) Save(data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document for %s: %w", b.owner, err)
	}
	_, err = b.db.Exec(`
		INSERT INTO documents (owner, data) VALUES (?, ?)
		ON CONFLICT(owner) DO UPDATE SET data = excluded.data
	`, b.owner, string(raw))
	if err != nil {
		return fmt.Errorf("save document for %s: %w", b.owner, err)
	}
	return nil
}
