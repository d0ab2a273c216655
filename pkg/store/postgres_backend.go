package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresConfig holds connection parameters for the Postgres-backed
// document store, used when several controller replicas need to share
// one group store.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"FLEETMQ_PG_HOST"`
	Port     int    `yaml:"port" env:"FLEETMQ_PG_PORT"`
	User     string `yaml:"user" env:"FLEETMQ_PG_USER"`
	Password string `yaml:"password" env:"FLEETMQ_PG_PASSWORD"`
	Database string `yaml:"database" env:"FLEETMQ_PG_DATABASE"`
	SSLMode  string `yaml:"ssl_mode" env:"FLEETMQ_PG_SSLMODE"`
}

// DSN returns a libpq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

// PostgresBackend persists a single owner's document as JSONB.
type PostgresBackend struct {
	db    *sql.DB
	owner string
}

// NewPostgresBackend opens (and migrates) a Postgres-backed document store.
func NewPostgresBackend(cfg PostgresConfig, owner string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		owner TEXT PRIMARY KEY,
		data  JSONB NOT NULL DEFAULT '{}'
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &PostgresBackend{db: db, owner: owner}, nil
}

// Close releases the underlying connection pool.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// Load returns the owner's document, or an empty map if no row exists yet.
func (b *PostgresBackend) Load() (map[string]any, error) {
	var raw []byte
	err := b.db.QueryRow(`SELECT data FROM documents WHERE owner = $1`, b.owner).Scan(&raw)
	if err == sql.ErrNoRows {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document for %s: %w", b.owner, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse document for %s: %w", b.owner, err)
	}
	return data, nil
}

// Save upserts the owner's document.
func (b *PostgresBackend) Save(data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document for %s: %w", b.owner, err)
	}
	_, err = b.db.Exec(`
		INSERT INTO documents (owner, data) VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET data = excluded.data
	`, b.owner, raw)
	if err != nil {
		return fmt.Errorf("save document for %s: %w", b.owner, err)
	}
	return nil
}
