package store

import "fmt"

// BackendConfig selects and configures a persistence backend, mirroring
// the teacher's store_factory switch-on-Backend construction.
type BackendConfig struct {
	Backend  string // "file" (default), "sqlite", "postgres"
	FilePath string
	SQLite   struct {
		Path string
	}
	Postgres PostgresConfig
}

// NewBackend constructs the configured Backend for the given owner
// ("controller" or an agent's addr).
func NewBackend(cfg BackendConfig, owner string) (Backend, error) {
	switch cfg.Backend {
	case "", "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file backend requires FilePath")
		}
		return NewFileBackend(cfg.FilePath), nil
	case "sqlite":
		return NewSQLiteBackend(cfg.SQLite.Path, owner)
	case "postgres":
		return NewPostgresBackend(cfg.Postgres, owner)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
