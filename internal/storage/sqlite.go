package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "dailybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// DB wraps the shared SQLite handle.
//
// SQLite prefers a single writer, so the pool is capped at one connection
// and every caller shares it. The handle must never be held across a
// notification-delivery network call.
type DB struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the database and applies migrations.
func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	d := &DB{db: db, log: log}
	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, string(b))
	return err
}

// SQL exposes the shared handle for domain stores.
func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
