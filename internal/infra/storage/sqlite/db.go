// Package sqlite implements the ServerRepository on an embedded SQLite
// database, the default persistent store for the connection layer.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Config holds SQLite connection configuration.
type Config struct {
	Path string `yaml:"path"`
}

// DB wraps the SQLite connection.
type DB struct {
	*sqlx.DB
}

// NewDB opens the database, applies pool settings and runs embedded
// migrations.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; keep the pool small.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &DB{DB: db}, nil
}

// Health checks if the database is reachable.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
