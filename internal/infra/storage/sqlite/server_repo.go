package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/storage"
)

// ServerRepo implements storage.ServerRepository using SQLite.
type ServerRepo struct {
	db *DB
}

// NewServerRepo creates a new SQLite server repository.
func NewServerRepo(db *DB) *ServerRepo {
	return &ServerRepo{db: db}
}

type serverRow struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	BaseURL         string       `db:"base_url"`
	Token           string       `db:"token"`
	Username        string       `db:"username"`
	IsDefault       bool         `db:"is_default"`
	IsEnabled       bool         `db:"is_enabled"`
	Priority        int          `db:"priority"`
	TimeoutSeconds  int          `db:"timeout_seconds"`
	AllowSelfSigned bool         `db:"allow_self_signed"`
	SyncEnabled     bool         `db:"sync_enabled"`
	Status          string       `db:"status"`
	LastStatusCheck sql.NullTime `db:"last_status_check"`
	LastConnected   sql.NullTime `db:"last_connected"`
	Version         string       `db:"version"`
}

func (r serverRow) toDomain() *domain.ServerConfig {
	s := &domain.ServerConfig{
		ID:              r.ID,
		Name:            r.Name,
		BaseURL:         r.BaseURL,
		Token:           r.Token,
		Username:        r.Username,
		IsDefault:       r.IsDefault,
		IsEnabled:       r.IsEnabled,
		Priority:        r.Priority,
		TimeoutSeconds:  r.TimeoutSeconds,
		AllowSelfSigned: r.AllowSelfSigned,
		SyncEnabled:     r.SyncEnabled,
		Status:          domain.ServerStatus(r.Status),
		Version:         r.Version,
	}
	if r.LastStatusCheck.Valid {
		s.LastStatusCheck = r.LastStatusCheck.Time
	}
	if r.LastConnected.Valid {
		s.LastConnected = r.LastConnected.Time
	}
	return s
}

func fromDomain(s *domain.ServerConfig) serverRow {
	return serverRow{
		ID:              s.ID,
		Name:            s.Name,
		BaseURL:         s.BaseURL,
		Token:           s.Token,
		Username:        s.Username,
		IsDefault:       s.IsDefault,
		IsEnabled:       s.IsEnabled,
		Priority:        s.Priority,
		TimeoutSeconds:  s.TimeoutSeconds,
		AllowSelfSigned: s.AllowSelfSigned,
		SyncEnabled:     s.SyncEnabled,
		Status:          string(s.Status),
		LastStatusCheck: nullTime(s.LastStatusCheck),
		LastConnected:   nullTime(s.LastConnected),
		Version:         s.Version,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const upsertQuery = `
INSERT INTO servers (
	id, name, base_url, token, username, is_default, is_enabled, priority,
	timeout_seconds, allow_self_signed, sync_enabled, status,
	last_status_check, last_connected, version
) VALUES (
	:id, :name, :base_url, :token, :username, :is_default, :is_enabled, :priority,
	:timeout_seconds, :allow_self_signed, :sync_enabled, :status,
	:last_status_check, :last_connected, :version
)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	base_url = excluded.base_url,
	token = excluded.token,
	username = excluded.username,
	is_default = excluded.is_default,
	is_enabled = excluded.is_enabled,
	priority = excluded.priority,
	timeout_seconds = excluded.timeout_seconds,
	allow_self_signed = excluded.allow_self_signed,
	sync_enabled = excluded.sync_enabled,
	status = excluded.status,
	last_status_check = excluded.last_status_check,
	last_connected = excluded.last_connected,
	version = excluded.version`

// Save inserts or updates a server configuration.
func (r *ServerRepo) Save(ctx context.Context, server *domain.ServerConfig) error {
	if _, err := r.db.NamedExecContext(ctx, upsertQuery, fromDomain(server)); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}
	return nil
}

// GetByID retrieves a server by id.
func (r *ServerRepo) GetByID(ctx context.Context, id string) (*domain.ServerConfig, error) {
	var row serverRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM servers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return row.toDomain(), nil
}

// Delete removes a server by id.
func (r *ServerRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrServerNotFound
	}
	return nil
}

// All returns every configured server.
func (r *ServerRepo) All(ctx context.Context) ([]*domain.ServerConfig, error) {
	var rows []serverRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM servers ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	out := make([]*domain.ServerConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// EnabledByPriority returns enabled servers ordered by descending priority.
func (r *ServerRepo) EnabledByPriority(ctx context.Context) ([]*domain.ServerConfig, error) {
	var rows []serverRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM servers WHERE is_enabled = 1 ORDER BY priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled servers: %w", err)
	}
	out := make([]*domain.ServerConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ClearDefault removes the default flag from every server.
func (r *ServerRepo) ClearDefault(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE servers SET is_default = 0`); err != nil {
		return fmt.Errorf("failed to clear default flag: %w", err)
	}
	return nil
}
