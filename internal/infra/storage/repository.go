// Package storage defines the persistence contract for server configurations.
package storage

import (
	"context"
	"errors"

	"github.com/vietddude/homelink/internal/core/domain"
)

var (
	// ErrServerNotFound is returned when a server id does not exist.
	ErrServerNotFound = errors.New("server not found")
)

// ServerRepository handles server configuration persistence. Writes are
// independent upserts with no optimistic concurrency control; callers
// tolerate the bounded staleness window this implies.
type ServerRepository interface {
	// Save inserts or updates a server configuration.
	Save(ctx context.Context, server *domain.ServerConfig) error

	// GetByID retrieves a server by id.
	GetByID(ctx context.Context, id string) (*domain.ServerConfig, error)

	// Delete removes a server by id.
	Delete(ctx context.Context, id string) error

	// All returns every configured server.
	All(ctx context.Context) ([]*domain.ServerConfig, error)

	// EnabledByPriority returns enabled servers ordered by descending priority.
	EnabledByPriority(ctx context.Context) ([]*domain.ServerConfig, error)

	// ClearDefault removes the default flag from every server.
	ClearDefault(ctx context.Context) error
}
