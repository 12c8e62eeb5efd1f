// Package memory provides an in-memory ServerRepository, used for tests and
// for embedding the layer without a persistent store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/storage"
)

// ServerRepo is a mutex-guarded map-backed repository.
type ServerRepo struct {
	mu      sync.RWMutex
	servers map[string]*domain.ServerConfig
}

// NewServerRepo creates an empty in-memory repository.
func NewServerRepo() *ServerRepo {
	return &ServerRepo{servers: make(map[string]*domain.ServerConfig)}
}

func (r *ServerRepo) Save(ctx context.Context, server *domain.ServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[server.ID] = server.Clone()
	return nil
}

func (r *ServerRepo) GetByID(ctx context.Context, id string) (*domain.ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	if !ok {
		return nil, storage.ErrServerNotFound
	}
	return s.Clone(), nil
}

func (r *ServerRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[id]; !ok {
		return storage.ErrServerNotFound
	}
	delete(r.servers, id)
	return nil
}

func (r *ServerRepo) All(ctx context.Context) ([]*domain.ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ServerConfig, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ServerRepo) EnabledByPriority(ctx context.Context) ([]*domain.ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ServerConfig
	for _, s := range r.servers {
		if s.IsEnabled {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *ServerRepo) ClearDefault(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		s.IsDefault = false
	}
	return nil
}
