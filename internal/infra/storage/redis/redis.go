// Package redis implements the ServerRepository on Redis, for deployments
// where several sidecar instances share one configuration store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/storage"
)

const serversKey = "homelink:servers"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// ServerRepo stores server configurations as JSON values in a Redis hash.
type ServerRepo struct {
	rdb *redis.Client
}

// NewServerRepo connects to Redis and verifies the connection.
func NewServerRepo(cfg Config) (*ServerRepo, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ServerRepo{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (r *ServerRepo) Close() error {
	return r.rdb.Close()
}

func (r *ServerRepo) Save(ctx context.Context, server *domain.ServerConfig) error {
	data, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("failed to marshal server: %w", err)
	}
	if err := r.rdb.HSet(ctx, serversKey, server.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}
	return nil
}

func (r *ServerRepo) GetByID(ctx context.Context, id string) (*domain.ServerConfig, error) {
	data, err := r.rdb.HGet(ctx, serversKey, id).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	var s domain.ServerConfig
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server: %w", err)
	}
	return &s, nil
}

func (r *ServerRepo) Delete(ctx context.Context, id string) error {
	n, err := r.rdb.HDel(ctx, serversKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	if n == 0 {
		return storage.ErrServerNotFound
	}
	return nil
}

func (r *ServerRepo) All(ctx context.Context) ([]*domain.ServerConfig, error) {
	values, err := r.rdb.HGetAll(ctx, serversKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	out := make([]*domain.ServerConfig, 0, len(values))
	for _, data := range values {
		var s domain.ServerConfig
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal server: %w", err)
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ServerRepo) EnabledByPriority(ctx context.Context) ([]*domain.ServerConfig, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.ServerConfig
	for _, s := range all {
		if s.IsEnabled {
			out = append(out, s)
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
	all, err := r.All(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.IsDefault {
			s.IsDefault = false
			if err := r.Save(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}
