package config

import (
	"github.com/vietddude/homelink/internal/conn"
	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/netmon"
	redisstore "github.com/vietddude/homelink/internal/infra/storage/redis"
	"github.com/vietddude/homelink/internal/infra/storage/sqlite"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig          `yaml:"server"`
	Storage StorageConfig         `yaml:"storage"`
	Logging LoggingConfig         `yaml:"logging"`
	Network netmon.PollingConfig  `yaml:"network"`
	Conn    conn.Config           `yaml:"connection"`
	Cache   CacheConfig           `yaml:"cache"`
	Seeds   []domain.ServerConfig `yaml:"servers"`
}

// ServerConfig holds the local observability endpoint settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig selects the configuration-store backend.
type StorageConfig struct {
	Backend string            `yaml:"backend"` // memory, sqlite, redis
	SQLite  sqlite.Config     `yaml:"sqlite"`
	Redis   redisstore.Config `yaml:"redis"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CacheConfig selects the cache strategy profile.
type CacheConfig struct {
	Strategy string `yaml:"strategy"` // aggressive, balanced, fresh, offline_first
}
