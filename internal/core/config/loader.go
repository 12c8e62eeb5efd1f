package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "homelink.db"
	}
	if cfg.Cache.Strategy == "" {
		cfg.Cache.Strategy = "balanced"
	}
	for i := range cfg.Seeds {
		if cfg.Seeds[i].TimeoutSeconds == 0 {
			cfg.Seeds[i].TimeoutSeconds = 30
		}
	}
}
