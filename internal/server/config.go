package server

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/Zereker/storekit/pkg/genkit"
	"github.com/Zereker/storekit/pkg/log"
	"github.com/Zereker/storekit/pkg/metrics"
	"github.com/Zereker/storekit/pkg/mq"
	"github.com/Zereker/storekit/pkg/storage"
)

// Config holds all configuration values
type Config struct {
	Server  ServerConfig   `toml:"server"`
	Log     log.Config     `toml:"log"`
	Models  genkit.Config  `toml:"genkit"`
	Storage storage.Config `toml:"storage"`
	Kafka   mq.KafkaConfig `toml:"kafka"`
	Metrics metrics.Config `toml:"metrics"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Mode string `toml:"mode"` // http, mcp, or both
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// PersistOnShutdown writes the simple backends to storage.persist_dir on exit.
	PersistOnShutdown bool `toml:"persist_on_shutdown"`
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Mode == "" {
		s.Mode = "http" // default mode
	}
	switch s.Mode {
	case "http", "mcp", "both":
		// valid
	default:
		return fmt.Errorf("invalid mode: %s, must be http, mcp, or both", s.Mode)
	}
	if s.Mode != "mcp" && (s.Port <= 0 || s.Port > 65535) {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	return nil
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("genkit: %w", err)
	}

	// the embedder fixes the vector dimension unless configured explicitly
	if dim := c.Models.Dim(); dim > 0 {
		if c.Storage.Vector.Dimension == 0 {
			c.Storage.Vector.Dimension = dim
		} else if c.Storage.Vector.Dimension != dim {
			return fmt.Errorf("storage: vector dimension %d does not match embedder dimension %d", c.Storage.Vector.Dimension, dim)
		}
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Server.PersistOnShutdown && c.Storage.PersistDir == "" {
		return fmt.Errorf("server: persist_on_shutdown requires storage.persist_dir")
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return nil
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
