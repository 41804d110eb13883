// Package config loads rolemesh settings from an optional YAML file layered
// with ROLEMESH_-prefixed environment variables. Everything has a working
// default so zero-config embedding stays possible.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Bus       BusConfig       `koanf:"bus"`
	Role      RoleConfig      `koanf:"role"`
	Generator GeneratorConfig `koanf:"generator"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// BusConfig configures the message bus.
type BusConfig struct {
	QueueSize       int           `koanf:"queue_size"`
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
	// ArchivePath, when set, enables the SQLite history archive.
	ArchivePath string `koanf:"archive_path"`
}

// RoleConfig carries role execution defaults.
type RoleConfig struct {
	MaxRetries   int           `koanf:"max_retries"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
	PollInterval time.Duration `koanf:"poll_interval"`
	InboxSize    int           `koanf:"inbox_size"`
}

// GeneratorConfig selects and tunes the generation backend.
type GeneratorConfig struct {
	Provider string `koanf:"provider"` // openai, anthropic, mock
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// Load reads the config file at path (skipped when empty), then overlays
// environment variables (ROLEMESH_GENERATOR_PROVIDER -> generator.provider).
// Multi-word keys (queue_size and friends) are file-only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "json")
	k.Set("bus.queue_size", 1024)
	k.Set("bus.dispatch_timeout", "60s")
	k.Set("role.max_retries", 3)
	k.Set("role.retry_delay", "1s")
	k.Set("role.poll_interval", "50ms")
	k.Set("role.inbox_size", 64)
	k.Set("generator.provider", "mock")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (ROLEMESH_GENERATOR_PROVIDER -> generator.provider)
	if err := k.Load(env.Provider("ROLEMESH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ROLEMESH_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
