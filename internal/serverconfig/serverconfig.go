// Package serverconfig loads the Session Manager's own deployment
// config: listen address, history database path, daemon bearer token,
// and the terminal-session purge age. Unlike internal/config (the
// daemon's identity document, persisted as JSON because
// original_source's config.json/daemon_config-next.json fixtures
// dictate that format), this file has no source-of-truth format to
// match, so it follows the teacher's own go.mod (gopkg.in/yaml.v3) for
// a human-edited static deployment file instead.
package serverconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the Session Manager's deployment configuration.
type Config struct {
	Addr          string `yaml:"addr"`
	DBPath        string `yaml:"db_path"`
	APIKey        string `yaml:"api_key"`
	MaxSessionAge string `yaml:"max_session_age"`
}

// defaults mirror cmd/server's former flag defaults, applied to
// whatever the file leaves unset.
func defaults() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "./netwalk-history.db",
		MaxSessionAge: "24h",
	}
}

// Load reads and parses a YAML deployment config at path, applying
// defaults to any field the file leaves zero.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read server config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse server config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = defaults().Addr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaults().DBPath
	}
	if cfg.MaxSessionAge == "" {
		cfg.MaxSessionAge = defaults().MaxSessionAge
	}
	return cfg, nil
}

// SessionMaxAge parses MaxSessionAge as a time.Duration.
func (c Config) SessionMaxAge() (time.Duration, error) {
	d, err := time.ParseDuration(c.MaxSessionAge)
	if err != nil {
		return 0, fmt.Errorf("parse max_session_age %q: %w", c.MaxSessionAge, err)
	}
	return d, nil
}
