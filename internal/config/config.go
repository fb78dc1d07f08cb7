// Package config loads and persists the daemon's identity document: the
// small JSON file at the platform config path holding network ID, API
// key, display name, pull/push mode, and the ARP/scan tunables an
// operator may pin (spec §6 "Persisted daemon config"). It never holds
// anything the daemon has discovered — that lives in the entity buffer
// and, on the server, the history store.
//
// Config file locations (priority order):
//  1. $NETWALK_CONFIG
//  2. ./netwalk.json
//  3. $XDG_CONFIG_HOME/netwalk/config.json
//  4. ~/.config/netwalk/config.json
//  5. /etc/netwalk/config.json
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const defaultHeartbeatInterval = 30 * time.Second

// Load finds and loads the config file. Unlike the daemon's other
// inputs there is no sensible zero-value default for NetworkID/APIKey,
// so an absent file is an error rather than a silently-empty Config.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return nil, "", fmt.Errorf("no config file found (checked %s, ./%s, and platform config dirs)", EnvConfigPath, ConfigFileName)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path as indented JSON.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the invariants Load cannot repair by filling in a
// default: identity and credentials must be present.
func (c *Config) Validate() error {
	if c.NetworkID == uuid.Nil {
		return fmt.Errorf("config: network_id is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("config: api_key is required")
	}
	if c.Mode != ModePull && c.Mode != ModePush {
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModePull, ModePush, c.Mode)
	}
	if c.Mode == ModePush && c.Port == 0 {
		return fmt.Errorf("config: push mode requires a port")
	}
	return nil
}

// applyDefaults fills in missing values with defaults, leaving identity
// fields (NetworkID, APIKey) untouched since they have no safe default.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePull
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = Duration(defaultHeartbeatInterval)
	}
	if c.BindAddress == "" && c.Mode == ModePush {
		c.BindAddress = "0.0.0.0"
	}
}

