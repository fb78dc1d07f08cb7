package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"pull", ModePull},
		{"push", ModePush},
		{"invalid", ModePull}, // default
		{"", ModePull},        // default
	}

	for _, tt := range tests {
		if got := ParseMode(tt.input); got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestValidateRequiresIdentity(t *testing.T) {
	cfg := &Config{Mode: ModePull}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without NetworkID")
	}

	cfg.NetworkID = uuid.New()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without APIKey")
	}

	cfg.APIKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidatePushRequiresPort(t *testing.T) {
	cfg := &Config{
		NetworkID: uuid.New(),
		APIKey:    "secret",
		Mode:      ModePush,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for push mode without a port")
	}

	cfg.Port = 8443
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{NetworkID: uuid.New(), APIKey: "secret"}
	cfg.applyDefaults()

	if cfg.Mode != ModePull {
		t.Errorf("Mode = %s, want %s", cfg.Mode, ModePull)
	}
	if cfg.HeartbeatInterval.Duration() != defaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %s, want %s", cfg.HeartbeatInterval.Duration(), defaultHeartbeatInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netwalk.json")

	retries := 3
	original := &Config{
		NetworkID:         uuid.New(),
		APIKey:            "secret-token",
		Name:              "rack-3-daemon",
		Mode:              ModePull,
		HeartbeatInterval: Duration(45_000_000_000), // 45s
		Arp:               ArpTuning{Retries: &retries},
	}

	if err := original.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, loadedPath, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loadedPath != path {
		t.Errorf("loaded path = %s, want %s", loadedPath, path)
	}
	if loaded.NetworkID != original.NetworkID {
		t.Errorf("NetworkID = %s, want %s", loaded.NetworkID, original.NetworkID)
	}
	if loaded.APIKey != original.APIKey {
		t.Errorf("APIKey = %s, want %s", loaded.APIKey, original.APIKey)
	}
	if loaded.Arp.Retries == nil || *loaded.Arp.Retries != retries {
		t.Errorf("Arp.Retries = %v, want %d", loaded.Arp.Retries, retries)
	}
}

func TestLoadFromPathRejectsMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netwalk.json")
	if err := os.WriteFile(path, []byte(`{"mode": "push"}`), 0600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	if _, _, err := LoadFromPath(path); err == nil {
		t.Error("LoadFromPath() should reject config missing network_id/api_key")
	}
}
