package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
gateway:
  credentials_dir: "/tmp/creds"
  settle_delay: 2s
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Gateway.CredentialsDir != "/tmp/creds" {
		t.Errorf("Gateway.CredentialsDir = %q, want %q", cfg.Gateway.CredentialsDir, "/tmp/creds")
	}
	if cfg.Gateway.SettleDelay != 2*time.Second {
		t.Errorf("Gateway.SettleDelay = %v, want 2s", cfg.Gateway.SettleDelay)
	}
	// Unset fields keep their defaults.
	if cfg.Gateway.PairingDir != "./wa-bots/qr-codes" {
		t.Errorf("Gateway.PairingDir = %q, want default", cfg.Gateway.PairingDir)
	}
	if cfg.Cleanup.MaxAge != 3*time.Hour {
		t.Errorf("Cleanup.MaxAge = %v, want 3h", cfg.Cleanup.MaxAge)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing credentials dir",
			mutate:  func(c *Config) { c.Gateway.CredentialsDir = "" },
			wantErr: true,
		},
		{
			name:    "bad region",
			mutate:  func(c *Config) { c.Gateway.DefaultRegion = "IDN" },
			wantErr: true,
		},
		{
			name:    "negative settle delay",
			mutate:  func(c *Config) { c.Gateway.SettleDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "no download size limit",
			mutate:  func(c *Config) { c.Gateway.MaxDownloadSize = 0 },
			wantErr: true,
		},
		{
			name:    "cleanup without schedule",
			mutate:  func(c *Config) { c.Cleanup.Schedule = "" },
			wantErr: true,
		},
		{
			name: "cleanup disabled ignores schedule",
			mutate: func(c *Config) {
				c.Cleanup.Enabled = false
				c.Cleanup.Schedule = ""
			},
			wantErr: false,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "auth enabled without secret",
			mutate:  func(c *Config) { c.Security.Auth.Enabled = true },
			wantErr: true,
		},
		{
			name: "auth enabled with short secret",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: true,
		},
		{
			name: "auth enabled with valid secret",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.JWT.Secret = validJWTSecret
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WAGATEWAY_CREDENTIALS_DIR", "/env/creds")
	t.Setenv("WAGATEWAY_TEMP_DIR", "/env/tmp")
	t.Setenv("WAGATEWAY_DATABASE_PATH", "/env/db.sqlite")
	t.Setenv("WAGATEWAY_MQTT_HOST", "broker.local")
	t.Setenv("WAGATEWAY_JWT_SECRET", "env-secret")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Gateway.CredentialsDir != "/env/creds" {
		t.Errorf("Gateway.CredentialsDir = %q, want %q", cfg.Gateway.CredentialsDir, "/env/creds")
	}
	if cfg.Gateway.TempDir != "/env/tmp" {
		t.Errorf("Gateway.TempDir = %q, want %q", cfg.Gateway.TempDir, "/env/tmp")
	}
	if cfg.Database.Path != "/env/db.sqlite" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/db.sqlite")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Security.JWT.Secret != "env-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "env-secret")
	}
}

func TestGetTimeouts(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 10, Write: 20, Idle: 30}}}

	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 20*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 20s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 30*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
}
