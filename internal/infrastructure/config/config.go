package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the WA Gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies this gateway instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GatewayConfig contains session lifecycle and storage settings.
type GatewayConfig struct {
	// CredentialsDir holds one sub-directory of auth material per tenant.
	CredentialsDir string `yaml:"credentials_dir"`

	// PairingDir holds one QR payload file per tenant.
	PairingDir string `yaml:"pairing_dir"`

	// TempDir holds staged uploads and downloaded media.
	TempDir string `yaml:"temp_dir"`

	// DefaultRegion is the ISO 3166 region used to parse phone numbers
	// written without an international prefix.
	DefaultRegion string `yaml:"default_region"`

	// SettleDelay is how long read paths wait after auto-initializing an
	// idle session before checking its state again.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// RestartDelay is the pause between tearing down and re-provisioning
	// a session on full restart.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// LogoutDelay is the pause after logout before temp files are purged.
	LogoutDelay time.Duration `yaml:"logout_delay"`

	// AnnounceDelay is how long after connect the current state is
	// re-announced to observers.
	AnnounceDelay time.Duration `yaml:"announce_delay"`

	// RecipientCacheTTL bounds how long a positive recipient-existence
	// lookup is trusted.
	RecipientCacheTTL time.Duration `yaml:"recipient_cache_ttl"`

	// RecipientCacheSize is the per-process LRU capacity for existence lookups.
	RecipientCacheSize int `yaml:"recipient_cache_size"`

	// MaxUploadSize is the maximum multipart upload size in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size"`

	// DownloadTimeout bounds a single remote media fetch.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// MaxDownloadSize is the largest remote attachment fetched, in bytes.
	MaxDownloadSize int64 `yaml:"max_download_size"`
}

// CleanupConfig contains temp-file purge settings.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression with a seconds field.
	// Default: "0 0 */3 * * *" (every three hours)
	Schedule string `yaml:"schedule"`

	// MaxAge is the age after which process-wide temp files are purged.
	MaxAge time.Duration `yaml:"max_age"`

	// TenantMaxAge is the age after which a tenant's temp files are purged
	// by the logout and explicit cleanup operations.
	TenantMaxAge time.Duration `yaml:"tenant_max_age"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
	JWT  JWTConfig  `yaml:"jwt"`
}

// AuthConfig toggles bearer-token authentication on the HTTP API.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the lifetime of issued API tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WAGATEWAY_SECTION_KEY
// For example: WAGATEWAY_DATABASE_PATH, WAGATEWAY_CREDENTIALS_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file.
// Tests and tooling use it as a base to tweak.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "wagw-001",
			Name: "WA Gateway",
		},
		Gateway: GatewayConfig{
			CredentialsDir:     "wa-auth-creds",
			PairingDir:         "./wa-bots/qr-codes",
			TempDir:            "./tmp",
			DefaultRegion:      "ID",
			SettleDelay:        5 * time.Second,
			RestartDelay:       3 * time.Second,
			LogoutDelay:        3 * time.Second,
			AnnounceDelay:      3 * time.Second,
			RecipientCacheTTL:  10 * time.Minute,
			RecipientCacheSize: 4096,
			MaxUploadSize:      16 << 20,
			DownloadTimeout:    60 * time.Second,
			MaxDownloadSize:    16 << 20,
		},
		Cleanup: CleanupConfig{
			Enabled:      true,
			Schedule:     "0 0 */3 * * *",
			MaxAge:       3 * time.Hour,
			TenantMaxAge: time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/wagateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "wagateway",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wagateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3934,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 60 * 24 * 30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WAGATEWAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway storage
	if v := os.Getenv("WAGATEWAY_CREDENTIALS_DIR"); v != "" {
		cfg.Gateway.CredentialsDir = v
	}
	if v := os.Getenv("WAGATEWAY_PAIRING_DIR"); v != "" {
		cfg.Gateway.PairingDir = v
	}
	if v := os.Getenv("WAGATEWAY_TEMP_DIR"); v != "" {
		cfg.Gateway.TempDir = v
	}

	// Database
	if v := os.Getenv("WAGATEWAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("WAGATEWAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WAGATEWAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WAGATEWAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("WAGATEWAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("WAGATEWAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("WAGATEWAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Gateway validation
	if c.Gateway.CredentialsDir == "" {
		errs = append(errs, "gateway.credentials_dir is required")
	}
	if c.Gateway.PairingDir == "" {
		errs = append(errs, "gateway.pairing_dir is required")
	}
	if c.Gateway.TempDir == "" {
		errs = append(errs, "gateway.temp_dir is required")
	}
	if len(c.Gateway.DefaultRegion) != 2 {
		errs = append(errs, "gateway.default_region must be a two-letter region code")
	}
	if c.Gateway.SettleDelay < 0 || c.Gateway.RestartDelay < 0 || c.Gateway.LogoutDelay < 0 {
		errs = append(errs, "gateway delays must not be negative")
	}
	if c.Gateway.MaxUploadSize <= 0 {
		errs = append(errs, "gateway.max_upload_size must be positive")
	}
	if c.Gateway.MaxDownloadSize <= 0 {
		errs = append(errs, "gateway.max_download_size must be positive")
	}

	// Cleanup validation
	if c.Cleanup.Enabled {
		if c.Cleanup.Schedule == "" {
			errs = append(errs, "cleanup.schedule is required when cleanup is enabled")
		}
		if c.Cleanup.MaxAge <= 0 {
			errs = append(errs, "cleanup.max_age must be positive")
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A gateway holding live messaging sessions must not accept forged tokens.
	const minJWTSecretLength = 32
	if c.Security.Auth.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when auth is enabled (set WAGATEWAY_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
