package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Annopedia configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP listener
	Server ServerConfig `yaml:"server"`

	// SQLite storage
	Database DatabaseConfig `yaml:"database"`

	// Authenticator chain
	Auth AuthConfig `yaml:"auth"`

	// Invitation e-mails
	Mail MailConfig `yaml:"mail"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxConnections  int    `yaml:"max_connections"`  // 0 = unlimited
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"` // multipart import limit
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `yaml:"path"`
}

// AuthConfig configures how requests are mapped to contributors.
type AuthConfig struct {
	// AllowAnonymous enables the remote-address fallback authenticator.
	AllowAnonymous bool   `yaml:"allow_anonymous"`
	AnonymousEmail string `yaml:"anonymous_email"`

	Identity IdentityConfig `yaml:"identity"`
}

// IdentityConfig configures bearer ID-token verification.
type IdentityConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
}

// MailConfig configures invitation e-mails.
type MailConfig struct {
	Enabled     bool   `yaml:"enabled"` // false = log e-mails instead of sending
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	FrontendURL string `yaml:"frontend_url"`
}

// ValidDrivers lists the registered database/sql driver names.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// DefaultConfig returns a config usable for local development.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Annopedia",
		Version: "1.0.0",

		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     "30s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "10s",
			MaxConnections:  256,
			MaxUploadBytes:  32 << 20,
		},

		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "data/annopedia.db",
		},

		Auth: AuthConfig{
			AllowAnonymous: true,
			AnonymousEmail: "anon@annopedia.local",
			Identity: IdentityConfig{
				Enabled:  false,
				Endpoint: "https://identitytoolkit.googleapis.com/v1/accounts:lookup",
				Timeout:  "10s",
			},
		},

		Mail: MailConfig{
			Enabled:     false,
			Port:        587,
			From:        "annopedia@localhost",
			FrontendURL: "http://localhost:3000",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file on top of the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("ANNOPEDIA_DB"); path != "" {
		c.Database.Path = path
	}
	if driver := os.Getenv("ANNOPEDIA_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if addr := os.Getenv("ANNOPEDIA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	// Setting an SMTP host implies sending mail
	if host := os.Getenv("ANNOPEDIA_SMTP_HOST"); host != "" {
		c.Mail.Host = host
		c.Mail.Enabled = true
	}
	if port := os.Getenv("ANNOPEDIA_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Mail.Port = p
		}
	}
	if user := os.Getenv("ANNOPEDIA_SMTP_USERNAME"); user != "" {
		c.Mail.Username = user
	}
	if pass := os.Getenv("ANNOPEDIA_SMTP_PASSWORD"); pass != "" {
		c.Mail.Password = pass
	}
	if url := os.Getenv("ANNOPEDIA_FRONTEND_URL"); url != "" {
		c.Mail.FrontendURL = url
	}

	// Setting an identity API key implies bearer verification
	if key := os.Getenv("ANNOPEDIA_IDENTITY_API_KEY"); key != "" {
		c.Auth.Identity.APIKey = key
		c.Auth.Identity.Enabled = true
	}

	if lvl := os.Getenv("ANNOPEDIA_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// Validate checks that the config can start a server.
func (c *Config) Validate() error {
	validDriver := false
	for _, d := range ValidDrivers {
		if c.Database.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid database driver: %s (valid: %v)", c.Database.Driver, ValidDrivers)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path not configured (set database.path or ANNOPEDIA_DB)")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address not configured (set server.addr or ANNOPEDIA_ADDR)")
	}
	if c.Mail.Enabled && c.Mail.Host == "" {
		return fmt.Errorf("mail enabled but SMTP host not configured (set mail.host or ANNOPEDIA_SMTP_HOST)")
	}
	if c.Auth.Identity.Enabled && (c.Auth.Identity.Endpoint == "" || c.Auth.Identity.APIKey == "") {
		return fmt.Errorf("identity verification enabled but endpoint or API key missing")
	}
	return nil
}

// GetReadTimeout returns the server read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the server write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 60*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetIdentityTimeout returns the identity verification request timeout.
func (c *Config) GetIdentityTimeout() time.Duration {
	return parseDuration(c.Auth.Identity.Timeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
