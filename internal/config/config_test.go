package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "Annopedia" {
		t.Errorf("expected Name=Annopedia, got %s", cfg.Name)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected Driver=sqlite3, got %s", cfg.Database.Driver)
	}
	if !cfg.Auth.AllowAnonymous {
		t.Errorf("expected anonymous fallback enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ANNOPEDIA_DB", "")
	t.Setenv("ANNOPEDIA_ADDR", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:9999"
	cfg.Database.Path = "/tmp/x.db"
	cfg.Logging.Categories = map[string]bool{"store": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("expected Addr=127.0.0.1:9999, got %s", loaded.Server.Addr)
	}
	if loaded.Database.Path != "/tmp/x.db" {
		t.Errorf("expected Path=/tmp/x.db, got %s", loaded.Database.Path)
	}
	if loaded.Logging.IsCategoryEnabled("store") {
		t.Errorf("expected store category disabled")
	}
	if !loaded.Logging.IsCategoryEnabled("api") {
		t.Errorf("expected unlisted category enabled")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: sqlite\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Database.Path != "data/annopedia.db" {
		t.Errorf("expected default path kept, got %s", cfg.Database.Path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"empty path", func(c *Config) { c.Database.Path = "" }, false},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, false},
		{"mail without host", func(c *Config) { c.Mail.Enabled = true }, false},
		{"identity without key", func(c *Config) { c.Auth.Identity.Enabled = true }, false},
		{"identity with key", func(c *Config) {
			c.Auth.Identity.Enabled = true
			c.Auth.Identity.APIKey = "k"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ReadTimeout = "nonsense"
	cfg.Server.WriteTimeout = "-5s"
	cfg.Server.ShutdownTimeout = "3s"

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("expected fallback 30s, got %v", got)
	}
	if got := cfg.GetWriteTimeout(); got != 60*time.Second {
		t.Errorf("expected fallback 60s, got %v", got)
	}
	if got := cfg.GetShutdownTimeout(); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c }, nil)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %s", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
}

func TestContainerTemplate(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "config.yaml.tmpl"))
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		"ANNOPEDIA_ADDR":            ":8000",
		"ANNOPEDIA_DB":              "/app/data/annopedia.db",
		"ANNOPEDIA_LOG_LEVEL":       "warn",
		"ANNOPEDIA_ALLOW_ANONYMOUS": "false",
		"ANNOPEDIA_SMTP_PORT":       "2525",
		"ANNOPEDIA_MAIL_FROM":       "noreply@example.org",
		"ANNOPEDIA_FRONTEND_URL":    "https://annopedia.example.org",
	}
	rendered := os.Expand(string(raw), func(key string) string { return env[key] })

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(rendered), cfg); err != nil {
		t.Fatalf("rendered template is not valid YAML: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("rendered template should validate: %v", err)
	}
	if cfg.Auth.AllowAnonymous {
		t.Errorf("expected anonymous access disabled")
	}
	if cfg.Mail.Port != 2525 || cfg.Mail.FrontendURL != "https://annopedia.example.org" {
		t.Errorf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
}
