package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Mailer.Port != 587 {
		t.Errorf("Mailer.Port = %d, want 587", cfg.Mailer.Port)
	}
	if cfg.Unsubscribe.BaseURL == "" {
		t.Error("Unsubscribe.BaseURL should have a default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "data/maillist.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listen_addr: ":9000"
database:
  path: /var/lib/maillist/maillist.db
mailer:
  host: smtp.example.com
  port: 465
  from: news@example.com
unsubscribe:
  base_url: https://example.com/lists/unsubscribe
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Mailer.Host != "smtp.example.com" {
		t.Errorf("Mailer.Host = %q, want smtp.example.com", cfg.Mailer.Host)
	}
	if cfg.Unsubscribe.BaseURL != "https://example.com/lists/unsubscribe" {
		t.Errorf("Unsubscribe.BaseURL = %q", cfg.Unsubscribe.BaseURL)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	// Unset fields keep defaults
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAIL_HOST", "smtp.env.example.com")
	t.Setenv("MAIL_USER", "sender")
	t.Setenv("MAILLIST_LISTEN_ADDR", ":7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mailer.Host != "smtp.env.example.com" {
		t.Errorf("Mailer.Host = %q, want env override", cfg.Mailer.Host)
	}
	if cfg.Mailer.Username != "sender" {
		t.Errorf("Mailer.Username = %q, want sender", cfg.Mailer.Username)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want :7070", cfg.Server.ListenAddr)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty mailer host", func(c *Config) { c.Mailer.Host = "" }},
		{"bad mailer port", func(c *Config) { c.Mailer.Port = 0 }},
		{"empty from", func(c *Config) { c.Mailer.From = "" }},
		{"empty base url", func(c *Config) { c.Unsubscribe.BaseURL = "" }},
		{"partial dkim", func(c *Config) { c.Mailer.DKIM.Domain = "example.com" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
