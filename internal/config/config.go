package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Mailer      MailerConfig      `yaml:"mailer"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"` // Default: :8080
	UploadDir  string `yaml:"upload_dir"`  // Staging dir for CSV uploads
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MailerConfig contains SMTP smarthost settings
type MailerConfig struct {
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Username string     `yaml:"username"`
	Password string     `yaml:"password"`
	From     string     `yaml:"from"`
	StartTLS bool       `yaml:"starttls"`
	DKIM     DKIMConfig `yaml:"dkim"`
}

// DKIMConfig contains optional DKIM signing settings. Signing is enabled
// when all three fields are set.
type DKIMConfig struct {
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// UnsubscribeConfig contains unsubscribe link settings
type UnsubscribeConfig struct {
	// BaseURL is the public prefix of the unsubscribe endpoint; the
	// subscriber token is appended as a path segment.
	BaseURL string `yaml:"base_url"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Default: /metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			UploadDir:  os.TempDir(),
		},
		Database: DatabaseConfig{
			Path: "data/maillist.db",
		},
		Mailer: MailerConfig{
			Host: "localhost",
			Port: 587,
			From: "maillist@localhost",
		},
		Unsubscribe: UnsubscribeConfig{
			BaseURL: "http://localhost:8080/lists/unsubscribe",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides and validates the result. A missing file is not an error;
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	// Local .env files are a convenience for development setups
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides settings from environment variables. The MAIL_*
// names match what SMTP providers usually hand out in their docs.
func (c *Config) applyEnv() {
	if v := os.Getenv("MAILLIST_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("MAILLIST_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MAILLIST_UNSUBSCRIBE_BASE_URL"); v != "" {
		c.Unsubscribe.BaseURL = v
	}
	if v := os.Getenv("MAIL_HOST"); v != "" {
		c.Mailer.Host = v
	}
	if v := os.Getenv("MAIL_USER"); v != "" {
		c.Mailer.Username = v
	}
	if v := os.Getenv("MAIL_PASS"); v != "" {
		c.Mailer.Password = v
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Mailer.From = v
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Mailer.Host == "" {
		return fmt.Errorf("mailer.host is required")
	}
	if c.Mailer.Port <= 0 || c.Mailer.Port > 65535 {
		return fmt.Errorf("mailer.port must be between 1 and 65535")
	}
	if c.Mailer.From == "" {
		return fmt.Errorf("mailer.from is required")
	}
	if c.Unsubscribe.BaseURL == "" {
		return fmt.Errorf("unsubscribe.base_url is required")
	}

	dkim := c.Mailer.DKIM
	if dkim.Domain != "" || dkim.Selector != "" || dkim.KeyFile != "" {
		if dkim.Domain == "" || dkim.Selector == "" || dkim.KeyFile == "" {
			return fmt.Errorf("mailer.dkim requires domain, selector and key_file together")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}
