// Package config loads the engine configuration from YAML and derives the
// settings passed explicitly to the engine.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/notify"
)

// Config is the whole configuration file.
type Config struct {
	Database  DatabaseConfig    `yaml:"database"`
	Engine    EngineConfig      `yaml:"engine"`
	Mail      MailConfig        `yaml:"mail"`
	Log       LogConfig         `yaml:"log"`
	Access    AccessConfig      `yaml:"access"`
	Addresses map[string]string `yaml:"directory"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes document engine behavior.
type EngineConfig struct {
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	EmailTimeout      time.Duration `yaml:"email_timeout"`
	HookFailureLimit  int           `yaml:"hook_failure_limit"`
	StrictFinalStates bool          `yaml:"strict_final_states"`
	// VersionRetention keeps at most this many versions per document after
	// each write; 0 keeps all.
	VersionRetention int `yaml:"version_retention"`
}

// MailConfig holds outbound message settings.
type MailConfig struct {
	From    string `yaml:"from"`
	SiteURL string `yaml:"site_url"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// AccessConfig lists the roles holding each permission. An empty section
// grants everything to everyone.
type AccessConfig struct {
	Default  map[access.Permission][]string            `yaml:"default"`
	Doctypes map[string]map[access.Permission][]string `yaml:"doctypes"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "doctype.db"},
		Engine: EngineConfig{
			WebhookTimeout:   notify.DefaultWebhookTimeout,
			EmailTimeout:     notify.DefaultEmailTimeout,
			HookFailureLimit: 10,
		},
		Mail: MailConfig{From: "noreply@example.com", SiteURL: "http://localhost"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads path over the defaults and validates the result. An
// empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, errors.New("database.path is required"))
	}
	if c.Engine.WebhookTimeout <= 0 {
		problems = append(problems, errors.New("engine.webhook_timeout must be positive"))
	}
	if c.Engine.EmailTimeout <= 0 {
		problems = append(problems, errors.New("engine.email_timeout must be positive"))
	}
	if c.Engine.HookFailureLimit < 1 {
		problems = append(problems, errors.New("engine.hook_failure_limit must be at least 1"))
	}
	if c.Engine.VersionRetention < 0 {
		problems = append(problems, errors.New("engine.version_retention cannot be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for p := range c.Access.Default {
		if !knownPermission(p) {
			problems = append(problems, fmt.Errorf("access.default: unknown permission %q", p))
		}
	}
	for dt, rules := range c.Access.Doctypes {
		for p := range rules {
			if !knownPermission(p) {
				problems = append(problems, fmt.Errorf("access.doctypes.%s: unknown permission %q", dt, p))
			}
		}
	}
	return errors.Join(problems...)
}

// Settings is the system settings record handed to the engine.
type Settings struct {
	WebhookTimeout    time.Duration
	EmailTimeout      time.Duration
	HookFailureLimit  int
	StrictFinalStates bool
	VersionRetention  int
	MailFrom          string
	SiteURL           string
}

// Settings derives the engine settings.
func (c *Config) Settings() Settings {
	return Settings{
		WebhookTimeout:    c.Engine.WebhookTimeout,
		EmailTimeout:      c.Engine.EmailTimeout,
		HookFailureLimit:  c.Engine.HookFailureLimit,
		StrictFinalStates: c.Engine.StrictFinalStates,
		VersionRetention:  c.Engine.VersionRetention,
		MailFrom:          c.Mail.From,
		SiteURL:           c.Mail.SiteURL,
	}
}

// DefaultSettings are the settings of Default().
func DefaultSettings() Settings {
	return Default().Settings()
}

// Authorizer builds the permission checker. No access rules means every
// actor may do everything.
func (c *Config) Authorizer() access.Authorizer {
	if len(c.Access.Default) == 0 && len(c.Access.Doctypes) == 0 {
		return access.AllowAll{}
	}
	auth := access.RoleAuthorizer{
		Default:  access.Rules(c.Access.Default),
		Doctypes: make(map[string]access.Rules, len(c.Access.Doctypes)),
	}
	for dt, rules := range c.Access.Doctypes {
		auth.Doctypes[dt] = access.Rules(rules)
	}
	return auth
}

// Directory builds the actor address book.
func (c *Config) Directory() access.Directory {
	return access.StaticDirectory(c.Addresses)
}

// NewLogger creates the slog logger described by c, writing to w. verbose
// forces debug level.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil || verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func knownPermission(p access.Permission) bool {
	for _, known := range access.Permissions {
		if p == known {
			return true
		}
	}
	return false
}
