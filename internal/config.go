package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/munin/internal/vecindex"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Watch    WatchConfig       `yaml:"watch"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Vector   VectorConfig      `yaml:"vector"`
	Defaults DefaultsConfig    `yaml:"defaults"`
	Repair   IntervalConfig    `yaml:"repair"`
	Audit    IntervalConfig    `yaml:"audit"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if err := c.Defaults.Validate(); err != nil {
		return err
	}
	if err := c.Repair.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WatchConfig configures the filesystem reconciler. An empty Path
// disables watching entirely.
type WatchConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DebounceMS int    `yaml:"debounce_ms"`
	Workers    int    `yaml:"workers"`
}

// Enabled reports whether a watch root is configured.
func (c *WatchConfig) Enabled() bool {
	return c.Path != ""
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Collection, validation.Required),
		validation.Field(&c.DebounceMS, validation.Min(0)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// SQLiteConfig holds the metadata store database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// VectorConfig holds the vector index and embedding configuration. An
// empty Path selects an in-memory index (embeddings are rebuilt from
// the metadata store on restart by the consistency audit).
type VectorConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// Validate validates the vector configuration.
func (c *VectorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(vecindex.ProviderOllama, vecindex.ProviderOpenAI)),
	)
}

// DefaultsConfig holds the per-dialect default collection names.
type DefaultsConfig struct {
	StrictCollection     string `yaml:"strict_collection"`
	PermissiveCollection string `yaml:"permissive_collection"`
}

// Validate validates the defaults configuration.
func (c *DefaultsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StrictCollection, validation.Required),
		validation.Field(&c.PermissiveCollection, validation.Required),
	)
}

// IntervalConfig holds a periodic background loop interval.
type IntervalConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Duration returns the interval as a time.Duration.
func (c *IntervalConfig) Duration() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate validates the interval configuration.
func (c *IntervalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IntervalSeconds, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Watch: WatchConfig{
			Collection: "filesystem",
			DebounceMS: 200,
			Workers:    4,
		},
		SQLite: SQLiteConfig{
			Path: "./munin.db",
		},
		Vector: VectorConfig{
			Path:     "./munin.vec",
			Compress: true,
			Provider: vecindex.ProviderOllama,
			Model:    "nomic-embed-text",
		},
		Defaults: DefaultsConfig{
			StrictCollection:     "mind_default",
			PermissiveCollection: "default",
		},
		Repair: IntervalConfig{IntervalSeconds: 30},
		Audit:  IntervalConfig{IntervalSeconds: 300},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
