package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Export   ExportConfig      `yaml:"export"`
	Manifest ManifestConfig    `yaml:"manifest"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	); err != nil {
		return err
	}
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

// ExportConfig describes the export to read and where the cleaned tree goes.
type ExportConfig struct {
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	Workers     int      `yaml:"workers"`
	Skip        []string `yaml:"skip"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Source, validation.Required),
		validation.Field(&c.Destination, validation.Required),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(256)),
		validation.Field(&c.Skip, validation.Each(validation.By(validPattern))),
	); err != nil {
		return err
	}
	src, err := filepath.Abs(c.Source)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(c.Destination)
	if err != nil {
		return err
	}
	if src == dst {
		return errors.New("export: source and destination must differ")
	}
	// The watcher would see every write to a destination inside the source.
	if rel, err := filepath.Rel(src, dst); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("export: destination must not be inside source")
	}
	return nil
}

func validPattern(v interface{}) error {
	p, _ := v.(string)
	if _, err := path.Match(p, ""); err != nil {
		return fmt.Errorf("invalid pattern %q", p)
	}
	return nil
}

// ManifestConfig holds the SQLite manifest location. An empty path turns
// the manifest off.
type ManifestConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether runs are recorded.
func (c *ManifestConfig) Enabled() bool {
	return c.Path != ""
}

// Require validates the manifest configuration for commands that read it.
func (c *ManifestConfig) Require() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Export: ExportConfig{
			Workers: 4,
			Skip:    []string{".DS_Store", "*_all.csv"},
		},
		Manifest: ManifestConfig{
			Path: "./notionclean.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
