package config

import (
	"errors"
	"net"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP address the inspector serves on.
	Listen string `toml:"listen" yaml:"listen"`

	// LogLevel is a zap level name: debug, info, warn or error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// LogFormat is "console" or "json".
	LogFormat string `toml:"log_format" yaml:"log_format"`

	// ConsoleCapacity bounds the buffered console messages.
	ConsoleCapacity int `toml:"console_capacity" yaml:"console_capacity"`

	// SettingsDB is the SQLite file holding persisted inspector settings.
	// Empty keeps settings in memory only.
	SettingsDB string `toml:"settings_db" yaml:"settings_db"`

	// PageGroup names the settings group of the inspected page.
	PageGroup string `toml:"page_group" yaml:"page_group"`

	// DeveloperExtras turns instrumentation on.
	DeveloperExtras bool `toml:"developer_extras" yaml:"developer_extras"`

	// AllowedOrigins lists websocket origin patterns accepted besides the
	// serving host.
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:          "127.0.0.1:9222",
		LogLevel:        "info",
		LogFormat:       FormatConsole,
		ConsoleCapacity: 1000,
		PageGroup:       "default",
		DeveloperExtras: true,
	}
}

// Level returns the parsed log level.
func (c Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Validate checks every field and returns all failures joined.
func (c Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, &ValidationError{Field: "listen", Message: "must be host:port", Value: c.Listen})
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, &ValidationError{Field: "log_level", Message: "unknown level", Value: c.LogLevel})
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, &ValidationError{Field: "log_format", Message: "must be console or json", Value: c.LogFormat})
	}
	if c.ConsoleCapacity <= 0 {
		errs = append(errs, &ValidationError{Field: "console_capacity", Message: "must be positive", Value: c.ConsoleCapacity})
	}
	if strings.TrimSpace(c.PageGroup) == "" {
		errs = append(errs, &ValidationError{Field: "page_group", Message: "must not be empty", Value: c.PageGroup})
	}
	return errors.Join(errs...)
}
