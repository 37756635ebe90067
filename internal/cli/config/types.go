// Package config provides configuration management for the qmdls CLI.
//
// Project settings (languages, servers) live in internal/config. This
// package covers the CLI-level knobs: logging, output format and the temp
// directory override.
package config

import "log/slog"

// Config holds all CLI configuration options.
type Config struct {
	LogLevel     string `koanf:"log_level"`
	OutputFormat string `koanf:"output"`
	Verbose      bool   `koanf:"verbose"`

	// TempDir overrides vdoc.temp_dir from the project config.
	TempDir string `koanf:"temp_dir"`

	// ProjectRoot is the directory the config was resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultLogLevel = "info"
	DefaultOutput   = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Level returns the slog level for LogLevel. Verbose forces debug.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
