// Package config provides the project configuration for qmdls.
// This package is decoupled from CLI concerns and is used by the LSP and by
// CLI commands that need to know about embedded languages and servers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/qmdls/internal/languages"
)

// LanguageConfig overrides or adds an embedded language.
type LanguageConfig struct {
	// Aliases are extra info-string spellings besides the map key.
	Aliases []string `koanf:"aliases"`

	// Strategy is "content" or "tempfile".
	Strategy string `koanf:"strategy"`

	// Extension without the dot, e.g. "py".
	Extension string `koanf:"extension"`

	// Inject replaces line 0 of the virtual document. An empty string
	// clears a built-in inject.
	Inject *string `koanf:"inject"`

	Trigger []string `koanf:"trigger"`
}

// ServerConfig describes an embedded language server process.
type ServerConfig struct {
	// Command is the argv used to start the server over stdio.
	Command []string `koanf:"command"`

	// Env holds extra environment variables for the process.
	Env map[string]string `koanf:"env"`

	// InitializationOptions are sent verbatim in initialize.
	InitializationOptions map[string]any `koanf:"initialization_options"`
}

// Enabled reports whether the server has a command.
func (s ServerConfig) Enabled() bool {
	return len(s.Command) > 0 && s.Command[0] != ""
}

// VDocConfig configures virtual document materialization.
type VDocConfig struct {
	// TempDir is the root for temp-file backed documents.
	TempDir string `koanf:"temp_dir"`
}

// ProjectConfig holds the configuration read from qmdls.yaml.
type ProjectConfig struct {
	Languages      map[string]LanguageConfig `koanf:"languages"`
	Servers        map[string]ServerConfig   `koanf:"servers"`
	VDoc           VDocConfig                `koanf:"vdoc"`
	RequestTimeout time.Duration             `koanf:"request_timeout"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `koanf:"-"`
}

// Server returns the server configured for a language id.
func (c *ProjectConfig) Server(id string) (ServerConfig, bool) {
	if c == nil {
		return ServerConfig{}, false
	}
	s, ok := c.Servers[strings.ToLower(id)]
	if !ok || !s.Enabled() {
		return ServerConfig{}, false
	}
	return s, true
}

// Registry applies the language overrides to base.
func (c *ProjectConfig) Registry(base *languages.Registry) (*languages.Registry, error) {
	if c == nil || len(c.Languages) == 0 {
		return base, nil
	}

	overrides := make([]*languages.EmbeddedLanguage, 0, len(c.Languages))
	for _, id := range sortedKeys(c.Languages) {
		lang, err := c.Languages[id].resolve(id, base)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, lang)
	}

	reg, err := base.With(overrides...)
	if err != nil {
		return nil, fmt.Errorf("invalid languages config: %w", err)
	}
	return reg, nil
}

// resolve merges the override onto the built-in language with the same
// primary id, if any.
func (lc LanguageConfig) resolve(id string, base *languages.Registry) (*languages.EmbeddedLanguage, error) {
	id = strings.ToLower(id)
	lang := &languages.EmbeddedLanguage{IDs: []string{id}}

	if existing, ok := base.Lookup(id); ok && existing.ID() == id {
		lang.IDs = append([]string(nil), existing.IDs...)
		lang.Strategy = existing.Strategy
		lang.Inject = existing.Inject
		lang.Trigger = existing.Trigger
	}

	for _, alias := range lc.Aliases {
		alias = strings.ToLower(alias)
		if !lang.HasID(alias) {
			lang.IDs = append(lang.IDs, alias)
		}
	}

	ext := lc.Extension
	if ext == "" {
		ext = lang.Extension()
	}
	if ext == "" {
		ext = id
	}
	strategy := lc.Strategy
	if strategy == "" && lang.Strategy != nil {
		strategy = lang.Strategy.Name()
	}
	s, ok := languages.ParseStrategy(strategy, ext)
	if !ok {
		return nil, fmt.Errorf("language %q: unknown strategy %q (want %s or %s)",
			id, lc.Strategy, languages.StrategyContent, languages.StrategyTempFile)
	}
	lang.Strategy = s

	if lc.Inject != nil {
		lang.Inject = *lc.Inject
	}
	if lc.Trigger != nil {
		lang.Trigger = lc.Trigger
	}
	return lang, nil
}
