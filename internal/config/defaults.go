package config

import (
	"sort"
	"time"
)

// DefaultRequestTimeout bounds a single request to an embedded server.
const DefaultRequestTimeout = 10 * time.Second

// DefaultServers are the embedded language servers used when the project
// does not configure one.
func DefaultServers() map[string]ServerConfig {
	return map[string]ServerConfig{
		"python":     {Command: []string{"pyright-langserver", "--stdio"}},
		"r":          {Command: []string{"R", "--slave", "-e", "languageserver::run()"}},
		"julia":      {Command: []string{"julia", "--startup-file=no", "-e", "using LanguageServer; runserver()"}},
		"bash":       {Command: []string{"bash-language-server", "start"}},
		"javascript": {Command: []string{"typescript-language-server", "--stdio"}},
		"typescript": {Command: []string{"typescript-language-server", "--stdio"}},
		"latex":      {Command: []string{"texlab"}},
		"yaml":       {Command: []string{"yaml-language-server", "--stdio"}},
		"go":         {Command: []string{"gopls"}},
		"rust":       {Command: []string{"rust-analyzer"}},
		"lua":        {Command: []string{"lua-language-server"}},
	}
}

// Default returns the configuration used when there is no qmdls.yaml.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset values. Configured servers are merged over the
// defaults; a server with an empty command disables the default.
func (c *ProjectConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	servers := DefaultServers()
	for id, s := range c.Servers {
		servers[lower(id)] = s
	}
	c.Servers = servers

	if len(c.Languages) > 0 {
		langs := make(map[string]LanguageConfig, len(c.Languages))
		for id, l := range c.Languages {
			langs[lower(id)] = l
		}
		c.Languages = langs
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
