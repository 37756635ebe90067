package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "qmdls.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "qmdls.yml"

// LoadFromDir loads a ProjectConfig from the given directory.
// It looks for qmdls.yaml or qmdls.yml in the directory.
// Returns nil, nil if no config file is found (not an error condition).
func LoadFromDir(dir string) (*ProjectConfig, error) {
	configPath := findConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads a ProjectConfig from a specific file.
func LoadFile(path string) (*ProjectConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				splitFieldsHook,
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	cfg.Path = path
	return &cfg, nil
}

// splitFieldsHook lets a list of words be written as one string, so
// `command: pyright-langserver --stdio` means the two-element argv.
func splitFieldsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	return strings.Fields(data.(string)), nil
}

// LoadOrDefault is LoadFromDir with the defaults standing in for a missing
// file.
func LoadOrDefault(dir string) (*ProjectConfig, error) {
	if dir == "" {
		return Default(), nil
	}
	cfg, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// IsConfigFile reports whether path names a project config file.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == ConfigFileName || base == ConfigFileNameAlt
}

// FindProjectRoot walks up from the given directory to find a directory
// containing qmdls.yaml or qmdls.yml.
// Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}

func lower(s string) string {
	return strings.ToLower(s)
}
