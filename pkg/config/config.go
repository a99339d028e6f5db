// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load reads a YAML file into target after expanding environment variables.
// Values already set on target are kept unless the file overrides them.
func Load[T any](filename string, target *T) error {
	return load(filename, target, false)
}

// LoadOptional is Load for a file that may not exist; a missing file leaves
// target untouched apart from validation.
func LoadOptional[T any](filename string, target *T) error {
	return load(filename, target, true)
}

func load[T any](filename string, target *T, optional bool) error {
	data, err := os.ReadFile(filename)
	switch {
	case optional && errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	default:
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), target); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// ExpandEnv replaces $VAR and ${VAR} like os.ExpandEnv and also understands
// ${VAR:-fallback}, which yields fallback when VAR is unset or empty.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
}
