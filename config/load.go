package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Environment variable conventions.
const (
	// EnvPrefix starts every recognized environment variable.
	EnvPrefix = "SEARCHCACHE_"

	// ConfigPathEnvVar names the YAML file when Load is given no path.
	ConfigPathEnvVar = EnvPrefix + "CONFIG"

	envNestingSeparator = "__"
)

// ErrLoad wraps failures reading a configuration source.
var ErrLoad = errors.New("config: load failed")

// Load builds the configuration from defaults, the YAML file at path (or
// SEARCHCACHE_CONFIG when path is empty) and the environment, then
// validates it. A missing file named explicitly is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("%w: defaults: %w", ErrLoad, err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("%w: file %s: %w", ErrLoad, path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("%w: environment: %w", ErrLoad, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %w", ErrLoad, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps SEARCHCACHE_EXTERNAL__MAX_ENTRIES to external.max_entries.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, envNestingSeparator, ".")
}
