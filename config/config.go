// Package config loads service configuration from defaults, an optional YAML
// file and APIDOC_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variable names before mapping
	// APIDOC_OPENAPI_ROUTERPREFIX to openapi.routerprefix.
	EnvPrefix = "APIDOC_"
	// DefaultFile is read when present in the working directory.
	DefaultFile = "config.yaml"
)

// Load reads configuration with priority env > config.yaml > defaults.
func Load() (*Config, error) {
	return LoadFrom(DefaultFile, nil)
}

// LoadFrom reads configuration with priority overrides > env > path > defaults.
// A missing file at path is not an error.
func LoadFrom(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := k.Load(envprovider.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":    "apidoc-service",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,
		"app.debug":   false,

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.timeout.read":     "15s",
		"server.timeout.write":    "30s",
		"server.timeout.shutdown": "10s",
		"server.path.base":        "",

		"log.level":  "info",
		"log.pretty": false,

		"openapi.enable":           true,
		"openapi.routerprefix":     "/swagger-ui",
		"openapi.swaggeruiversion": "3.35.1",
		"openapi.typingspath":      "typings/api",
		"openapi.title":            "",
		"openapi.description":      "",
		"openapi.version":          "1.0.0",
	}
}
