package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "MATCHBENCH_"
	envConfig  = "MATCHBENCH_CONFIG"
	tagName    = "koanf"
	keyDelim   = "."
	extTOML    = ".toml"
	extYAML    = ".yaml"
	extYAMLAlt = ".yml"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML or TOML, by extension) if MATCHBENCH_CONFIG is set
//  3. env (prefix MATCHBENCH_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(keyDelim)

	if path := os.Getenv(envConfig); path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map MATCHBENCH_MAX_PARALLEL -> max_parallel (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.ProviderWithValue(envPrefix, keyDelim, func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		// Lists of plain strings are comma separated in the environment.
		if key == "maps" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Configured lists replace the defaults instead of merging index by index.
	if k.Exists("maps") {
		cfg.Maps = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: tagName}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extTOML:
		return TOMLParser(), nil
	case extYAML, extYAMLAlt, "":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file type %q", ErrLoadConfig, filepath.Ext(path))
	}
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
