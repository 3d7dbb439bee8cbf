// Package config loads tracegen settings from defaults, an optional TOML
// file and TRACEGEN_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides, e.g. TRACEGEN_OUTPUT_DIR.
const EnvPrefix = "TRACEGEN_"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "tracegen.toml"

// Config holds every tracegen setting.
type Config struct {
	Generation struct {
		Mode         string   `koanf:"mode"`
		OrderedSlots []string `koanf:"ordered_slots"`
		Repository   string   `koanf:"repository"`
	} `koanf:"generation"`

	Output struct {
		Dir       string `koanf:"dir"`
		TracesDir string `koanf:"traces_dir"`
		Validate  bool   `koanf:"validate"`
		// Strict fails generated files that do not parse.
		Strict bool `koanf:"strict"`
	} `koanf:"output"`

	Guidance struct {
		Catalog string `koanf:"catalog"`
		Workers int    `koanf:"workers"`
	} `koanf:"guidance"`

	Archive struct {
		Path string `koanf:"path"`
	} `koanf:"archive"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"generation.mode":       "sync",
		"generation.repository": "default",
		"output.dir":            ".",
		"output.traces_dir":     "traces",
		"output.validate":       true,
		"output.strict":         false,
		"guidance.workers":      0,
		"log.level":             "info",
		"log.format":            "console",
	}
}

// envKey maps TRACEGEN_OUTPUT_TRACES_DIR to output.traces_dir: the first
// underscore separates the section, the rest belong to the key.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Load reads the configuration. An empty path falls back to DefaultFile when
// it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	// Environment values arrive as one comma-separated string.
	if s, ok := k.Get("generation.ordered_slots").(string); ok {
		cfg.Generation.OrderedSlots = splitList(s)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Generation.Mode {
	case "initial", "sync", "ordered":
	default:
		return fmt.Errorf("generation.mode must be initial, sync or ordered, got %q", c.Generation.Mode)
	}
	if c.Generation.Repository == "" {
		return fmt.Errorf("generation.repository is required")
	}
	if c.Guidance.Workers < 0 {
		return fmt.Errorf("guidance.workers must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
