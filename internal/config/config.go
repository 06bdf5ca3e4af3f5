// Package config loads relayz CLI settings from a YAML file and RELAYZ_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no path is given. It may be absent.
const DefaultPath = "relayz.yaml"

const envPrefix = "RELAYZ_"

// Config is the full relayz configuration.
type Config struct {
	Pipeline PipelineConfig `koanf:"pipeline"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// PipelineConfig describes the pipeline the run command builds.
type PipelineConfig struct {
	Name    string   `koanf:"name"`
	Method  string   `koanf:"method"`
	Payload string   `koanf:"payload"`
	Stages  []string `koanf:"stages"` // Stage identifiers, "name[:param1,param2]"
	Recover bool     `koanf:"recover"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `koanf:"level"`  // panic, fatal, error, warn, info, debug, trace
	Format string `koanf:"format"` // text or json
}

// MetricsConfig controls the Prometheus output of a run.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"` // Print Prometheus metrics after a run
}

var defaults = map[string]any{
	"pipeline.name":   "relayz",
	"pipeline.method": "handle",
	"log.level":       "info",
	"log.format":      "text",
}

// Load reads path, then applies environment overrides. An empty path reads
// DefaultPath if it exists. Environment keys drop the prefix, lowercase, and
// use a double underscore for nesting: RELAYZ_LOG__LEVEL sets log.level.
// RELAYZ_PIPELINE__STAGES is a whitespace separated list.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Pipeline.Method == "" {
		cfg.Pipeline.Method = "handle"
	}
	return &cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
	if key == "pipeline.stages" {
		return key, strings.Fields(value)
	}
	return key, value
}
