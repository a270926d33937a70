// Package config loads the exporter configuration from YAML.
//
// This file is part of go-msg-export (https://github.com/mooijtech/go-msg-export)
// Copyright (C) 2022 Marten Mooij (https://www.mooijtech.com/)
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Config holds the exporter configuration.
type Config struct {
	Export  ExportConfig  `koanf:"export"`
	Decode  DecodeConfig  `koanf:"decode"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ExportConfig holds the export settings.
type ExportConfig struct {
	OutputDirectory string `koanf:"output_directory"`
	Strategy        string `koanf:"strategy"`
	PlaintextOnly   bool   `koanf:"plaintext_only"`
	Workers         int    `koanf:"workers"` // Input files decoded at once
}

// DecodeConfig holds the decoder settings.
type DecodeConfig struct {
	MaxDepth        int `koanf:"max_depth"`        // Embedded message nesting limit
	DefaultCodepage int `koanf:"default_codepage"` // For ANSI strings without a declared code page
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// MetricsConfig holds the metrics settings.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"` // node exporter textfile, empty disables
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{
			OutputDirectory: "data",
			Strategy:        "eml",
			Workers:         4,
		},
		Decode: DecodeConfig{
			MaxDepth:        32,
			DefaultCodepage: 1252,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, eris.Wrapf(err, "failed to load config file %s", path)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, eris.Wrapf(err, "failed to unmarshal config file %s", path)
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Export.OutputDirectory == "" {
		return eris.New("export.output_directory is required")
	}

	if c.Export.Strategy == "" {
		return eris.New("export.strategy is required")
	}

	if c.Export.Workers < 1 {
		return eris.Errorf("export.workers must be at least 1, got %d", c.Export.Workers)
	}

	if c.Decode.MaxDepth < 1 {
		return eris.Errorf("decode.max_depth must be at least 1, got %d", c.Decode.MaxDepth)
	}

	if c.Decode.DefaultCodepage < 0 {
		return eris.Errorf("decode.default_codepage must not be negative, got %d", c.Decode.DefaultCodepage)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return eris.Wrap(err, "logging.level")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return eris.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
