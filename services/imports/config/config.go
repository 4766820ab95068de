// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads import manager settings.
//
// Sources, lowest precedence first:
//
//  1. The embedded default.yaml.
//  2. A user YAML file (explicit path or IMPORTMANAGER_CONFIG).
//  3. IMPORTMANAGER_* environment variables, optionally read from a .env file.
//
// The merged result is validated before it is returned.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/importmanager/services/imports/advisory"
	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/registry"
	"github.com/AleutianAI/importmanager/services/imports/session"
	"github.com/AleutianAI/importmanager/services/imports/synth"
)

// MaxConfigFileSize caps user config files (1MB).
const MaxConfigFileSize = 1024 * 1024

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMPORTMANAGER_"

//go:embed default.yaml
var defaultYAML []byte

var configValidate = validator.New()

// Config is the root configuration document.
type Config struct {
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Registry RegistryConfig `yaml:"registry"`
	Synth    SynthConfig    `yaml:"synth"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
}

// AnalyzerConfig configures source analysis.
type AnalyzerConfig struct {
	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0,lte=104857600"`
}

// RegistryConfig configures unit identity.
type RegistryConfig struct {
	HashLength int     `yaml:"hash_length" validate:"gte=4,lte=64"`
	IDBases    IDBases `yaml:"id_bases"`
}

// IDBases are the first id of each unit kind.
type IDBases struct {
	Module   int `yaml:"module" validate:"gte=0"`
	Dynamic  int `yaml:"dynamic" validate:"gte=0"`
	CommonJS int `yaml:"commonjs" validate:"gte=0"`
}

// SynthConfig configures statement synthesis.
type SynthConfig struct {
	Quote string `yaml:"quote" validate:"oneof=double single"`
}

// AdvisoryConfig configures warning deduplication.
type AdvisoryConfig struct {
	CacheSize int `yaml:"cache_size" validate:"gte=1,lte=1000000"`

	// Unbounded remembers every warning and ignores CacheSize.
	Unbounded bool `yaml:"unbounded"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" validate:"gt=0"`
}

// Default returns the embedded configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded default.yaml is invalid: %v", err))
	}
	return &cfg
}

// Parse overlays a YAML document on the defaults and validates the result.
// Environment overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the effective configuration.
//
// # Description
//
// Loads .env from the working directory if present, overlays the file at
// path (or $IMPORTMANAGER_CONFIG when path is empty) on the embedded
// defaults, then applies IMPORTMANAGER_* environment overrides.
//
// # Outputs
//
//   - *Config: Validated configuration.
//   - error: Non-nil if the file cannot be read, is too large, does not
//     parse, an override is malformed, or validation fails.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}

	cfg := Default()
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileSize)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return data, nil
}

// applyEnv applies IMPORTMANAGER_* overrides looked up through getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"HASH_LENGTH", &c.Registry.HashLength},
		{"MODULE_ID_BASE", &c.Registry.IDBases.Module},
		{"DYNAMIC_ID_BASE", &c.Registry.IDBases.Dynamic},
		{"COMMONJS_ID_BASE", &c.Registry.IDBases.CommonJS},
		{"ADVISORY_CACHE_SIZE", &c.Advisory.CacheSize},
	}
	for _, o := range ints {
		raw := strings.TrimSpace(getenv(EnvPrefix + o.key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, o.key, err)
		}
		*o.dst = v
	}

	if raw := strings.TrimSpace(getenv(EnvPrefix + "MAX_FILE_SIZE")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_FILE_SIZE: %w", EnvPrefix, err)
		}
		c.Analyzer.MaxFileSize = v
	}
	if raw := strings.TrimSpace(getenv(EnvPrefix + "LOG_JSON")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", EnvPrefix, err)
		}
		c.Logging.JSON = v
	}
	if raw := strings.TrimSpace(getenv(EnvPrefix + "ADVISORY_UNBOUNDED")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%sADVISORY_UNBOUNDED: %w", EnvPrefix, err)
		}
		c.Advisory.Unbounded = v
	}
	if raw := strings.TrimSpace(getenv(EnvPrefix + "LOG_LEVEL")); raw != "" {
		c.Logging.Level = strings.ToLower(raw)
	}
	if raw := strings.TrimSpace(getenv(EnvPrefix + "QUOTE")); raw != "" {
		c.Synth.Quote = strings.ToLower(raw)
	}
	if raw := strings.TrimSpace(getenv(EnvPrefix + "ADDR")); raw != "" {
		c.Server.Addr = raw
	}
	return nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// Component options
// =============================================================================

// AnalyzerOptions returns the analyzer options this config implies.
func (c *Config) AnalyzerOptions(logger *slog.Logger) []ast.AnalyzerOption {
	return []ast.AnalyzerOption{
		ast.WithMaxFileSize(c.Analyzer.MaxFileSize),
		ast.WithLogger(logger),
	}
}

// RegistryOptions returns the registry options this config implies.
func (c *Config) RegistryOptions() []registry.Option {
	return []registry.Option{
		registry.WithHashLength(c.Registry.HashLength),
		registry.WithIDBase(ast.KindModule, c.Registry.IDBases.Module),
		registry.WithIDBase(ast.KindDynamic, c.Registry.IDBases.Dynamic),
		registry.WithIDBase(ast.KindCommonJS, c.Registry.IDBases.CommonJS),
	}
}

// SynthOptions returns the synthesizer options this config implies.
func (c *Config) SynthOptions() []synth.Option {
	return []synth.Option{synth.WithQuote(c.QuoteChar())}
}

// NewAdvisor creates the process-wide advisor sized by this config.
func (c *Config) NewAdvisor(logger *slog.Logger) (*advisory.Advisor, error) {
	if c.Advisory.Unbounded {
		return advisory.NewUnbounded(advisory.WithLogger(logger)), nil
	}
	return advisory.New(c.Advisory.CacheSize, advisory.WithLogger(logger))
}

// SessionOptions returns everything session.Open needs from this config.
// adv is shared between sessions; logger may be nil.
func (c *Config) SessionOptions(adv *advisory.Advisor, logger *slog.Logger) []session.Option {
	if logger == nil {
		logger = slog.Default()
	}
	return []session.Option{
		session.WithLogger(logger),
		session.WithAnalyzer(ast.NewAnalyzer(c.AnalyzerOptions(logger)...)),
		session.WithRegistryOptions(c.RegistryOptions()...),
		session.WithSynthesizer(synth.New(c.SynthOptions()...)),
		session.WithAdvisor(adv),
	}
}

// QuoteChar maps the quote setting to its character.
func (c *Config) QuoteChar() string {
	if c.Synth.Quote == "single" {
		return "'"
	}
	return `"`
}
