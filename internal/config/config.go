// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package config loads authview configuration. Sources are layered as
// defaults, then the YAML file, then command-line flags, then the
// AUTHVIEW_DATABASE_URL and AUTHVIEW_REDIS_URL environment secrets.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authview/authview/internal/logging"
	"github.com/authview/authview/internal/store"
	"github.com/authview/authview/internal/validation"
)

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `json:"format" yaml:"format" koanf:"format" jsonschema:"enum=text,enum=json,default=text"`
	Level  string `json:"level" yaml:"level" koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// StoreConfig selects and locates the document store.
type StoreConfig struct {
	Backend     string `json:"backend" yaml:"backend" koanf:"backend" jsonschema:"enum=memory,enum=postgres,enum=redis,default=memory"`
	DatabaseURL string `json:"database_url" yaml:"database_url" koanf:"database_url"`
	RedisURL    string `json:"redis_url" yaml:"redis_url" koanf:"redis_url"`
	KeyPrefix   string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`
}

// Options converts the section to store.Options.
func (s StoreConfig) Options() store.Options {
	return store.Options{
		Backend:     store.Backend(s.Backend),
		DatabaseURL: s.DatabaseURL,
		RedisURL:    s.RedisURL,
		KeyPrefix:   s.KeyPrefix,
	}
}

// ProviderConfig tunes the in-process identity provider.
type ProviderConfig struct {
	RecentLoginWindow time.Duration `json:"recent_login_window" yaml:"recent_login_window" koanf:"recent_login_window" jsonschema:"type=string,pattern=^([0-9]+(ns|us|ms|s|m|h))+$"`
	LockoutThreshold  int           `json:"lockout_threshold" yaml:"lockout_threshold" koanf:"lockout_threshold" jsonschema:"minimum=0"`
	LockoutDuration   time.Duration `json:"lockout_duration" yaml:"lockout_duration" koanf:"lockout_duration" jsonschema:"type=string,pattern=^([0-9]+(ns|us|ms|s|m|h))+$"`
}

// MetricsConfig controls the metrics and health endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" koanf:"addr"`
}

// Config is the full configuration.
type Config struct {
	Log      LogConfig                 `json:"log" yaml:"log" koanf:"log"`
	Password validation.PasswordPolicy `json:"password" yaml:"password" koanf:"password"`
	Store    StoreConfig               `json:"store" yaml:"store" koanf:"store"`
	Provider ProviderConfig            `json:"provider" yaml:"provider" koanf:"provider"`
	Metrics  MetricsConfig             `json:"metrics" yaml:"metrics" koanf:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Format: "text", Level: "info"},
		Password: validation.DefaultPasswordPolicy(),
		Store:    StoreConfig{Backend: string(store.BackendMemory), KeyPrefix: store.DefaultKeyPrefix},
		Provider: ProviderConfig{
			RecentLoginWindow: 5 * time.Minute,
			LockoutThreshold:  7,
			LockoutDuration:   15 * time.Minute,
		},
	}
}

func invalid(field string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format", "log format must be text or json, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if err := c.Password.Validate(); err != nil {
		return invalid("password.min_length", "%v", err)
	}
	switch store.Backend(c.Store.Backend) {
	case store.BackendMemory:
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "postgres backend requires a database URL")
		}
	case store.BackendRedis:
		if c.Store.RedisURL == "" {
			return invalid("store.redis_url", "redis backend requires a redis URL")
		}
	default:
		return invalid("store.backend", "unknown store backend %q", c.Store.Backend)
	}
	if c.Provider.RecentLoginWindow <= 0 {
		return invalid("provider.recent_login_window", "recent login window must be positive")
	}
	if c.Provider.LockoutThreshold < 0 {
		return invalid("provider.lockout_threshold", "lockout threshold cannot be negative")
	}
	if c.Provider.LockoutThreshold > 0 && c.Provider.LockoutDuration <= 0 {
		return invalid("provider.lockout_duration", "lockout duration must be positive when lockout is enabled")
	}
	return nil
}

// flagKeys maps command-line flag names onto config keys. Flags not listed
// are not configuration.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store":        "store.backend",
	"database-url": "store.database_url",
	"redis-url":    "store.redis_url",
	"metrics-addr": "metrics.addr",
}

// secrets are read from the environment last so they never need to live in
// the config file.
type secrets struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "AUTHVIEW_"

// LoadOptions says where configuration comes from.
type LoadOptions struct {
	// Path is the YAML file. Empty means no file.
	Path string
	// Optional tolerates a missing file at Path.
	Optional bool
	// Flags are applied over the file when set.
	Flags *pflag.FlagSet
}

// Load builds a validated Config.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && opts.Optional:
		case err != nil:
			return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", opts.Path).Wrap(err)
		default:
			if err := ValidateDocument(data); err != nil {
				return Config{}, oops.Code("CONFIG_INVALID").With("path", opts.Path).Errorf("%v", err)
			}
			if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
				return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", opts.Path).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	var s secrets
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	if s.DatabaseURL != "" {
		cfg.Store.DatabaseURL = s.DatabaseURL
	}
	if s.RedisURL != "" {
		cfg.Store.RedisURL = s.RedisURL
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
