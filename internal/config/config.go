// Package config loads CLI settings from .selda.yaml, .env files and
// SELDA_* environment variables.
//
// Precedence, highest first: process environment, .env.local, .env,
// the config file, defaults. The config file is searched in the working
// directory, $HOME and $HOME/.config/selda unless a path is given.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jchia/selda/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. SELDA_DSN.
const EnvPrefix = "SELDA"

// Config keys.
const (
	KeyDriver        = "driver"
	KeyDSN           = "dsn"
	KeyCacheCapacity = "cache_capacity"
	KeyMaxOpenConns  = "max_open_conns"
	KeyBusyTimeoutMS = "busy_timeout_ms"
	KeyLogLevel      = "log_level"
)

// Config holds the resolved settings.
type Config struct {
	Driver        string
	DSN           string
	CacheCapacity int
	MaxOpenConns  int
	BusyTimeout   time.Duration
	LogLevel      slog.Level

	// File is the config file that was read, empty when none was found.
	File string
}

// StoreOptions returns the backend options the config selects.
func (c *Config) StoreOptions() store.Options {
	return store.Options{BusyTimeout: c.BusyTimeout, MaxOpenConns: c.MaxOpenConns}
}

// Loader reads configuration. The zero value is not usable; use
// NewLoader.
type Loader struct {
	fs   afero.Fs
	home string
	file string
	dir  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs reads config and .env files from fs instead of the OS.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) { l.fs = fs }
}

// WithHomeDir overrides the home directory used for the search path.
func WithHomeDir(dir string) Option {
	return func(l *Loader) { l.home = dir }
}

// WithConfigFile reads exactly this file. It must exist.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.file = path }
}

// WithDir sets the working directory searched for .selda.yaml and .env.
func WithDir(dir string) Option {
	return func(l *Loader) { l.dir = dir }
}

// NewLoader creates a loader over the OS filesystem.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{fs: afero.NewOsFs(), dir: "."}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is NewLoader().Load().
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetFs(l.fs)

	v.SetDefault(KeyDriver, store.DriverSQLite)
	v.SetDefault(KeyDSN, "selda.db")
	v.SetDefault(KeyCacheCapacity, 0)
	v.SetDefault(KeyMaxOpenConns, 0)
	v.SetDefault(KeyBusyTimeoutMS, store.DefaultBusyTimeout.Milliseconds())
	v.SetDefault(KeyLogLevel, "warn")

	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.file, err)
		}
	} else {
		home := l.home
		if home == "" {
			var err error
			if home, err = homedir.Dir(); err != nil {
				return nil, fmt.Errorf("find home directory: %w", err)
			}
		}
		v.SetConfigName(".selda")
		v.SetConfigType("yaml")
		v.AddConfigPath(l.dir)
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "selda"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := l.applyDotenv(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Driver:        strings.ToLower(v.GetString(KeyDriver)),
		DSN:           v.GetString(KeyDSN),
		CacheCapacity: v.GetInt(KeyCacheCapacity),
		MaxOpenConns:  v.GetInt(KeyMaxOpenConns),
		BusyTimeout:   time.Duration(v.GetInt64(KeyBusyTimeoutMS)) * time.Millisecond,
		File:          v.ConfigFileUsed(),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDotenv loads .env then .env.local. Their SELDA_* entries override
// the config file but never a variable already set in the process
// environment. Empty variables count as unset. DATABASE_URL stands in
// for SELDA_DSN when that is unset.
func (l *Loader) applyDotenv(v *viper.Viper) error {
	values := make(map[string]string)
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(l.dir, name)
		if _, err := l.fs.Stat(path); err != nil {
			continue
		}
		f, err := l.fs.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		parsed, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for k, val := range parsed {
			values[k] = val
		}
	}

	prefix := EnvPrefix + "_"
	for k, val := range values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if os.Getenv(k) != "" {
			continue
		}
		v.Set(strings.ToLower(strings.TrimPrefix(k, prefix)), val)
	}

	if os.Getenv(prefix+"DSN") != "" || values[prefix+"DSN"] != "" {
		return nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set(KeyDSN, url)
	} else if url := values["DATABASE_URL"]; url != "" {
		v.Set(KeyDSN, url)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("%s: unknown driver %q (want %s or %s)", KeyDriver, c.Driver, store.DriverSQLite, store.DriverPostgres)
	}
	if c.DSN == "" {
		return fmt.Errorf("%s: must not be empty", KeyDSN)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%s: must not be negative, got %d", KeyCacheCapacity, c.CacheCapacity)
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("%s: must not be negative, got %d", KeyMaxOpenConns, c.MaxOpenConns)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("%s: must not be negative", KeyBusyTimeoutMS)
	}
	return nil
}
