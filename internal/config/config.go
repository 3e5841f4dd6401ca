// Package config loads the explorer configuration: YAML file first, then
// ALBUMINOME_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"albuminome/internal/blob"
	"albuminome/internal/loader"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Data     loader.Config  `yaml:"data"`
	Blob     blob.Config    `yaml:"blob"`
	Exports  ExportConfig   `yaml:"exports"`
	Sessions SessionConfig  `yaml:"sessions"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Explorer ExplorerConfig `yaml:"explorer"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// ExportConfig configures the asynchronous export worker.
type ExportConfig struct {
	Workers int    `yaml:"workers"`
	Queue   int    `yaml:"queue"`
	Prefix  string `yaml:"prefix"`
	// URLExpiry bounds presigned artifact URLs.
	URLExpiry time.Duration `yaml:"url_expiry"`
}

// SessionConfig sizes the session cache.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is prometheus, expvar or none.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ExplorerConfig holds pipeline options.
type ExplorerConfig struct {
	PluginName string `yaml:"plugin_name"`
	// TraceFile receives JSON trace spans when set.
	TraceFile string `yaml:"trace_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Encoding: "json"},
		Data: loader.Config{
			Kind:           loader.KindBlob,
			IndexKey:       loader.DefaultIndexKey,
			MatrixKey:      loader.DefaultMatrixKey,
			IndexEncoding:  loader.EncodingMacRoman,
			MatrixEncoding: loader.EncodingUTF8,
		},
		Blob:     blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./data"},
		Exports:  ExportConfig{Workers: 2, Queue: 32, Prefix: "exports", URLExpiry: 15 * time.Minute},
		Sessions: SessionConfig{MaxSessions: 1024, TTL: 30 * time.Minute},
		Metrics:  MetricsConfig{Backend: "prometheus", Path: "/metrics"},
	}
}

// Load reads path (optional) over the defaults and applies environment
// overrides from getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("ALBUMINOME_ADDR", &c.Server.Addr)
	setString("ALBUMINOME_LOG_LEVEL", &c.Logging.Level)
	setString("ALBUMINOME_LOG_ENCODING", &c.Logging.Encoding)
	setString("ALBUMINOME_DATA_KIND", &c.Data.Kind)
	setString("ALBUMINOME_DATA_INDEX_KEY", &c.Data.IndexKey)
	setString("ALBUMINOME_DATA_MATRIX_KEY", &c.Data.MatrixKey)
	setString("ALBUMINOME_DATA_INDEX_ENCODING", &c.Data.IndexEncoding)
	setString("ALBUMINOME_SQL_DRIVER", &c.Data.SQL.Driver)
	setString("ALBUMINOME_SQL_DSN", &c.Data.SQL.DSN)
	setString("ALBUMINOME_METRICS_BACKEND", &c.Metrics.Backend)
	setString("ALBUMINOME_TRACE_FILE", &c.Explorer.TraceFile)
	c.Blob = c.Blob.ApplyEnv(getenv)

	var errs []error
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setInt("ALBUMINOME_EXPORT_WORKERS", &c.Exports.Workers)
	setInt("ALBUMINOME_SESSION_MAX", &c.Sessions.MaxSessions)
	setDuration("ALBUMINOME_SESSION_TTL", &c.Sessions.TTL)
	setDuration("ALBUMINOME_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	setDuration("ALBUMINOME_EXPORT_URL_EXPIRY", &c.Exports.URLExpiry)
	return errors.Join(errs...)
}

// Validate rejects settings that cannot start the explorer.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Metrics.Backend) {
	case "prometheus", "expvar", "none", "":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend: unknown backend %q", c.Metrics.Backend))
	}
	switch c.Data.Kind {
	case loader.KindBlob, "":
	case loader.KindSQL:
		if c.Data.SQL.DSN == "" {
			errs = append(errs, errors.New("data.sql.dsn: required for sql sources"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.kind: unknown kind %q", c.Data.Kind))
	}
	if c.Exports.Workers < 1 {
		errs = append(errs, errors.New("exports.workers: must be at least 1"))
	}
	if c.Exports.URLExpiry < 0 {
		errs = append(errs, errors.New("exports.url_expiry: must not be negative"))
	}
	if c.Sessions.TTL < 0 {
		errs = append(errs, errors.New("sessions.ttl: must not be negative"))
	}
	return errors.Join(errs...)
}
