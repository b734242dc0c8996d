// Package config provides configuration management for the catalog fetch service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// Database SSL modes. Use disable only for local development.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Preference store backends.
const (
	PreferencesBackendMemory   = "memory"
	PreferencesBackendPostgres = "postgres"
)

// Bounds for the GVK page size.
const (
	MinGVKMaxRecords = 1
	MaxGVKMaxRecords = 500
)

// Config is the complete service configuration. Every key can be set through
// a CATALOG_ environment variable, e.g. CATALOG_FETCHERS_GVK_MAX_RECORDS.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Fetchers    FetchersConfig    `mapstructure:"fetchers"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Unlinked    UnlinkedConfig    `mapstructure:"unlinked"`
	Importers   ImportersConfig   `mapstructure:"importers"`
}

// ServerConfig configures the HTTP API and metrics listeners.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL preference store. It is only
// read when the preferences backend is postgres.
type DatabaseConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	// Password should come from CATALOG_DATABASE_PASSWORD, not a file.
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// Pool settings.
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationPath is the migrations directory, relative to the working directory.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations when the server starts.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig mirrors observability.LoggingConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig configures the event publisher. Events are dropped when
// Enabled is false.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// FetchersConfig holds configuration for all catalog fetchers.
type FetchersConfig struct {
	// GVK contains GBV union catalogue settings.
	GVK GVKConfig `mapstructure:"gvk"`
}

// GVKConfig holds configuration for the GVK SRU fetcher.
type GVKConfig struct {
	// Enabled controls whether the fetcher is registered.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the SRU endpoint without query string.
	BaseURL string `mapstructure:"base_url"`
	// MaxRecords is the page size sent as maximumRecords.
	MaxRecords int `mapstructure:"max_records"`
	// SortKeys is sent as the SRU sortKeys parameter.
	SortKeys string `mapstructure:"sort_keys"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the rate limiter burst.
	BurstSize int `mapstructure:"burst_size"`
	// MaxRetries is the number of retries on 429 and 5xx.
	MaxRetries int `mapstructure:"max_retries"`
	// MaxBodySize caps the response size in bytes.
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// PreferencesConfig holds preference store settings.
type PreferencesConfig struct {
	// Backend is memory or postgres.
	Backend string `mapstructure:"backend"`
}

// UnlinkedConfig holds unlinked files scanner settings.
type UnlinkedConfig struct {
	// DefaultPatterns is used when a scan request gives no filter.
	DefaultPatterns []string `mapstructure:"default_patterns"`
	// AllowedRoots bounds the directories that may be scanned and the files
	// that may be imported.
	AllowedRoots []string `mapstructure:"allowed_roots"`
	MaxDepth     int      `mapstructure:"max_depth"`
}

// ImportersConfig configures custom importer plugins.
type ImportersConfig struct {
	// PluginDir is the only directory plugin files are opened from.
	PluginDir string `mapstructure:"plugin_dir"`
}

// DSN returns a postgres:// URL for the pool.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// UsesPostgres reports whether the preference store is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.EqualFold(c.Preferences.Backend, PreferencesBackendPostgres)
}

// Load reads defaults, then config.yaml if present, then CATALOG_ environment
// variables, and validates the result.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/catalog-fetch-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

var defaults = map[string]map[string]any{
	"server": {
		"host":             "0.0.0.0",
		"http_port":        8080,
		"metrics_port":     9091,
		"read_timeout":     "30s",
		"write_timeout":    "60s",
		"shutdown_timeout": "30s",
	},
	"database": {
		"host":     "localhost",
		"port":     5432,
		"user":     "catalog",
		"password": "",
		"name":     "catalog_fetch_service",
		// CATALOG_DATABASE_SSL_MODE=disable for local development.
		"ssl_mode":            SSLModeRequire,
		"max_conns":           10,
		"min_conns":           1,
		"max_conn_lifetime":   "1h",
		"max_conn_idle_time":  "30m",
		"health_check_period": "30s",
		"connect_timeout":     "10s",
		"migration_path":      "migrations",
		"migration_auto_run":  false,
	},
	"logging": {
		"level":       "info",
		"format":      "json",
		"output":      "stdout",
		"add_source":  false,
		"time_format": time.RFC3339,
	},
	"metrics": {
		"enabled":   true,
		"path":      "/metrics",
		"namespace": "catalog_fetch",
	},
	"kafka": {
		"enabled":       false,
		"brokers":       []string{"localhost:9092"},
		"topic":         "events.catalog_fetch_service",
		"batch_size":    100,
		"batch_timeout": "10ms",
	},
	// GBV asks clients to stay at a few requests per second.
	"fetchers.gvk": {
		"enabled":       true,
		"base_url":      "https://sru.gbv.de/gvk",
		"max_records":   50,
		"sort_keys":     "Year,,1",
		"timeout":       "30s",
		"rate_limit":    2.0,
		"burst_size":    2,
		"max_retries":   3,
		"max_body_size": 10 << 20,
	},
	"preferences": {
		"backend": PreferencesBackendMemory,
	},
	"unlinked": {
		"default_patterns": []string{"*.pdf", "*.bib", "*.ps", "*.djvu"},
		"allowed_roots":    []string{"./library"},
		"max_depth":        32,
	},
	"importers": {
		"plugin_dir": "./plugins",
	},
}

func setDefaults(v *viper.Viper) {
	for section, keys := range defaults {
		for key, value := range keys {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// Validate checks every section and reports all problems found.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateServer(),
		c.validateLogging(),
		c.validatePreferences(),
		c.validateKafka(),
		c.validateGVK(),
		c.validateFileAccess(),
	)
}

func (c *Config) validateServer() error {
	var errs []error
	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, fmt.Errorf("server: http_port %d out of range", c.Server.HTTPPort))
	}
	if !validPort(c.Server.MetricsPort) {
		errs = append(errs, fmt.Errorf("server: metrics_port %d out of range", c.Server.MetricsPort))
	}
	if c.Metrics.Enabled && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, fmt.Errorf("server: metrics_port must differ from http_port (%d)", c.Server.HTTPPort))
	}
	return errors.Join(errs...)
}

func (c *Config) validateLogging() error {
	if !observability.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePreferences() error {
	switch strings.ToLower(c.Preferences.Backend) {
	case PreferencesBackendMemory:
		return nil
	case PreferencesBackendPostgres:
	default:
		return fmt.Errorf("preferences: unknown backend %q", c.Preferences.Backend)
	}

	db := c.Database
	var errs []error
	if db.Host == "" {
		errs = append(errs, errors.New("database: host is required"))
	}
	if !validPort(db.Port) {
		errs = append(errs, fmt.Errorf("database: port %d out of range", db.Port))
	}
	if db.Name == "" {
		errs = append(errs, errors.New("database: name is required"))
	}
	if db.MaxConns < db.MinConns {
		errs = append(errs, fmt.Errorf("database: max_conns %d is below min_conns %d", db.MaxConns, db.MinConns))
	}
	return errors.Join(errs...)
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: brokers are required when enabled"))
	}
	if c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka: topic is required when enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateGVK() error {
	gvk := c.Fetchers.GVK
	if !gvk.Enabled {
		return nil
	}
	var errs []error
	if gvk.MaxRecords < MinGVKMaxRecords || gvk.MaxRecords > MaxGVKMaxRecords {
		errs = append(errs, fmt.Errorf("fetchers.gvk: max_records must be in [%d, %d], got %d",
			MinGVKMaxRecords, MaxGVKMaxRecords, gvk.MaxRecords))
	}
	if u, err := url.Parse(gvk.BaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("fetchers.gvk: base_url %q is not an absolute URL", gvk.BaseURL))
	}
	if gvk.RateLimit <= 0 {
		errs = append(errs, errors.New("fetchers.gvk: rate_limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateFileAccess() error {
	var errs []error
	hasRoot := false
	for _, r := range c.Unlinked.AllowedRoots {
		hasRoot = hasRoot || strings.TrimSpace(r) != ""
	}
	if !hasRoot {
		errs = append(errs, errors.New("unlinked: allowed_roots needs at least one directory"))
	}
	if c.Unlinked.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("unlinked: max_depth must be positive, got %d", c.Unlinked.MaxDepth))
	}
	if strings.TrimSpace(c.Importers.PluginDir) == "" {
		errs = append(errs, errors.New("importers: plugin_dir is required"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
