// Package config loads indexgen configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file
// (--config, else ./indexgen.yaml), variables from .env files, then
// INDEXGEN_* environment variables. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/generator"
	"github.com/Aman-CERP/indexgen/internal/logging"
	"github.com/Aman-CERP/indexgen/internal/notify"
	"github.com/Aman-CERP/indexgen/internal/server"
	"github.com/Aman-CERP/indexgen/internal/solr"
	"github.com/Aman-CERP/indexgen/internal/store"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "indexgen.yaml"

// Index backends.
const (
	BackendSolr  = "solr"
	BackendBleve = "bleve"
)

// Config is the complete indexgen configuration.
type Config struct {
	Filter    FilterConfig    `yaml:"filter" json:"filter"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	Generator GeneratorConfig `yaml:"generator" json:"generator"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// FilterConfig toggles the index necessity filter.
type FilterConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// IndexConfig selects and configures the index used for lookups.
type IndexConfig struct {
	// Backend is "solr" (remote select API) or "bleve" (embedded index).
	Backend    string        `yaml:"backend" json:"backend"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Path       string        `yaml:"path" json:"path"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// StoreConfig configures the task store.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// NotifyConfig configures notification sources and dispatch policy.
type NotifyConfig struct {
	// RedisAddr enables the Redis source when set.
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	Channel       string `yaml:"channel" json:"channel"`
	ObjectPathKey string `yaml:"object_path_key" json:"object_path_key"`
	Workers       int    `yaml:"workers" json:"workers"`
	ReplayGuard   bool   `yaml:"replay_guard" json:"replay_guard"`
	PreCheck      bool   `yaml:"precheck" json:"precheck"`
	DedupWindow   int    `yaml:"dedup_window" json:"dedup_window"`
	// SpoolDir enables the spool directory source when set.
	SpoolDir string `yaml:"spool_dir" json:"spool_dir"`
}

// GeneratorConfig configures task generation.
type GeneratorConfig struct {
	IgnorePIDs []string `yaml:"ignore_pids" json:"ignore_pids"`
}

// ServerConfig configures the HTTP server and daemon logging.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFile         string        `yaml:"log_file" json:"log_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Filter: FilterConfig{Enabled: true},
		Index: IndexConfig{
			Backend:    BackendSolr,
			BaseURL:    solr.DefaultBaseURL,
			Path:       filepath.Join(logging.HomeDir(), "index"),
			Timeout:    solr.DefaultTimeout,
			MaxRetries: solr.DefaultMaxRetries,
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			Path:   filepath.Join(logging.HomeDir(), "tasks.db"),
		},
		Notify: NotifyConfig{
			RedisAddr:     "localhost:6379",
			Channel:       notify.DefaultChannel,
			ObjectPathKey: notify.DefaultPathKey,
			Workers:       notify.DefaultWorkers,
			ReplayGuard:   true,
			PreCheck:      true,
			DedupWindow:   notify.DefaultDedupSize,
		},
		Generator: GeneratorConfig{
			IgnorePIDs: slices.Clone(generator.DefaultIgnorePIDs),
		},
		Server: ServerConfig{
			Addr:            server.DefaultAddr,
			LogLevel:        "info",
			LogFile:         logging.DefaultLogPath(),
			ShutdownTimeout: server.DefaultShutdownTimeout,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// ./indexgen.yaml is used when present.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if fileExists(DefaultFileName) {
		if err := cfg.loadYAML(DefaultFileName); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ierrors.ConfigError("failed to read .env", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ierrors.New(ierrors.ErrCodeConfigNotFound, "config file not found", err).
				WithDetail("path", path).
				WithSuggestion("Run 'indexgen config init' to create one")
		}
		return ierrors.ConfigError("failed to read config file", err).WithDetail("path", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ierrors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("INDEXGEN_FILTER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("INDEXGEN_FILTER_ENABLED", err)
		}
		c.Filter.Enabled = b
	}
	if v := os.Getenv("INDEXGEN_INDEX_BACKEND"); v != "" {
		c.Index.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("INDEXGEN_INDEX_BASE_URL"); v != "" {
		c.Index.BaseURL = v
	}
	if v := os.Getenv("INDEXGEN_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("INDEXGEN_STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("INDEXGEN_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("INDEXGEN_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v, ok := os.LookupEnv("INDEXGEN_REDIS_ADDR"); ok {
		c.Notify.RedisAddr = v
	}
	if v := os.Getenv("INDEXGEN_REDIS_PASSWORD"); v != "" {
		c.Notify.RedisPassword = v
	}
	if v := os.Getenv("INDEXGEN_NOTIFY_CHANNEL"); v != "" {
		c.Notify.Channel = v
	}
	if v, ok := os.LookupEnv("INDEXGEN_SPOOL_DIR"); ok {
		c.Notify.SpoolDir = v
	}
	if v := os.Getenv("INDEXGEN_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("INDEXGEN_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	return nil
}

func envError(name string, err error) error {
	return ierrors.ConfigError("invalid environment variable", err).WithDetail("name", name)
}

// Validate checks the configuration for values no component can use.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendSolr:
		if c.Index.BaseURL == "" {
			return invalid("index.base_url is required for the solr backend")
		}
	case BackendBleve:
	default:
		return invalid(fmt.Sprintf("index.backend must be 'solr' or 'bleve', got %q", c.Index.Backend))
	}
	if c.Index.Timeout < 0 {
		return invalid("index.timeout must not be negative")
	}
	if c.Index.MaxRetries < 0 {
		return invalid("index.max_retries must not be negative")
	}

	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverSQLite3:
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for the postgres driver")
		}
	case store.DriverMemory:
	default:
		return invalid(fmt.Sprintf("store.driver must be sqlite, sqlite3, postgres or memory, got %q", c.Store.Driver))
	}

	if c.Notify.Workers <= 0 {
		return invalid("notify.workers must be positive")
	}
	if c.Notify.DedupWindow <= 0 {
		return invalid("notify.dedup_window must be positive")
	}
	if c.Notify.RedisAddr != "" && c.Notify.Channel == "" {
		return invalid("notify.channel is required when redis_addr is set")
	}

	if !logging.ValidLevel(c.Server.LogLevel) {
		return invalid(fmt.Sprintf("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel))
	}
	if c.Server.ShutdownTimeout < 0 {
		return invalid("server.shutdown_timeout must not be negative")
	}
	return nil
}

func invalid(msg string) error {
	return ierrors.ConfigError(msg, nil)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
