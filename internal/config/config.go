// Package config loads and validates the logbook service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/logbook/config"
)

// Config represents the complete service configuration.
type Config struct {
	// DataDir is the root directory of the Parquet tree.
	DataDir string `yaml:"data_dir"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server"`

	// Store describes how the Parquet tree is laid out.
	Store StoreConfig `yaml:"store"`

	// Query configures the DuckDB query engine.
	Query QueryConfig `yaml:"query"`

	// Cache configures the path/context discovery caches.
	Cache CacheConfig `yaml:"cache"`

	// Schema configures component schema probing.
	Schema SchemaConfig `yaml:"schema"`

	// Units configures the unit conversion stage.
	Units UnitsConfig `yaml:"units"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches the handler to JSON output.
	JSON bool `yaml:"json"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds the whole request.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AllowedOrigins lists CORS origins. Empty disables CORS handling.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RefreshMin and RefreshMax clamp the polling interval advertised on refresh=true.
	RefreshMin time.Duration `yaml:"refresh_min"`
	RefreshMax time.Duration `yaml:"refresh_max"`
}

// StoreConfig describes the Parquet tree.
type StoreConfig struct {
	// DefaultContext is used when a request omits context.
	DefaultContext string `yaml:"default_context"`

	// SelfContext is the concrete context vessels.self resolves to,
	// e.g. vessels.urn:mrn:imo:mmsi:368396230. Empty keeps vessels/self.
	SelfContext string `yaml:"self_context"`

	// TimestampColumn is the column holding the sample time.
	TimestampColumn string `yaml:"timestamp_column"`
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Threads is the DuckDB thread count (0 = DuckDB default).
	Threads int `yaml:"threads"`

	// MaxParallel caps concurrent per-path queries within one request.
	MaxParallel int `yaml:"max_parallel"`

	// Timeout bounds the query phase of a request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxPaths limits the number of paths in one request.
	MaxPaths int `yaml:"max_paths"`
}

// CacheConfig configures the discovery caches.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// SchemaConfig configures component schema probing.
type SchemaConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	SampleFiles int           `yaml:"sample_files"`
}

// UnitsConfig configures unit conversion.
type UnitsConfig struct {
	// ProviderURL is an HTTP endpoint returning the conversion table as JSON.
	ProviderURL string `yaml:"provider_url"`

	// ProviderFile is a YAML file holding the conversion table.
	ProviderFile string `yaml:"provider_file"`

	// TTL is how long a loaded table is reused.
	TTL time.Duration `yaml:"ttl"`

	// Timeout bounds one provider fetch.
	Timeout time.Duration `yaml:"timeout"`

	// TargetUnits overrides the preferred target unit per path.
	TargetUnits map[string]string `yaml:"target_units"`
}

// Load loads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaults.DefaultDataDir,
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Listen:       defaults.DefaultListenAddress,
			ReadTimeout:  defaults.DefaultReadTimeout,
			WriteTimeout: defaults.DefaultWriteTimeout,
			RefreshMin:   defaults.DefaultRefreshMin,
			RefreshMax:   defaults.DefaultRefreshMax,
		},
		Store: StoreConfig{
			DefaultContext:  defaults.DefaultContext,
			TimestampColumn: defaults.DefaultTimestampColumn,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
			Threads:     defaults.DefaultQueryThreads,
			MaxParallel: defaults.DefaultQueryMaxParallel,
			Timeout:     defaults.DefaultQueryTimeout,
			MaxPaths:    defaults.DefaultMaxPaths,
		},
		Cache: CacheConfig{
			TTL:      defaults.DefaultDiscoveryCacheTTL,
			Capacity: defaults.DefaultDiscoveryCacheCapacity,
		},
		Schema: SchemaConfig{
			TTL:         defaults.DefaultSchemaCacheTTL,
			SampleFiles: defaults.DefaultSchemaSampleFiles,
		},
		Units: UnitsConfig{
			TTL:     defaults.DefaultUnitsCacheTTL,
			Timeout: defaults.DefaultUnitsProviderTimeout,
		},
	}
}

// ApplyEnv overrides selected fields from LOGBOOK_* environment variables.
func (c *Config) ApplyEnv() {
	c.DataDir = getEnv("LOGBOOK_DATA_DIR", c.DataDir)
	c.Server.Listen = getEnv("LOGBOOK_LISTEN", c.Server.Listen)
	c.Log.Level = getEnv("LOGBOOK_LOG_LEVEL", c.Log.Level)
	c.Log.JSON = getEnvBool("LOGBOOK_LOG_JSON", c.Log.JSON)
	c.Store.SelfContext = getEnv("LOGBOOK_SELF_CONTEXT", c.Store.SelfContext)
	c.Units.ProviderURL = getEnv("LOGBOOK_UNITS_URL", c.Units.ProviderURL)
	c.Query.MaxParallel = getEnvInt("LOGBOOK_QUERY_MAX_PARALLEL", c.Query.MaxParallel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}
