package config

import (
	"fmt"
	"os"

	"github.com/xtxerr/logbook/internal/errors"
)

// Validate checks the configuration for errors. Every reported error wraps
// errors.ErrInvalidConfig.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.DataDir == "" {
		v.AddField("data_dir", "is required")
	}

	v.Add(section("server", c.Server.Validate()))
	v.Add(section("store", c.Store.Validate()))
	v.Add(section("query", c.Query.Validate()))
	v.Add(section("cache", c.Cache.Validate()))
	v.Add(section("schema", c.Schema.Validate()))
	v.Add(section("units", c.Units.Validate()))

	return v.Err()
}

func section(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Listen == "" {
		v.AddField("listen", "is required")
	}
	if c.RefreshMin <= 0 {
		v.AddField("refresh_min", "must be positive")
	}
	if c.RefreshMax < c.RefreshMin {
		v.AddField("refresh_max", "must not be below refresh_min")
	}

	return v.Err()
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.TimestampColumn == "" {
		v.AddField("timestamp_column", "is required")
	}

	return v.Err()
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Threads < 0 {
		v.AddField("threads", "must not be negative")
	}
	if c.MaxParallel <= 0 {
		v.AddField("max_parallel", "must be positive")
	}
	if c.MaxPaths <= 0 {
		v.AddField("max_paths", "must be positive")
	}
	if c.Timeout < 0 {
		v.AddField("timeout", "must not be negative")
	}

	return v.Err()
}

// Validate checks the discovery cache configuration.
func (c *CacheConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.TTL <= 0 {
		v.AddField("ttl", "must be positive")
	}
	if c.Capacity <= 0 {
		v.AddField("capacity", "must be positive")
	}

	return v.Err()
}

// Validate checks the schema probe configuration.
func (c *SchemaConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.TTL <= 0 {
		v.AddField("ttl", "must be positive")
	}
	if c.SampleFiles <= 0 {
		v.AddField("sample_files", "must be positive")
	}

	return v.Err()
}

// Validate checks the unit conversion configuration.
func (c *UnitsConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.ProviderURL != "" && c.ProviderFile != "" {
		v.AddField("provider_url", "and provider_file are mutually exclusive")
	}
	if c.TTL <= 0 {
		v.AddField("ttl", "must be positive")
	}
	if c.Timeout <= 0 {
		v.AddField("timeout", "must be positive")
	}

	return v.Err()
}

// EnsureDataDir verifies that the data directory exists and is a directory.
func (c *Config) EnsureDataDir() error {
	info, err := os.Stat(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir %s: %w", c.DataDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data_dir %s is not a directory", c.DataDir)
	}
	return nil
}
