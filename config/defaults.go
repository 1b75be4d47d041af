// Package config provides configuration defaults for the logbook service.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:3100"

	// DefaultReadTimeout bounds how long a client may take to send a request.
	// Override via config: server.read_timeout
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds the whole request, including query execution.
	// Override via config: server.write_timeout
	DefaultWriteTimeout = 120 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests may run during shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Refresh (client polling) Defaults
// =============================================================================

const (
	// DefaultRefreshMin is the smallest polling interval advertised to clients.
	// Override via config: server.refresh_min
	DefaultRefreshMin = time.Second

	// DefaultRefreshMax is the largest polling interval advertised to clients.
	// Override via config: server.refresh_max
	DefaultRefreshMax = 60 * time.Second
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultDataDir is the root of the Parquet tree.
	// Override via config: data_dir
	DefaultDataDir = "/var/lib/logbook/data"

	// DefaultContext is used when a request does not name a context.
	// Override via config: store.default_context
	DefaultContext = "vessels.self"

	// DefaultTimestampColumn is the column holding the sample time.
	// Override via config: store.timestamp_column
	DefaultTimestampColumn = "signalk_timestamp"
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultBucketsPerRange is used to derive the resolution when none is given:
	// resolution = span / DefaultBucketsPerRange.
	DefaultBucketsPerRange = 500

	// DefaultQueryMemoryLimit is the DuckDB memory limit.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "1GB"

	// DefaultQueryThreads is the DuckDB worker thread count. 0 keeps DuckDB's choice.
	// Override via config: query.threads
	DefaultQueryThreads = 0

	// DefaultQueryMaxParallel caps concurrent per-path queries within one request.
	// Override via config: query.max_parallel
	DefaultQueryMaxParallel = 8

	// DefaultQueryTimeout bounds a full request's query phase.
	// Override via config: query.timeout
	DefaultQueryTimeout = 60 * time.Second

	// DefaultMaxPaths limits the number of paths in one request.
	// Override via config: query.max_paths
	DefaultMaxPaths = 50
)

// =============================================================================
// Derived Statistics Defaults
// =============================================================================

const (
	// EMAAlpha is the smoothing factor for exponential moving averages.
	EMAAlpha = 0.2

	// SMAWindow is the trailing sample count for simple moving averages.
	SMAWindow = 10

	// DerivedPrecision is the number of decimals derived values are rounded to.
	DerivedPrecision = 3

	// DefaultSummaryAccuracy is the DDSketch relative accuracy for summaries.
	DefaultSummaryAccuracy = 0.01
)

// =============================================================================
// Cache Defaults
// =============================================================================

const (
	// DefaultDiscoveryCacheTTL is how long discovered paths/contexts are cached.
	// Override via config: cache.ttl
	DefaultDiscoveryCacheTTL = 60 * time.Second

	// DefaultDiscoveryCacheCapacity is the entry limit of each discovery cache.
	// Override via config: cache.capacity
	DefaultDiscoveryCacheCapacity = 100

	// DefaultSchemaCacheTTL is how long probed component schemas are reused.
	// Override via config: schema.ttl
	DefaultSchemaCacheTTL = 5 * time.Minute

	// DefaultSchemaSampleFiles is how many of the newest files are read to
	// build a path's schema.
	// Override via config: schema.sample_files
	DefaultSchemaSampleFiles = 5

	// DefaultUnitsCacheTTL is how long the conversion table is reused.
	// Override via config: units.ttl
	DefaultUnitsCacheTTL = 5 * time.Minute

	// DefaultUnitsProviderTimeout bounds one fetch from the preference provider.
	// Override via config: units.timeout
	DefaultUnitsProviderTimeout = 5 * time.Second
)
