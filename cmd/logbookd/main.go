// logbookd is the historical telemetry query daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	defaults "github.com/xtxerr/logbook/config"
	"github.com/xtxerr/logbook/internal/config"
	"github.com/xtxerr/logbook/internal/history"
	"github.com/xtxerr/logbook/internal/history/query"
	"github.com/xtxerr/logbook/internal/history/schema"
	"github.com/xtxerr/logbook/internal/history/units"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/server"
	"github.com/xtxerr/logbook/internal/storage/layout"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data-dir", "", "parquet data directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fatal("load config", err)
		}
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("logbookd starting", "version", Version, "config", *cfgPath)

	if err := cfg.Validate(); err != nil {
		fatal("validate config", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		fatal("data directory", err)
	}

	// =========================================================================
	// Storage and Query Engine
	// =========================================================================

	tree, err := layout.New(cfg.DataDir, cfg.Store.SelfContext)
	if err != nil {
		fatal("open data tree", err)
	}

	probe := schema.NewProbe(cfg.Schema.SampleFiles, cfg.Schema.TTL)

	engine, err := query.New(tree, probe, query.Options{
		MemoryLimit:     cfg.Query.MemoryLimit,
		Threads:         cfg.Query.Threads,
		MaxParallel:     cfg.Query.MaxParallel,
		TimestampColumn: cfg.Store.TimestampColumn,
	})
	if err != nil {
		fatal("open query engine", err)
	}
	defer engine.Close()

	log.Info("query engine ready",
		"data_dir", tree.Root(),
		"memory_limit", cfg.Query.MemoryLimit,
		"max_parallel", cfg.Query.MaxParallel)

	// =========================================================================
	// Unit Conversion
	// =========================================================================

	var provider units.Provider
	switch {
	case cfg.Units.ProviderURL != "":
		provider = units.NewHTTPProvider(cfg.Units.ProviderURL)
		log.Info("unit conversion enabled", "provider", cfg.Units.ProviderURL)
	case cfg.Units.ProviderFile != "":
		provider = &units.FileProvider{Path: cfg.Units.ProviderFile}
		log.Info("unit conversion enabled", "provider", cfg.Units.ProviderFile)
	default:
		log.Info("unit conversion disabled, no provider configured")
	}

	var unitService *units.Service
	if provider != nil {
		unitService = units.NewService(provider, units.Options{
			TTL:         cfg.Units.TTL,
			Timeout:     cfg.Units.Timeout,
			TargetUnits: cfg.Units.TargetUnits,
		})
	}

	// =========================================================================
	// Create and Start Server
	// =========================================================================

	svc := history.NewService(engine, unitService, history.Options{
		DefaultContext: cfg.Store.DefaultContext,
		MaxPaths:       cfg.Query.MaxPaths,
		QueryTimeout:   cfg.Query.Timeout,
		CacheTTL:       cfg.Cache.TTL,
		CacheCapacity:  cfg.Cache.Capacity,
	})

	srv := server.New(&server.Config{
		Listen:         cfg.Server.Listen,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RefreshMin:     cfg.Server.RefreshMin,
		RefreshMax:     cfg.Server.RefreshMax,
		Service:        svc,
	})

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Run
	// =========================================================================

	// RunContext returns after in-flight requests drained or the shutdown
	// timeout ran out.
	if err := srv.RunContext(ctx, defaults.DefaultShutdownTimeout); err != nil {
		fatal("server", err)
	}

	stats := engine.Stats()
	log.Info("stopped",
		"queries_executed", stats.QueriesExecuted,
		"queries_failed", stats.QueriesFailed)
}

func fatal(msg string, err error) {
	logging.Error(msg, "error", err)
	os.Exit(1)
}
