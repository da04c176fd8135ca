package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/mgrantham/shelfscout/internal/api/catalog"
	"github.com/mgrantham/shelfscout/internal/api/library"
	"github.com/mgrantham/shelfscout/internal/cache"
	"github.com/mgrantham/shelfscout/internal/config"
	"github.com/mgrantham/shelfscout/internal/logger"
)

// catalogMode says whether a command needs the commercial catalog
type catalogMode int

const (
	catalogOff catalogMode = iota
	// catalogOptional degrades gracefully when no credentials are configured
	catalogOptional
	catalogRequired
)

// appEnv bundles the shared wiring every command needs
type appEnv struct {
	cfg     *config.Config
	store   *cache.Store
	library *library.Client
	catalog *catalog.Client
	log     *logger.Logger
}

// newAppEnv loads config, sets up logging, opens the cache and constructs
// the requested clients. The returned cleanup closes the cache.
func newAppEnv(c *cli.Context, needLibrary bool, catMode catalogMode) (*appEnv, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if v := c.String("log-level"); v != "" {
		level = v
	}
	format := logger.ParseLogFormat(cfg.Logging.Format)
	if c.Bool("json-logs") {
		format = logger.FormatJSON
	}
	logger.Setup(logger.Config{
		Level:      level,
		Format:     format,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()

	env := &appEnv{cfg: cfg, log: log}

	if cfg.Cache.Enabled {
		store, err := cache.New(cache.Options{
			Path:             cfg.Cache.DBPath,
			DefaultTTL:       time.Duration(cfg.Cache.DefaultTTLHours) * time.Hour,
			MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
			Logger:           log,
		})
		if err != nil {
			log.Warn("Cache unavailable, continuing without it", map[string]interface{}{
				"path":  cfg.Cache.DBPath,
				"error": err.Error(),
			})
		} else {
			env.store = store
		}
	}

	cleanup := func() {
		if env.store != nil {
			if err := env.store.Close(); err != nil {
				log.Debug("Failed to close cache", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if needLibrary {
		env.library, err = library.NewClient(library.Options{
			BaseURL:            cfg.Library.Host,
			Token:              cfg.Library.APIKey,
			RateInterval:       cfg.LibraryRateInterval(),
			MaxConcurrent:      cfg.Library.MaxConcurrent,
			BatchMaxConcurrent: cfg.Library.BatchMaxConcurrent,
			Cache:              env.store,
			CacheTTL:           time.Duration(cfg.Cache.LibraryTTLHours) * time.Hour,
			Logger:             log,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	if catMode != catalogOff {
		if cfg.Catalog.AuthFilePath == "" {
			if catMode == catalogRequired {
				cleanup()
				return nil, nil, fmt.Errorf("catalog.auth_file_path is not configured")
			}
			log.Info("No catalog credentials configured, running without catalog data", nil)
		} else {
			env.catalog, err = catalog.NewClient(catalog.Options{
				AuthFilePath:          cfg.Catalog.AuthFilePath,
				AllowInsecureAuthFile: cfg.Catalog.AllowInsecureAuthFile,
				AuthPassword:          cfg.Catalog.AuthPassword,
				Locale:                cfg.Catalog.Locale,
				RequestsPerMinute:     cfg.Catalog.RequestsPerMinute,
				BurstSize:             cfg.Catalog.BurstSize,
				RateInterval:          cfg.CatalogRateInterval(),
				MaxBackoff:            time.Duration(cfg.Catalog.MaxBackoffSeconds) * time.Second,
				BackoffMultiplier:     cfg.Catalog.BackoffMultiplier,
				MaxConcurrent:         cfg.Catalog.MaxConcurrent,
				Cache:                 env.store,
				Logger:                log,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("catalog client: %w", err)
			}
		}
	}

	return env, cleanup, nil
}

// libraryID resolves the target library from the flag or the config default
func (env *appEnv) libraryID(c *cli.Context) (string, error) {
	if v := c.String("library-id"); v != "" {
		return v, nil
	}
	if env.cfg.Library.LibraryID != "" {
		return env.cfg.Library.LibraryID, nil
	}
	return "", fmt.Errorf("no library ID given; pass --library-id or set library.library_id")
}

// progressFunc returns a (completed, total) callback rendering a terminal
// progress bar, or nil when progress output is suppressed. The bar is
// created on the first call, once the total is known.
func progressFunc(description string, quiet bool) func(completed, total int) {
	if quiet {
		return nil
	}
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(completed)
	}
}
