package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mgrantham/shelfscout/internal/enrich"
	"github.com/mgrantham/shelfscout/internal/models"
	"github.com/mgrantham/shelfscout/internal/quality"
	"github.com/mgrantham/shelfscout/internal/report"
	"github.com/mgrantham/shelfscout/internal/series"
	"github.com/mgrantham/shelfscout/internal/upgrade"
)

func upgradesCommand() *cli.Command {
	return &cli.Command{
		Name:  "upgrades",
		Usage: "Scan a library for low-quality items and rank upgrade candidates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "library-id", Aliases: []string{"l"}, Usage: "Library to scan"},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Flag items below this bitrate in kbps",
				Value: upgrade.DefaultBitrateThreshold,
			},
			&cli.BoolFlag{Name: "subscription-only", Usage: "Only candidates included in a subscription"},
			&cli.BoolFlag{Name: "deals-only", Usage: "Only candidates on a deal"},
			&cli.BoolFlag{Name: "monthly-deals-only", Usage: "Only candidates on a monthly deal"},
			&cli.BoolFlag{Name: "exclude-owned", Usage: "Drop candidates already owned on the catalog side"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Truncate the candidate list"},
			&cli.BoolFlag{
				Name:  "discover-quality",
				Usage: "Probe the catalog's deliverable formats per candidate (slow)",
			},
			&cli.StringFlag{
				Name:    "json",
				Aliases: []string{"o"},
				Usage:   "Write a JSON extract to `FILE` (\"-\" for stdout) instead of text",
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Add the candidates to the named library collection, creating it if needed",
			},
			&cli.BoolFlag{Name: "no-progress", Usage: "Suppress progress bars"},
		},
		Action: runUpgrades,
	}
}

func runUpgrades(c *cli.Context) error {
	env, cleanup, err := newAppEnv(c, true, catalogOptional)
	if err != nil {
		return err
	}
	defer cleanup()

	libraryID, err := env.libraryID(c)
	if err != nil {
		return err
	}

	analyzer := quality.NewAnalyzer(quality.Thresholds{
		ExcellentKbps:      env.cfg.Quality.ExcellentKbps,
		GoodKbps:           env.cfg.Quality.GoodKbps,
		AcceptableKbps:     env.cfg.Quality.AcceptableKbps,
		LowKbps:            env.cfg.Quality.LowKbps,
		SpatialCodecs:      env.cfg.Quality.SpatialCodecs,
		SpatialMinChannels: env.cfg.Quality.SpatialMinChannels,
		PremiumContainers:  env.cfg.Quality.PremiumContainers,
	})

	var enricher *enrich.Service
	if env.catalog != nil {
		enricher = enrich.NewService(env.catalog, enrich.Options{
			SubscriptionMarker: env.cfg.Quality.SubscriptionMarker,
			GoodDealThreshold:  env.cfg.Quality.GoodDealThreshold,
			MaxConcurrent:      env.cfg.Catalog.MaxConcurrent,
			Cache:              env.store,
			Logger:             env.log,
		})
	}

	quiet := c.Bool("no-progress")
	finder := upgrade.NewFinder(env.library, analyzer, enricher, env.log)
	result, err := finder.Run(c.Context, upgrade.Request{
		LibraryID:        libraryID,
		BitrateThreshold: c.Float64("threshold"),
		Flags: upgrade.Flags{
			SubscriptionOnly: c.Bool("subscription-only"),
			DealsOnly:        c.Bool("deals-only"),
			MonthlyDealsOnly: c.Bool("monthly-deals-only"),
			ExcludeOwned:     c.Bool("exclude-owned"),
		},
		Limit:           c.Int("limit"),
		DiscoverQuality: c.Bool("discover-quality"),
		ScanProgress:    progressFunc("Scanning library", quiet),
		EnrichProgress:  progressFunc("Enriching candidates", quiet),
	})
	if err != nil {
		return err
	}

	if name := c.String("collection"); name != "" && len(result.Candidates) > 0 {
		if err := addToCollection(c, env, libraryID, name, result); err != nil {
			return err
		}
	}

	return writeUpgradeOutput(c, result)
}

func writeUpgradeOutput(c *cli.Context, result *models.UpgradeScanResult) error {
	switch path := c.String("json"); path {
	case "":
		report.RenderUpgradeText(os.Stdout, result)
		return nil
	case "-":
		return report.Encode(os.Stdout, report.BuildUpgrade(result, time.Now()))
	default:
		return report.WriteFile(path, report.BuildUpgrade(result, time.Now()))
	}
}

// addToCollection puts every candidate into the named collection, skipping
// items the collection already holds
func addToCollection(c *cli.Context, env *appEnv, libraryID, name string, result *models.UpgradeScanResult) error {
	col, err := env.library.FindOrCreateCollection(c.Context, libraryID, name)
	if err != nil {
		return fmt.Errorf("collection %q: %w", name, err)
	}
	existing := make(map[string]bool, len(col.BookIDs))
	for _, id := range col.BookIDs {
		existing[id] = true
	}

	var toAdd []string
	for _, cand := range result.Candidates {
		if !existing[cand.Quality.ItemID] {
			toAdd = append(toAdd, cand.Quality.ItemID)
		}
	}
	if len(toAdd) > 0 {
		if err := env.library.AddToCollection(c.Context, col.ID, toAdd); err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
	}
	env.log.Info("Collection updated", map[string]interface{}{
		"collection": name,
		"added":      len(toAdd),
	})
	return nil
}

func seriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "series",
		Usage: "Reconcile local series against the catalog and list missing books",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "library-id", Aliases: []string{"l"}, Usage: "Library to analyze"},
			&cli.IntFlag{
				Name:  "min-books",
				Usage: "Skip series with fewer local books",
				Value: 2,
			},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Analyze at most this many series"},
			&cli.StringFlag{
				Name:    "json",
				Aliases: []string{"o"},
				Usage:   "Write a JSON extract to `FILE` (\"-\" for stdout) instead of text",
			},
		},
		Action: runSeries,
	}
}

func runSeries(c *cli.Context) error {
	env, cleanup, err := newAppEnv(c, true, catalogRequired)
	if err != nil {
		return err
	}
	defer cleanup()

	libraryID, err := env.libraryID(c)
	if err != nil {
		return err
	}

	matcher := series.NewMatcher(env.library, env.catalog, series.Options{
		SubscriptionMarker: env.cfg.Quality.SubscriptionMarker,
		Logger:             env.log,
	})
	rep, err := matcher.AnalyzeLibrary(c.Context, libraryID, c.Int("min-books"), c.Int("limit"))
	if err != nil {
		return err
	}

	switch path := c.String("json"); path {
	case "":
		report.RenderSeriesText(os.Stdout, rep)
		return nil
	case "-":
		return report.Encode(os.Stdout, report.BuildSeries(libraryID, rep, time.Now()))
	default:
		return report.WriteFile(path, report.BuildSeries(libraryID, rep, time.Now()))
	}
}

func wishlistCommand() *cli.Command {
	return &cli.Command{
		Name:  "wishlist",
		Usage: "Show or edit the catalog wishlist",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List wishlist entries",
				Action: func(c *cli.Context) error {
					env, cleanup, err := newAppEnv(c, false, catalogRequired)
					if err != nil {
						return err
					}
					defer cleanup()

					products, err := env.catalog.Wishlist(c.Context)
					if err != nil {
						return err
					}
					if len(products) == 0 {
						fmt.Println("Wishlist is empty.")
						return nil
					}
					for _, p := range products {
						fmt.Printf("%s — %s (%s)\n", p.Title, p.PrimaryAuthor(), env.catalog.ProductURL(p.ExternalID))
					}
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Add a product by its catalog ID",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("exactly one catalog ID is required")
					}
					env, cleanup, err := newAppEnv(c, false, catalogRequired)
					if err != nil {
						return err
					}
					defer cleanup()
					return env.catalog.AddToWishlist(c.Context, c.Args().First())
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a product by its catalog ID",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("exactly one catalog ID is required")
					}
					env, cleanup, err := newAppEnv(c, false, catalogRequired)
					if err != nil {
						return err
					}
					defer cleanup()
					return env.catalog.RemoveFromWishlist(c.Context, c.Args().First())
				},
			},
		},
	}
}

func suggestCommand() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Show catalog recommendations for this account",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum suggestions", Value: 20},
		},
		Action: func(c *cli.Context) error {
			env, cleanup, err := newAppEnv(c, false, catalogRequired)
			if err != nil {
				return err
			}
			defer cleanup()

			products, err := env.catalog.Recommendations(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			for _, p := range products {
				fmt.Printf("%s — %s (%s)\n", p.Title, p.PrimaryAuthor(), env.catalog.ProductURL(p.ExternalID))
			}
			return nil
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local cache",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache totals and per-namespace counts",
				Action: func(c *cli.Context) error {
					env, cleanup, err := newAppEnv(c, false, catalogOff)
					if err != nil {
						return err
					}
					defer cleanup()
					if env.store == nil {
						return fmt.Errorf("cache is disabled or unavailable")
					}

					stats, err := env.store.GetStats()
					if err != nil {
						return err
					}
					fmt.Printf("Entries:  %d (%d expired)\n", stats.TotalEntries, stats.ExpiredCount)
					fmt.Printf("Mappings: %d\n", stats.MappingCount)
					fmt.Printf("DB size:  %.1f MB\n", float64(stats.DBSizeBytes)/(1024*1024))
					for ns, count := range stats.PerNamespace {
						fmt.Printf("  %-22s %d\n", ns, count)
					}
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "Delete expired cache entries",
				Action: func(c *cli.Context) error {
					env, cleanup, err := newAppEnv(c, false, catalogOff)
					if err != nil {
						return err
					}
					defer cleanup()
					if env.store == nil {
						return fmt.Errorf("cache is disabled or unavailable")
					}

					removed, err := env.store.CleanupExpired()
					if err != nil {
						return err
					}
					fmt.Printf("Removed %d expired entries.\n", removed)
					return nil
				},
			},
		},
	}
}
