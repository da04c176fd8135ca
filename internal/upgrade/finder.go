// Package upgrade orchestrates the library scan, quality analysis and
// catalog enrichment that together produce a ranked upgrade shortlist.
package upgrade

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mgrantham/shelfscout/internal/api/library"
	"github.com/mgrantham/shelfscout/internal/enrich"
	"github.com/mgrantham/shelfscout/internal/logger"
	"github.com/mgrantham/shelfscout/internal/models"
	"github.com/mgrantham/shelfscout/internal/quality"
)

// DefaultBitrateThreshold marks items below this bitrate as candidates
const DefaultBitrateThreshold = 110.0

// defaultGoodDealThreshold mirrors the enrichment default for the deal
// counters and filters
const defaultGoodDealThreshold = 8.0

// Flags narrow the candidate list after enrichment
type Flags struct {
	SubscriptionOnly bool
	DealsOnly        bool
	MonthlyDealsOnly bool
	ExcludeOwned     bool
}

// Request describes one finder run
type Request struct {
	LibraryID        string
	BitrateThreshold float64
	Flags            Flags
	// Limit truncates the final candidate list; 0 means no limit
	Limit int
	// DiscoverQuality probes the catalog's deliverable formats per candidate
	DiscoverQuality bool
	// ScanProgress receives (completed, total) during the library scan
	ScanProgress func(completed, total int)
	// EnrichProgress receives (completed, total) during enrichment
	EnrichProgress func(completed, total int)
}

// Finder wires the library client, analyzer and optional enrichment
// service together. Both clients are borrowed and never closed here.
type Finder struct {
	library  *library.Client
	analyzer *quality.Analyzer
	enricher *enrich.Service
	log      *logger.Logger
}

// NewFinder builds a finder. The enrichment service may be nil, in which
// case candidates carry quality data only.
func NewFinder(lib *library.Client, analyzer *quality.Analyzer, enricher *enrich.Service, log *logger.Logger) *Finder {
	if analyzer == nil {
		analyzer = quality.NewAnalyzer(quality.Thresholds{})
	}
	if log == nil {
		log = logger.Get().With(map[string]interface{}{"component": "upgrade_finder"})
	}
	return &Finder{
		library:  lib,
		analyzer: analyzer,
		enricher: enricher,
		log:      log,
	}
}

// Run executes the full pipeline: scan, analyze, enrich, filter, rank
func (f *Finder) Run(ctx context.Context, req Request) (*models.UpgradeScanResult, error) {
	if req.LibraryID == "" {
		return nil, fmt.Errorf("library ID is required")
	}
	if req.BitrateThreshold <= 0 {
		req.BitrateThreshold = DefaultBitrateThreshold
	}

	result := &models.UpgradeScanResult{LibraryID: req.LibraryID}

	// Phase 1: scan the library and analyze every item
	scanStart := time.Now()
	items, err := f.scanLibrary(ctx, req)
	if err != nil {
		return nil, err
	}
	result.TotalItems = len(items)

	var flagged []models.AudioQuality
	for i := range items {
		q := f.analyzer.Analyze(&items[i])
		if q.BitrateKbps >= req.BitrateThreshold || q.Tier == models.TierUnknown {
			continue
		}
		result.BelowThreshold++
		// A catalog lookup needs an external ID
		if q.ExternalID == "" {
			continue
		}
		flagged = append(flagged, q)
	}
	result.ScanDuration = time.Since(scanStart)

	// Phase 2: enrich the flagged set
	enrichStart := time.Now()
	enrichments := map[string]*models.Enrichment{}
	if f.enricher != nil && len(flagged) > 0 {
		ids := make([]string, 0, len(flagged))
		for _, q := range flagged {
			ids = append(ids, q.ExternalID)
		}
		enrichments = f.enricher.EnrichBatch(ctx, ids, enrich.BatchOptions{
			DiscoverQuality: req.DiscoverQuality,
			Progress:        req.EnrichProgress,
		})
		result.Enriched = len(enrichments)

		stats := f.enricher.Stats()
		result.CacheHits = stats.CacheHits
		result.APICalls = stats.APICalls
	}
	result.EnrichDuration = time.Since(enrichStart)

	// Phase 3: assemble, count, filter, rank
	for _, q := range flagged {
		candidate := models.UpgradeCandidate{Quality: q}
		if e, ok := enrichments[q.ExternalID]; ok {
			candidate.Enrichment = e
			f.count(&result.Counters, e)
		}
		candidate.FinalPriority = finalPriority(&candidate)
		if f.keep(&candidate, req.Flags) {
			result.Candidates = append(result.Candidates, candidate)
		}
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].FinalPriority > result.Candidates[j].FinalPriority
	})
	if req.Limit > 0 && len(result.Candidates) > req.Limit {
		result.Candidates = result.Candidates[:req.Limit]
	}

	f.log.Info("Upgrade scan complete", map[string]interface{}{
		"library_id":      req.LibraryID,
		"total_items":     result.TotalItems,
		"below_threshold": result.BelowThreshold,
		"candidates":      len(result.Candidates),
		"scan_duration":   result.ScanDuration.String(),
		"enrich_duration": result.EnrichDuration.String(),
	})
	return result, nil
}

// scanLibrary lists the library then fetches every item expanded, in
// parallel, under the library client's batch concurrency bound
func (f *Finder) scanLibrary(ctx context.Context, req Request) ([]models.LibraryItem, error) {
	listed, err := f.library.ListAllItems(ctx, req.LibraryID, nil)
	if err != nil {
		return nil, fmt.Errorf("list library items: %w", err)
	}

	ids := make([]string, 0, len(listed))
	for _, item := range listed {
		ids = append(ids, item.ID)
	}
	items, err := f.library.BatchGetItems(ctx, ids, req.ScanProgress)
	if err != nil {
		return nil, fmt.Errorf("fetch library items: %w", err)
	}
	return items, nil
}

func (f *Finder) count(counters *models.UpgradeCounters, e *models.Enrichment) {
	if e.IsFree() {
		counters.SubscriptionIncluded++
	}
	if e.Pricing != nil && e.Pricing.IsMonthlyDeal {
		counters.MonthlyDeals++
	}
	if e.Pricing != nil && !e.Pricing.IsMonthlyDeal && e.Pricing.IsGoodDeal(defaultGoodDealThreshold) {
		counters.GoodDeals++
	}
	if e.Owned {
		counters.AlreadyOwned++
	}
	if e.SpatialAvailable {
		counters.SpatialAvailable++
	}
}

func (f *Finder) keep(c *models.UpgradeCandidate, flags Flags) bool {
	e := c.Enrichment
	if e == nil {
		// Without enrichment there is nothing to filter on
		return !flags.SubscriptionOnly && !flags.DealsOnly && !flags.MonthlyDealsOnly
	}
	if flags.ExcludeOwned && e.Owned {
		return false
	}
	if flags.SubscriptionOnly && !e.IsFree() {
		return false
	}
	if flags.MonthlyDealsOnly {
		return e.Pricing != nil && e.Pricing.IsMonthlyDeal
	}
	if flags.DealsOnly {
		if e.Pricing == nil {
			return false
		}
		return e.Pricing.IsMonthlyDeal || e.Pricing.IsGoodDeal(defaultGoodDealThreshold)
	}
	return true
}

func finalPriority(c *models.UpgradeCandidate) float64 {
	boost := 1.0
	if c.Enrichment != nil {
		boost = c.Enrichment.PriorityBoost
	}
	return float64(c.Quality.UpgradePriority) * boost
}
