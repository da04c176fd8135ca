// Package enrich joins catalog-side pricing, ownership and availability
// data onto external IDs produced by the quality analyzer.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mgrantham/shelfscout/internal/api/catalog"
	"github.com/mgrantham/shelfscout/internal/cache"
	"github.com/mgrantham/shelfscout/internal/logger"
	"github.com/mgrantham/shelfscout/internal/models"
	"github.com/mgrantham/shelfscout/internal/util"
)

// Recommendation priority multipliers
const (
	multOwned       = 0.1
	multFree        = 5.0
	multMonthlyBig  = 4.0
	multMonthlyHalf = 3.5
	multGoodDealMin = 2.5
	multGoodDealMax = 3.0
	multNeutral     = 1.0
	spatialBonus    = 0.5
)

// Options configures the enrichment service
type Options struct {
	// SubscriptionMarker identifies inclusion plans by substring (default "Plus")
	SubscriptionMarker string
	// GoodDealThreshold is the price below which a product is a good deal
	GoodDealThreshold float64
	// MaxConcurrent bounds the batch fan-out (default 5)
	MaxConcurrent int
	// Cache is consulted for product-level hit accounting; may be nil
	Cache *cache.Store
	// Logger is optional
	Logger *logger.Logger
	// Now overrides the clock in tests
	Now func() time.Time
}

// Stats counts cache hits against live API calls across a service's lifetime
type Stats struct {
	CacheHits int64 `json:"cacheHits"`
	APICalls  int64 `json:"apiCalls"`
}

// Service assembles Enrichment records from the catalog
type Service struct {
	client *catalog.Client
	cache  *cache.Store
	sem    *util.Semaphore
	log    *logger.Logger
	now    func() time.Time

	marker    string
	threshold float64

	mu        sync.Mutex
	ownedOnce sync.Once
	ownedSet  map[string]bool
	stats     Stats
}

// NewService creates an enrichment service around a catalog client
func NewService(client *catalog.Client, opts Options) *Service {
	if opts.SubscriptionMarker == "" {
		opts.SubscriptionMarker = "Plus"
	}
	if opts.GoodDealThreshold <= 0 {
		opts.GoodDealThreshold = 8.0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get().With(map[string]interface{}{"component": "enrichment"})
	}
	return &Service{
		client:    client,
		cache:     opts.Cache,
		sem:       util.NewSemaphore(opts.MaxConcurrent),
		log:       log,
		now:       opts.Now,
		marker:    opts.SubscriptionMarker,
		threshold: opts.GoodDealThreshold,
	}
}

// Stats returns a snapshot of the hit/call counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// isOwned consults the owned set, fetching it on the first call. Concurrent
// callers block until the fetch completes, so no item is graded against a
// half-built set. A failed ownership fetch degrades to "nothing owned"
// rather than failing every enrichment.
func (s *Service) isOwned(ctx context.Context, externalID string) bool {
	s.ownedOnce.Do(func() {
		set := map[string]bool{}
		owned, err := s.client.OwnedLibrary(ctx)
		if err != nil {
			s.log.Warn("Failed to fetch owned library, assuming nothing owned", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			for _, id := range owned {
				set[id] = true
			}
		}
		s.ownedSet = set
	})
	return s.ownedSet[externalID]
}

func (s *Service) countLookup(externalID string) {
	hit := s.cache != nil && s.cache.Has("catalog_product", externalID)
	s.mu.Lock()
	if hit {
		s.stats.CacheHits++
	} else {
		s.stats.APICalls++
	}
	s.mu.Unlock()
}

// Enrich assembles the full enrichment record for one external ID
func (s *Service) Enrich(ctx context.Context, externalID string, discoverQuality bool) (*models.Enrichment, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external ID is required")
	}

	owned := s.isOwned(ctx, externalID)

	s.countLookup(externalID)
	product, err := s.client.GetProduct(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", externalID, err)
	}

	now := s.now()
	e := &models.Enrichment{
		ExternalID: externalID,
		Title:      product.Title,
		Authors:    product.Authors,
		Owned:      owned,
		Pricing:    PricingFor(product),
		Codecs:     product.Codecs,
		CoverURLs:  product.CoverURLs,
		CatalogURL: s.client.ProductURL(externalID),
	}
	e.Subscription = SubscriptionFor(product, s.marker)
	e.BestBitrateKbps = bestCodecBitrate(product.Codecs)
	for _, codec := range product.Codecs {
		if codec.IsSpatial {
			e.SpatialAvailable = true
			break
		}
	}

	if discoverQuality {
		if info, err := s.client.FastQualityCheck(ctx, externalID); err == nil {
			if info.BestFormat != nil && info.BestFormat.BitrateKbps > e.BestBitrateKbps {
				e.BestBitrateKbps = info.BestFormat.BitrateKbps
			}
			if info.HasSpatial {
				e.SpatialAvailable = true
			}
		} else {
			s.log.Debug("Quality discovery failed", map[string]interface{}{
				"external_id": externalID,
				"error":       err.Error(),
			})
		}
	}

	e.Recommendation, e.PriorityBoost = recommend(e, s.threshold, now)
	return e, nil
}

// BatchOptions tunes a batch enrichment run
type BatchOptions struct {
	DiscoverQuality bool
	// Progress, when set, receives (completed, total) as items finish
	Progress func(completed, total int)
}

// EnrichBatch enriches many IDs under the service's concurrency bound.
// Failures are logged and skipped; the result map holds only successes.
func (s *Service) EnrichBatch(ctx context.Context, externalIDs []string, opts BatchOptions) map[string]*models.Enrichment {
	total := len(externalIDs)
	results := make(map[string]*models.Enrichment, total)
	if total == 0 {
		return results
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		completed int
	)

	for _, id := range externalIDs {
		id := id
		if err := s.sem.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release()

			e, err := s.Enrich(ctx, id, opts.DiscoverQuality)

			mu.Lock()
			completed++
			done := completed
			if err != nil {
				s.log.Warn("Enrichment failed, skipping", map[string]interface{}{
					"external_id": id,
					"error":       err.Error(),
				})
			} else {
				results[id] = e
			}
			mu.Unlock()

			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}()
	}
	wg.Wait()

	s.log.Info("Batch enrichment complete", map[string]interface{}{
		"requested": total,
		"enriched":  len(results),
	})
	return results
}
