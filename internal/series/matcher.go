// Package series reconciles locally-held series against the commercial
// catalog: which books of each series are owned, which are missing, and
// what it would take to complete them.
package series

import (
	"context"
	"fmt"
	"time"

	"github.com/mgrantham/shelfscout/internal/api/catalog"
	"github.com/mgrantham/shelfscout/internal/api/library"
	"github.com/mgrantham/shelfscout/internal/enrich"
	"github.com/mgrantham/shelfscout/internal/logger"
	"github.com/mgrantham/shelfscout/internal/models"
)

// Options configures the matcher
type Options struct {
	// MinMatchScore is the fuzzy acceptance floor (default 60)
	MinMatchScore float64
	// SubscriptionMarker identifies inclusion plans (default "Plus")
	SubscriptionMarker string
	// Logger is optional
	Logger *logger.Logger
}

// Matcher reconciles local series against the catalog. It borrows both
// clients from the caller and never closes them.
type Matcher struct {
	library  *library.Client
	catalog  *catalog.Client
	log      *logger.Logger
	minScore float64
	marker   string
}

// NewMatcher builds a matcher over the two clients
func NewMatcher(lib *library.Client, cat *catalog.Client, opts Options) *Matcher {
	if opts.MinMatchScore <= 0 {
		opts.MinMatchScore = DefaultMinMatchScore
	}
	if opts.SubscriptionMarker == "" {
		opts.SubscriptionMarker = "Plus"
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get().With(map[string]interface{}{"component": "series_matcher"})
	}
	return &Matcher{
		library:  lib,
		catalog:  cat,
		log:      log,
		minScore: opts.MinMatchScore,
		marker:   opts.SubscriptionMarker,
	}
}

func (m *Matcher) toSeriesBook(p *models.CatalogProduct) models.CatalogSeriesBook {
	book := models.CatalogSeriesBook{
		ExternalID:     p.ExternalID,
		Title:          p.Title,
		Authors:        p.Authors,
		Narrators:      p.Narrators,
		RuntimeMinutes: p.RuntimeMinutes,
		Pricing:        enrich.PricingFor(p),
		Subscription:   enrich.SubscriptionFor(p, m.marker),
	}
	if ref := p.PrimarySeries(); ref != nil {
		book.Sequence = ref.Sequence
	}
	return book
}

func (m *Matcher) assembleSeries(seed *models.CatalogProduct, sims []models.CatalogProduct) *models.CatalogSeries {
	out := &models.CatalogSeries{}
	if ref := seed.PrimarySeries(); ref != nil {
		out.ExternalID = ref.ExternalID
		out.Title = ref.Title
	}
	seen := map[string]bool{}
	add := func(p *models.CatalogProduct) {
		if p.ExternalID == "" || seen[p.ExternalID] {
			return
		}
		seen[p.ExternalID] = true
		out.Books = append(out.Books, m.toSeriesBook(p))
	}
	add(seed)
	for i := range sims {
		add(&sims[i])
	}
	return out
}

// DiscoverSeries finds the catalog's view of a local series. Strategies
// are tried in order; the first that yields any books wins.
func (m *Matcher) DiscoverSeries(ctx context.Context, local models.LocalSeries) (*models.CatalogSeries, error) {
	if found := m.discoverBySeedSims(ctx, local); found != nil {
		return found, nil
	}
	if found := m.discoverByLocalIDs(ctx, local); found != nil {
		return found, nil
	}
	if found := m.discoverByKeywordSearch(ctx, local); found != nil {
		return found, nil
	}
	return nil, fmt.Errorf("no catalog series found for %q", local.Name)
}

// discoverBySeedSims seeds on any local book with an external ID and asks
// the catalog for everything in the same series. The preferred path: it
// enumerates the catalog's canonical series from the catalog side.
func (m *Matcher) discoverBySeedSims(ctx context.Context, local models.LocalSeries) *models.CatalogSeries {
	for _, book := range local.Books {
		if book.ExternalID == "" {
			continue
		}
		seed, err := m.catalog.GetProduct(ctx, book.ExternalID)
		if err != nil {
			m.log.Debug("Seed product fetch failed", map[string]interface{}{
				"external_id": book.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		sims, err := m.catalog.SimilarProducts(ctx, book.ExternalID, "same-series")
		if err != nil {
			m.log.Debug("Seed sims fetch failed", map[string]interface{}{
				"external_id": book.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		series := m.assembleSeries(seed, sims)
		if len(series.Books) > 0 {
			return series
		}
	}
	return nil
}

// discoverByLocalIDs fetches each local book's product record and collects
// any series membership those records carry
func (m *Matcher) discoverByLocalIDs(ctx context.Context, local models.LocalSeries) *models.CatalogSeries {
	out := &models.CatalogSeries{}
	seen := map[string]bool{}
	for _, book := range local.Books {
		if book.ExternalID == "" {
			continue
		}
		p, err := m.catalog.GetProduct(ctx, book.ExternalID)
		if err != nil || p.PrimarySeries() == nil {
			continue
		}
		if out.ExternalID == "" {
			out.ExternalID = p.PrimarySeries().ExternalID
			out.Title = p.PrimarySeries().Title
		}
		if !seen[p.ExternalID] {
			seen[p.ExternalID] = true
			out.Books = append(out.Books, m.toSeriesBook(p))
		}
	}
	if len(out.Books) == 0 {
		return nil
	}
	return out
}

// discoverByKeywordSearch searches the catalog by series name and primary
// local author, keeping results whose catalog-side series name fuzzy-
// matches the local one
func (m *Matcher) discoverByKeywordSearch(ctx context.Context, local models.LocalSeries) *models.CatalogSeries {
	author := ""
	for _, book := range local.Books {
		if book.Author != "" {
			author = book.Author
			break
		}
	}

	products, err := m.catalog.Search(ctx, catalog.SearchQuery{
		Keywords: local.Name,
		Author:   author,
		PageSize: 50,
	})
	if err != nil {
		m.log.Debug("Keyword search failed", map[string]interface{}{
			"series": local.Name,
			"error":  err.Error(),
		})
		return nil
	}

	wanted := NormalizeSeriesName(local.Name)
	out := &models.CatalogSeries{Title: local.Name}
	seen := map[string]bool{}
	for i := range products {
		ref := products[i].PrimarySeries()
		if ref == nil || seen[products[i].ExternalID] {
			continue
		}
		if levenshteinRatio(wanted, NormalizeSeriesName(ref.Title)) < m.minScore {
			continue
		}
		if out.ExternalID == "" {
			out.ExternalID = ref.ExternalID
			out.Title = ref.Title
		}
		seen[products[i].ExternalID] = true
		out.Books = append(out.Books, m.toSeriesBook(&products[i]))
	}
	if len(out.Books) == 0 {
		return nil
	}
	return out
}

// CompareSeries reconciles one local series against the catalog
func (m *Matcher) CompareSeries(ctx context.Context, local models.LocalSeries) *models.SeriesComparisonResult {
	result := &models.SeriesComparisonResult{
		LocalSeries: local,
		LocalCount:  len(local.Books),
	}

	catalogSeries, err := m.DiscoverSeries(ctx, local)
	if err != nil {
		m.log.Warn("Series discovery failed", map[string]interface{}{
			"series": local.Name,
			"error":  err.Error(),
		})
		result.Warnings = append(result.Warnings, models.WarningMissingMetadata)
		return result
	}

	result.CatalogSeries = catalogSeries
	result.CatalogCount = len(catalogSeries.Books)

	matchedCatalogIDs := map[string]bool{}
	for _, book := range local.Books {
		match := MatchBook(book, catalogSeries.Books, m.minScore)
		result.Matches = append(result.Matches, match)
		if match.Matched() {
			result.MatchedCount++
			matchedCatalogIDs[match.CatalogBook.ExternalID] = true
		}
	}

	for i := range catalogSeries.Books {
		cb := &catalogSeries.Books[i]
		if matchedCatalogIDs[cb.ExternalID] {
			continue
		}
		result.MissingBooks = append(result.MissingBooks, models.MissingBook{
			ExternalID:     cb.ExternalID,
			Title:          cb.Title,
			Sequence:       cb.Sequence,
			Authors:        cb.Authors,
			Narrators:      cb.Narrators,
			RuntimeMinutes: cb.RuntimeMinutes,
			Pricing:        cb.Pricing,
			Subscription:   cb.Subscription,
			CatalogURL:     m.catalog.ProductURL(cb.ExternalID),
		})
	}
	result.MissingCount = len(result.MissingBooks)

	if result.LocalCount > result.CatalogCount && result.CatalogCount > 0 {
		result.Warnings = append(result.Warnings, models.WarningPotentialDupes)
	}
	return result
}

// AnalyzeLibrary reconciles every series in a library. A second pass
// flags pairs of local series that resolved to the same catalog series.
// Per-series failures are logged and skipped.
func (m *Matcher) AnalyzeLibrary(ctx context.Context, libraryID string, minBooksPerSeries, limit int) (*models.LibrarySeriesReport, error) {
	allSeries, err := m.library.ListSeries(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	var kept []models.LocalSeries
	for _, s := range allSeries {
		if minBooksPerSeries > 0 && len(s.Books) < minBooksPerSeries {
			continue
		}
		kept = append(kept, s)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	report := &models.LibrarySeriesReport{TotalSeries: len(kept)}
	started := time.Now()

	for _, local := range kept {
		result := m.CompareSeries(ctx, local)
		report.Results = append(report.Results, *result)

		if result.CatalogSeries != nil {
			report.MatchedSeries++
			if result.IsComplete() {
				report.CompleteSeries++
			}
			report.TotalMissingBooks += result.MissingCount
			for _, missing := range result.MissingBooks {
				report.TotalMissingHours += float64(missing.RuntimeMinutes) / 60
			}
		}
	}

	// Second pass: two local series resolving to the same catalog series
	// usually means a split or misnamed series locally
	byCatalogID := map[string][]int{}
	for i := range report.Results {
		if cs := report.Results[i].CatalogSeries; cs != nil && cs.ExternalID != "" {
			byCatalogID[cs.ExternalID] = append(byCatalogID[cs.ExternalID], i)
		}
	}
	for _, indexes := range byCatalogID {
		if len(indexes) < 2 {
			continue
		}
		for _, i := range indexes {
			if !report.Results[i].HasWarning(models.WarningDuplicateExternalID) {
				report.Results[i].Warnings = append(report.Results[i].Warnings, models.WarningDuplicateExternalID)
			}
		}
	}

	m.log.Info("Library series analysis complete", map[string]interface{}{
		"library_id": libraryID,
		"series":     report.TotalSeries,
		"matched":    report.MatchedSeries,
		"complete":   report.CompleteSeries,
		"missing":    report.TotalMissingBooks,
		"elapsed":    time.Since(started).String(),
	})
	return report, nil
}
