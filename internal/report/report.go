// Package report turns scan results into machine-readable JSON extracts
// and human-readable text summaries. Extract shapes are stable: every
// numeric field is always present and every optional field serializes as
// an explicit null rather than being omitted.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mgrantham/shelfscout/internal/models"
)

// SchemaVersion is bumped whenever an extract shape changes incompatibly
const SchemaVersion = 1

// Meta heads every extract document
type Meta struct {
	SchemaVersion int       `json:"schemaVersion"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// PricingExtract flattens pricing with its derived values
type PricingExtract struct {
	ListPrice       *float64 `json:"listPrice"`
	SalePrice       *float64 `json:"salePrice"`
	CreditPrice     *float64 `json:"creditPrice"`
	EffectivePrice  *float64 `json:"effectivePrice"`
	Currency        string   `json:"currency"`
	PriceType       string   `json:"priceType"`
	DiscountPercent float64  `json:"discountPercent"`
	IsMonthlyDeal   bool     `json:"isMonthlyDeal"`
}

// SubscriptionExtract flattens subscription inclusion with its derived values
type SubscriptionExtract struct {
	IsIncludedFree bool       `json:"isIncludedFree"`
	PlanName       *string    `json:"planName"`
	ExpirationDate *time.Time `json:"expirationDate"`
	IsExpiringSoon bool       `json:"isExpiringSoon"`
}

// EnrichmentExtract is the catalog-side view of one upgrade candidate
type EnrichmentExtract struct {
	Owned            bool                 `json:"owned"`
	Pricing          *PricingExtract      `json:"pricing"`
	Subscription     *SubscriptionExtract `json:"subscription"`
	BestBitrateKbps  float64              `json:"bestBitrateKbps"`
	SpatialAvailable bool                 `json:"spatialAvailable"`
	Recommendation   string               `json:"recommendation"`
	PriorityBoost    float64              `json:"priorityBoost"`
	CatalogURL       string               `json:"catalogUrl"`
}

// UpgradeCandidateExtract is one ranked upgrade candidate
type UpgradeCandidateExtract struct {
	Rank            int                `json:"rank"`
	ItemID          string             `json:"itemId"`
	ExternalID      string             `json:"externalId"`
	Title           string             `json:"title"`
	Author          string             `json:"author"`
	BitrateKbps     float64            `json:"bitrateKbps"`
	Format          string             `json:"format"`
	Tier            string             `json:"tier"`
	Score           float64            `json:"score"`
	UpgradePriority int                `json:"upgradePriority"`
	UpgradeReason   *string            `json:"upgradeReason"`
	FinalPriority   float64            `json:"finalPriority"`
	Enrichment      *EnrichmentExtract `json:"enrichment"`
}

// UpgradeSummary carries the run totals
type UpgradeSummary struct {
	TotalItems     int     `json:"totalItems"`
	BelowThreshold int     `json:"belowThreshold"`
	Enriched       int     `json:"enriched"`
	Candidates     int     `json:"candidates"`
	ScanSeconds    float64 `json:"scanSeconds"`
	EnrichSeconds  float64 `json:"enrichSeconds"`
	CacheHits      int64   `json:"cacheHits"`
	APICalls       int64   `json:"apiCalls"`
}

// UpgradeExtract is the machine-readable document for one finder run
type UpgradeExtract struct {
	Meta       Meta                      `json:"meta"`
	LibraryID  string                    `json:"libraryId"`
	Summary    UpgradeSummary            `json:"summary"`
	Counters   models.UpgradeCounters    `json:"counters"`
	Candidates []UpgradeCandidateExtract `json:"candidates"`
}

// BuildUpgrade assembles the extract document for one finder run
func BuildUpgrade(result *models.UpgradeScanResult, now time.Time) *UpgradeExtract {
	doc := &UpgradeExtract{
		Meta:      Meta{SchemaVersion: SchemaVersion, GeneratedAt: now.UTC()},
		LibraryID: result.LibraryID,
		Summary: UpgradeSummary{
			TotalItems:     result.TotalItems,
			BelowThreshold: result.BelowThreshold,
			Enriched:       result.Enriched,
			Candidates:     len(result.Candidates),
			ScanSeconds:    result.ScanDuration.Seconds(),
			EnrichSeconds:  result.EnrichDuration.Seconds(),
			CacheHits:      result.CacheHits,
			APICalls:       result.APICalls,
		},
		Counters:   result.Counters,
		Candidates: make([]UpgradeCandidateExtract, 0, len(result.Candidates)),
	}
	for i, c := range result.Candidates {
		doc.Candidates = append(doc.Candidates, candidateExtract(i+1, c, now))
	}
	return doc
}

func candidateExtract(rank int, c models.UpgradeCandidate, now time.Time) UpgradeCandidateExtract {
	out := UpgradeCandidateExtract{
		Rank:            rank,
		ItemID:          c.Quality.ItemID,
		ExternalID:      c.Quality.ExternalID,
		Title:           c.Quality.Title,
		Author:          c.Quality.Author,
		BitrateKbps:     c.Quality.BitrateKbps,
		Format:          c.Quality.FormatLabel,
		Tier:            c.Quality.TierName,
		Score:           c.Quality.Score,
		UpgradePriority: c.Quality.UpgradePriority,
		UpgradeReason:   optString(c.Quality.UpgradeReason),
		FinalPriority:   c.FinalPriority,
	}
	if e := c.Enrichment; e != nil {
		out.Enrichment = &EnrichmentExtract{
			Owned:            e.Owned,
			Pricing:          pricingExtract(e.Pricing),
			Subscription:     subscriptionExtract(e.Subscription, now),
			BestBitrateKbps:  e.BestBitrateKbps,
			SpatialAvailable: e.SpatialAvailable,
			Recommendation:   e.Recommendation,
			PriorityBoost:    e.PriorityBoost,
			CatalogURL:       e.CatalogURL,
		}
	}
	return out
}

func pricingExtract(p *models.PricingInfo) *PricingExtract {
	if p == nil {
		return nil
	}
	return &PricingExtract{
		ListPrice:       p.ListPrice,
		SalePrice:       p.SalePrice,
		CreditPrice:     p.CreditPrice,
		EffectivePrice:  p.EffectivePrice(),
		Currency:        p.Currency,
		PriceType:       string(p.PriceType),
		DiscountPercent: p.DiscountPercent(),
		IsMonthlyDeal:   p.IsMonthlyDeal,
	}
}

func subscriptionExtract(s *models.SubscriptionInclusion, now time.Time) *SubscriptionExtract {
	if s == nil {
		return nil
	}
	return &SubscriptionExtract{
		IsIncludedFree: s.IsIncludedFree,
		PlanName:       optString(s.PlanName),
		ExpirationDate: s.ExpirationDate,
		IsExpiringSoon: s.IsExpiringSoon(now),
	}
}

// MatchExtract is one local book's reconciliation outcome
type MatchExtract struct {
	LocalID      string  `json:"localId"`
	LocalTitle   string  `json:"localTitle"`
	CatalogID    *string `json:"catalogId"`
	CatalogTitle *string `json:"catalogTitle"`
	Score        float64 `json:"score"`
	Confidence   string  `json:"confidence"`
	Strategy     string  `json:"strategy"`
}

// MissingBookExtract is a catalog series member absent locally
type MissingBookExtract struct {
	ExternalID     string               `json:"externalId"`
	Title          string               `json:"title"`
	Sequence       string               `json:"sequence"`
	Authors        []string             `json:"authors"`
	RuntimeMinutes int                  `json:"runtimeMinutes"`
	Pricing        *PricingExtract      `json:"pricing"`
	Subscription   *SubscriptionExtract `json:"subscription"`
	CatalogURL     string               `json:"catalogUrl"`
}

// SeriesResultExtract is the reconciliation of one local series
type SeriesResultExtract struct {
	LocalID           string               `json:"localId"`
	Name              string               `json:"name"`
	CatalogID         *string              `json:"catalogId"`
	CatalogTitle      *string              `json:"catalogTitle"`
	LocalCount        int                  `json:"localCount"`
	CatalogCount      int                  `json:"catalogCount"`
	MatchedCount      int                  `json:"matchedCount"`
	MissingCount      int                  `json:"missingCount"`
	CompletionPercent float64              `json:"completionPercent"`
	IsComplete        bool                 `json:"isComplete"`
	Warnings          []string             `json:"warnings"`
	Matches           []MatchExtract       `json:"matches"`
	MissingBooks      []MissingBookExtract `json:"missingBooks"`
}

// SeriesSummary carries the whole-library totals
type SeriesSummary struct {
	TotalSeries       int     `json:"totalSeries"`
	MatchedSeries     int     `json:"matchedSeries"`
	CompleteSeries    int     `json:"completeSeries"`
	TotalMissingBooks int     `json:"totalMissingBooks"`
	TotalMissingHours float64 `json:"totalMissingHours"`
}

// SeriesExtract is the machine-readable document for one library pass
type SeriesExtract struct {
	Meta      Meta                  `json:"meta"`
	LibraryID string                `json:"libraryId"`
	Summary   SeriesSummary         `json:"summary"`
	Series    []SeriesResultExtract `json:"series"`
}

// BuildSeries assembles the extract document for a whole-library pass
func BuildSeries(libraryID string, rep *models.LibrarySeriesReport, now time.Time) *SeriesExtract {
	doc := &SeriesExtract{
		Meta:      Meta{SchemaVersion: SchemaVersion, GeneratedAt: now.UTC()},
		LibraryID: libraryID,
		Summary: SeriesSummary{
			TotalSeries:       rep.TotalSeries,
			MatchedSeries:     rep.MatchedSeries,
			CompleteSeries:    rep.CompleteSeries,
			TotalMissingBooks: rep.TotalMissingBooks,
			TotalMissingHours: rep.TotalMissingHours,
		},
		Series: make([]SeriesResultExtract, 0, len(rep.Results)),
	}
	for i := range rep.Results {
		doc.Series = append(doc.Series, seriesResultExtract(&rep.Results[i], now))
	}
	return doc
}

func seriesResultExtract(r *models.SeriesComparisonResult, now time.Time) SeriesResultExtract {
	out := SeriesResultExtract{
		LocalID:           r.LocalSeries.ID,
		Name:              r.LocalSeries.Name,
		LocalCount:        r.LocalCount,
		CatalogCount:      r.CatalogCount,
		MatchedCount:      r.MatchedCount,
		MissingCount:      r.MissingCount,
		CompletionPercent: r.CompletionPercentage(),
		IsComplete:        r.IsComplete(),
		Warnings:          emptyIfNil(r.Warnings),
		Matches:           make([]MatchExtract, 0, len(r.Matches)),
		MissingBooks:      make([]MissingBookExtract, 0, len(r.MissingBooks)),
	}
	if cs := r.CatalogSeries; cs != nil {
		out.CatalogID = optString(cs.ExternalID)
		title := cs.Title
		out.CatalogTitle = &title
	}
	for _, m := range r.Matches {
		me := MatchExtract{
			LocalID:    m.LocalBook.ID,
			LocalTitle: m.LocalBook.Title,
			Score:      m.Score,
			Confidence: string(m.Confidence),
			Strategy:   m.Strategy,
		}
		if m.CatalogBook != nil {
			id := m.CatalogBook.ExternalID
			title := m.CatalogBook.Title
			me.CatalogID = &id
			me.CatalogTitle = &title
		}
		out.Matches = append(out.Matches, me)
	}
	for _, b := range r.MissingBooks {
		out.MissingBooks = append(out.MissingBooks, MissingBookExtract{
			ExternalID:     b.ExternalID,
			Title:          b.Title,
			Sequence:       b.Sequence,
			Authors:        emptyIfNil(b.Authors),
			RuntimeMinutes: b.RuntimeMinutes,
			Pricing:        pricingExtract(b.Pricing),
			Subscription:   subscriptionExtract(b.Subscription, now),
			CatalogURL:     b.CatalogURL,
		})
	}
	return out
}

// Encode writes a document as indented JSON to w
func Encode(w io.Writer, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteFile writes a document as indented JSON to path
func WriteFile(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
