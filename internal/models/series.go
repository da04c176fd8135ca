package models

// LocalSeriesBook is one book of a series as the library knows it
type LocalSeriesBook struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Sequence   string  `json:"sequence"`
	ExternalID string  `json:"externalId"`
	Author     string  `json:"author"`
	Narrator   string  `json:"narrator,omitempty"`
	Duration   float64 `json:"duration"` // seconds
}

// LocalSeries is a series as assembled from the library server
type LocalSeries struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Books []LocalSeriesBook `json:"books"`
}

// CatalogSeriesBook is one book of a series as the catalog knows it
type CatalogSeriesBook struct {
	ExternalID     string                 `json:"externalId"`
	Title          string                 `json:"title"`
	Sequence       string                 `json:"sequence"`
	Authors        []string               `json:"authors"`
	Narrators      []string               `json:"narrators"`
	RuntimeMinutes int                    `json:"runtimeMinutes"`
	Pricing        *PricingInfo           `json:"pricing"`
	Subscription   *SubscriptionInclusion `json:"subscription"`
}

// CatalogSeries is the catalog's view of a series
type CatalogSeries struct {
	ExternalID string              `json:"externalId"`
	Title      string              `json:"title"`
	Books      []CatalogSeriesBook `json:"books"`
}

// MatchConfidence buckets a match score
type MatchConfidence string

const (
	ConfidenceExact  MatchConfidence = "exact"
	ConfidenceHigh   MatchConfidence = "high"
	ConfidenceMedium MatchConfidence = "medium"
	ConfidenceLow    MatchConfidence = "low"
	ConfidenceNone   MatchConfidence = "none"
)

// ConfidenceForScore maps a 0-100 match score onto a confidence bucket.
// Boundaries are inclusive from above: 100 exact, >=90 high, >=75 medium,
// >=60 low, below that none.
func ConfidenceForScore(score float64) MatchConfidence {
	switch {
	case score >= 100:
		return ConfidenceExact
	case score >= 90:
		return ConfidenceHigh
	case score >= 75:
		return ConfidenceMedium
	case score >= 60:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// MatchResult pairs a local book with its best catalog candidate
type MatchResult struct {
	LocalBook   LocalSeriesBook    `json:"localBook"`
	CatalogBook *CatalogSeriesBook `json:"catalogBook"`
	Score       float64            `json:"score"`
	Confidence  MatchConfidence    `json:"confidence"`
	Strategy    string             `json:"strategy"`
}

// Matched reports whether a catalog book was found for the local book
func (m *MatchResult) Matched() bool {
	return m.CatalogBook != nil
}

// MissingBook is a catalog series member absent from the local library
type MissingBook struct {
	ExternalID     string                 `json:"externalId"`
	Title          string                 `json:"title"`
	Sequence       string                 `json:"sequence"`
	Authors        []string               `json:"authors"`
	Narrators      []string               `json:"narrators"`
	RuntimeMinutes int                    `json:"runtimeMinutes"`
	Pricing        *PricingInfo           `json:"pricing"`
	Subscription   *SubscriptionInclusion `json:"subscription"`
	CatalogURL     string                 `json:"catalogUrl"`
}

// Series comparison warnings
const (
	WarningDuplicateExternalID = "DUPLICATE_EXTERNAL_ID"
	WarningMissingMetadata     = "MISSING_METADATA"
	WarningPotentialDupes      = "POTENTIAL_DUPES"
)

// SeriesComparisonResult is the outcome of reconciling one local series
// against the catalog
type SeriesComparisonResult struct {
	LocalSeries   LocalSeries    `json:"localSeries"`
	CatalogSeries *CatalogSeries `json:"catalogSeries"`
	Matches       []MatchResult  `json:"matches"`
	MissingBooks  []MissingBook  `json:"missingBooks"`
	MatchedCount  int            `json:"matchedCount"`
	MissingCount  int            `json:"missingCount"`
	LocalCount    int            `json:"localCount"`
	CatalogCount  int            `json:"catalogCount"`
	Warnings      []string       `json:"warnings"`
}

// CompletionPercentage is matched/catalog when the catalog side is known.
// With no catalog books it degrades to 100 when anything is owned locally,
// otherwise 0. May exceed 100 when local duplicates resolve to one catalog
// book.
func (r *SeriesComparisonResult) CompletionPercentage() float64 {
	if r.CatalogCount > 0 {
		return roundTo(float64(r.MatchedCount)/float64(r.CatalogCount)*100, 1)
	}
	if r.LocalCount > 0 {
		return 100
	}
	return 0
}

// IsComplete reports whether no catalog books are missing locally
func (r *SeriesComparisonResult) IsComplete() bool {
	return r.MissingCount == 0
}

// HasWarning reports whether the named warning was recorded
func (r *SeriesComparisonResult) HasWarning(w string) bool {
	for _, have := range r.Warnings {
		if have == w {
			return true
		}
	}
	return false
}

// LibrarySeriesReport aggregates the whole-library series reconciliation
type LibrarySeriesReport struct {
	TotalSeries       int                      `json:"totalSeries"`
	MatchedSeries     int                      `json:"matchedSeries"`
	CompleteSeries    int                      `json:"completeSeries"`
	TotalMissingBooks int                      `json:"totalMissingBooks"`
	TotalMissingHours float64                  `json:"totalMissingHours"`
	Results           []SeriesComparisonResult `json:"results"`
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}
