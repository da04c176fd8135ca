package models

import "time"

// SeriesRef is a catalog-side series membership record. Sequence is kept as
// a string: catalogs use values like "1.5", "0" and "Novella".
type SeriesRef struct {
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	Sequence   string `json:"sequence"`
}

// SubscriptionPlan is one subscription-inclusion record on a catalog product
type SubscriptionPlan struct {
	Name      string     `json:"name"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// CatalogProduct is one book in the commercial catalog
type CatalogProduct struct {
	ExternalID     string             `json:"externalId"`
	Title          string             `json:"title"`
	Subtitle       string             `json:"subtitle,omitempty"`
	Authors        []string           `json:"authors"`
	Narrators      []string           `json:"narrators"`
	RuntimeMinutes int                `json:"runtimeMinutes"`
	ReleaseDate    *time.Time         `json:"releaseDate"`
	ListPrice      *float64           `json:"listPrice"`
	SalePrice      *float64           `json:"salePrice"`
	CreditPrice    *float64           `json:"creditPrice"`
	Currency       string             `json:"currency"`
	Plans          []SubscriptionPlan `json:"plans"`
	Codecs         []CodecInfo        `json:"codecs"`
	CoverURLs      []string           `json:"coverUrls"`
	Series         []SeriesRef        `json:"series"`
	Language       string             `json:"language,omitempty"`
	PublisherName  string             `json:"publisherName,omitempty"`
}

// PrimaryAuthor returns the first author, or empty
func (p *CatalogProduct) PrimaryAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0]
}

// PrimarySeries returns the first series reference, or nil
func (p *CatalogProduct) PrimarySeries() *SeriesRef {
	if len(p.Series) == 0 {
		return nil
	}
	return &p.Series[0]
}

// CodecInfo describes one audio format the catalog can deliver
type CodecInfo struct {
	Name         string `json:"name"`
	EnhancedName string `json:"enhancedName,omitempty"`
	Format       string `json:"format,omitempty"`
	IsSpatial    bool   `json:"isSpatial"`
}

// ContentFormat is one discovered deliverable format with a derived bitrate
type ContentFormat struct {
	Codec       string  `json:"codec"`
	DrmVariant  string  `json:"drmVariant"`
	SizeBytes   int64   `json:"sizeBytes"`
	RuntimeMs   int64   `json:"runtimeMs"`
	BitrateKbps float64 `json:"bitrateKbps"`
	IsSpatial   bool    `json:"isSpatial"`
}

// ContentQualityInfo aggregates the formats discovered for one product
type ContentQualityInfo struct {
	ExternalID string          `json:"externalId"`
	Formats    []ContentFormat `json:"formats"`
	BestFormat *ContentFormat  `json:"bestFormat"`
	HasSpatial bool            `json:"hasSpatial"`
}

// ChapterInfo is one chapter from the content metadata endpoint
type ChapterInfo struct {
	Title         string `json:"title"`
	StartOffsetMs int64  `json:"startOffsetMs"`
	LengthMs      int64  `json:"lengthMs"`
}
