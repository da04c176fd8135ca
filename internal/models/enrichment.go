package models

// Enrichment joins catalog-side data onto one external ID: ownership,
// pricing, subscription inclusion, and the best deliverable audio quality
type Enrichment struct {
	ExternalID       string                 `json:"externalId"`
	Title            string                 `json:"title"`
	Authors          []string               `json:"authors"`
	Owned            bool                   `json:"owned"`
	Pricing          *PricingInfo           `json:"pricing"`
	Subscription     *SubscriptionInclusion `json:"subscription"`
	Codecs           []CodecInfo            `json:"codecs"`
	BestBitrateKbps  float64                `json:"bestBitrateKbps"`
	SpatialAvailable bool                   `json:"spatialAvailable"`
	CoverURLs        []string               `json:"coverUrls,omitempty"`
	CatalogURL       string                 `json:"catalogUrl"`
	Recommendation   string                 `json:"recommendation"`
	PriorityBoost    float64                `json:"priorityBoost"`
}

// IsFree reports whether the product is included in a subscription
func (e *Enrichment) IsFree() bool {
	return e.Subscription != nil && e.Subscription.IsIncludedFree
}
