package models

import "time"

// UpgradeCandidate is one library item flagged for replacement, with its
// catalog enrichment when a catalog client was available
type UpgradeCandidate struct {
	Quality    AudioQuality `json:"quality"`
	Enrichment *Enrichment  `json:"enrichment"`
	// FinalPriority is upgrade priority scaled by the enrichment boost
	FinalPriority float64 `json:"finalPriority"`
}

// UpgradeCounters buckets the candidates that survived analysis
type UpgradeCounters struct {
	SubscriptionIncluded int `json:"subscriptionIncluded"`
	MonthlyDeals         int `json:"monthlyDeals"`
	GoodDeals            int `json:"goodDeals"`
	AlreadyOwned         int `json:"alreadyOwned"`
	SpatialAvailable     int `json:"spatialAvailable"`
}

// UpgradeScanResult is the outcome of one upgrade-finder run
type UpgradeScanResult struct {
	LibraryID      string             `json:"libraryId"`
	Candidates     []UpgradeCandidate `json:"candidates"`
	Counters       UpgradeCounters    `json:"counters"`
	TotalItems     int                `json:"totalItems"`
	BelowThreshold int                `json:"belowThreshold"`
	Enriched       int                `json:"enriched"`
	ScanDuration   time.Duration      `json:"scanDuration"`
	EnrichDuration time.Duration      `json:"enrichDuration"`
	CacheHits      int64              `json:"cacheHits"`
	APICalls       int64              `json:"apiCalls"`
}
