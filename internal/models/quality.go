package models

// FormatRank classifies a container/codec combination for comparison purposes.
// Several ranks share a score but stay distinguishable by label; collapsing
// them into one variant loses information the reports rely on.
type FormatRank int

const (
	// FormatM4BAAC is AAC audio in a premium audiobook container (m4b/m4a)
	FormatM4BAAC FormatRank = iota
	// FormatAAC is AAC audio outside a premium container
	FormatAAC
	// FormatMP3 is MPEG layer 3 audio
	FormatMP3
	// FormatOpus is Opus audio
	FormatOpus
	// FormatFLAC is lossless FLAC audio
	FormatFLAC
	// FormatOther is anything not otherwise classified
	FormatOther
)

// Label returns the stable string identity of the rank
func (r FormatRank) Label() string {
	switch r {
	case FormatM4BAAC:
		return "m4b-aac"
	case FormatAAC:
		return "aac"
	case FormatMP3:
		return "mp3"
	case FormatOpus:
		return "opus"
	case FormatFLAC:
		return "flac"
	default:
		return "other"
	}
}

// Score returns the comparison score for the rank. MP3, Opus and FLAC are
// deliberately tied; use Label to tell them apart.
func (r FormatRank) Score() int {
	switch r {
	case FormatM4BAAC:
		return 10
	case FormatAAC:
		return 8
	case FormatMP3, FormatOpus, FormatFLAC:
		return 5
	default:
		return 1
	}
}

func (r FormatRank) String() string {
	return r.Label()
}

// AllFormatRanks lists every rank variant, for iteration in tests and reports
func AllFormatRanks() []FormatRank {
	return []FormatRank{FormatM4BAAC, FormatAAC, FormatMP3, FormatOpus, FormatFLAC, FormatOther}
}

// QualityTier is a coarse quality classification, totally ordered by
// ascending tier number (lower is better)
type QualityTier int

const (
	TierExcellent QualityTier = 1
	TierBetter    QualityTier = 2
	TierGood      QualityTier = 3
	TierLow       QualityTier = 4
	TierPoor      QualityTier = 5
	TierUnknown   QualityTier = 99
)

func (t QualityTier) String() string {
	switch t {
	case TierExcellent:
		return "excellent"
	case TierBetter:
		return "better"
	case TierGood:
		return "good"
	case TierLow:
		return "low"
	case TierPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// BetterThan reports whether t is a strictly higher quality tier than other
func (t QualityTier) BetterThan(other QualityTier) bool {
	return t < other
}

// AudioQuality is the result of analyzing one library item
type AudioQuality struct {
	ItemID          string      `json:"itemId"`
	ExternalID      string      `json:"externalId"`
	Title           string      `json:"title"`
	Author          string      `json:"author"`
	BitrateKbps     float64     `json:"bitrateKbps"`
	Format          FormatRank  `json:"-"`
	FormatLabel     string      `json:"format"`
	Codec           string      `json:"codec"`
	Channels        int         `json:"channels"`
	ChannelLayout   string      `json:"channelLayout,omitempty"`
	DurationHours   float64     `json:"durationHours"`
	SizeBytes       int64       `json:"sizeBytes"`
	IsSpatial       bool        `json:"isSpatial"`
	Tier            QualityTier `json:"tier"`
	TierName        string      `json:"tierName"`
	Score           float64     `json:"score"`
	UpgradePriority int         `json:"upgradePriority"`
	UpgradeReason   string      `json:"upgradeReason,omitempty"`
}

// NeedsUpgrade reports whether the analyzer flagged this item for replacement
func (q *AudioQuality) NeedsUpgrade() bool {
	return q.UpgradePriority > 0
}
