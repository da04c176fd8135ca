// Package quality derives a tier, score and upgrade priority from the raw
// audio metadata of a library item. The analyzer is pure: same input, same
// output, no I/O.
package quality

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/mgrantham/shelfscout/internal/models"
)

// Thresholds configure the analyzer. Zero values fall back to defaults.
type Thresholds struct {
	ExcellentKbps      float64
	GoodKbps           float64
	AcceptableKbps     float64
	LowKbps            float64
	SpatialCodecs      []string
	SpatialMinChannels int
	PremiumContainers  []string
}

// DefaultThresholds returns the stock configuration
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExcellentKbps:      256,
		GoodKbps:           128,
		AcceptableKbps:     110,
		LowKbps:            64,
		SpatialCodecs:      []string{"eac3", "truehd", "ac3"},
		SpatialMinChannels: 6,
		PremiumContainers:  []string{"m4b", "m4a"},
	}
}

// Analyzer classifies library items against a fixed set of thresholds
type Analyzer struct {
	cfg            Thresholds
	spatialCodecs  map[string]bool
	premiumFormats map[string]bool
}

// NewAnalyzer builds an analyzer, filling unset thresholds from defaults
func NewAnalyzer(cfg Thresholds) *Analyzer {
	def := DefaultThresholds()
	if cfg.ExcellentKbps <= 0 {
		cfg.ExcellentKbps = def.ExcellentKbps
	}
	if cfg.GoodKbps <= 0 {
		cfg.GoodKbps = def.GoodKbps
	}
	if cfg.AcceptableKbps <= 0 {
		cfg.AcceptableKbps = def.AcceptableKbps
	}
	if cfg.LowKbps <= 0 {
		cfg.LowKbps = def.LowKbps
	}
	if len(cfg.SpatialCodecs) == 0 {
		cfg.SpatialCodecs = def.SpatialCodecs
	}
	if cfg.SpatialMinChannels <= 0 {
		cfg.SpatialMinChannels = def.SpatialMinChannels
	}
	if len(cfg.PremiumContainers) == 0 {
		cfg.PremiumContainers = def.PremiumContainers
	}

	a := &Analyzer{
		cfg:            cfg,
		spatialCodecs:  map[string]bool{},
		premiumFormats: map[string]bool{},
	}
	for _, codec := range cfg.SpatialCodecs {
		a.spatialCodecs[strings.ToLower(codec)] = true
	}
	for _, container := range cfg.PremiumContainers {
		a.premiumFormats[strings.ToLower(container)] = true
	}
	return a
}

// Analyze classifies one library item. Items with no audio files come back
// TierUnknown with zero scores.
func (a *Analyzer) Analyze(item *models.LibraryItem) models.AudioQuality {
	q := models.AudioQuality{
		ItemID:     item.ID,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Author:     item.Author,
		SizeBytes:  item.SizeBytes,
		Tier:       models.TierUnknown,
	}
	q.TierName = q.Tier.String()

	if len(item.AudioFiles) == 0 {
		q.Format = models.FormatOther
		q.FormatLabel = q.Format.Label()
		return q
	}

	first := item.AudioFiles[0]
	q.Codec = strings.ToLower(first.Codec)
	q.Channels = first.Channels
	q.ChannelLayout = first.ChannelLayout

	totalDuration := item.TotalDuration()
	q.DurationHours = totalDuration / 3600
	q.BitrateKbps = aggregateBitrateKbps(item.AudioFiles, totalDuration)
	q.Format = classifyFormat(first)
	q.FormatLabel = q.Format.Label()
	q.IsSpatial = a.isSpatial(first)

	q.Tier = a.tier(q.BitrateKbps, q.Format, q.IsSpatial)
	q.TierName = q.Tier.String()
	q.Score = a.score(q.BitrateKbps, first.Filename, q.Format, q.IsSpatial)
	q.UpgradePriority, q.UpgradeReason = a.priority(&q)
	return q
}

// AnalyzeAll classifies a batch of items, preserving order
func (a *Analyzer) AnalyzeAll(items []models.LibraryItem) []models.AudioQuality {
	out := make([]models.AudioQuality, 0, len(items))
	for i := range items {
		out = append(out, a.Analyze(&items[i]))
	}
	return out
}

// aggregateBitrateKbps is the duration-weighted mean bitrate across all
// files. A zero total duration falls back to the first file's raw bitrate.
func aggregateBitrateKbps(files []models.AudioFile, totalDuration float64) float64 {
	if totalDuration <= 0 {
		return float64(files[0].Bitrate) / 1000
	}
	var weighted float64
	for _, f := range files {
		weighted += float64(f.Bitrate) * f.Duration
	}
	return weighted / totalDuration / 1000
}

// classifyFormat derives a rank from the filename extension when present,
// otherwise from the codec and MIME type
func classifyFormat(f models.AudioFile) models.FormatRank {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Filename), "."))
	codec := strings.ToLower(f.Codec)
	mime := strings.ToLower(f.MimeType)

	switch ext {
	case "m4b", "m4a":
		return models.FormatM4BAAC
	case "mp3":
		return models.FormatMP3
	case "opus", "ogg":
		return models.FormatOpus
	case "flac":
		return models.FormatFLAC
	}

	switch {
	case codec == "mp3" || strings.Contains(mime, "mpeg"):
		return models.FormatMP3
	case codec == "opus" || strings.Contains(mime, "opus") || strings.Contains(mime, "ogg"):
		return models.FormatOpus
	case codec == "flac" || strings.Contains(mime, "flac"):
		return models.FormatFLAC
	case codec == "aac" || strings.Contains(codec, "aac"):
		if strings.Contains(mime, "mp4") || strings.Contains(mime, "m4b") || strings.Contains(mime, "m4a") {
			return models.FormatM4BAAC
		}
		return models.FormatAAC
	}
	return models.FormatOther
}

func (a *Analyzer) isSpatial(f models.AudioFile) bool {
	if a.spatialCodecs[strings.ToLower(f.Codec)] && f.Channels >= a.cfg.SpatialMinChannels {
		return true
	}
	return strings.Contains(strings.ToLower(f.ChannelLayout), "atmos")
}

// tier applies the classification rules in order; first match wins
func (a *Analyzer) tier(kbps float64, format models.FormatRank, spatial bool) models.QualityTier {
	if spatial {
		return models.TierExcellent
	}
	if kbps >= a.cfg.ExcellentKbps {
		return models.TierExcellent
	}

	switch format {
	// Bare AAC grades with the m4b/m4a family: the server often reports
	// the codec without a container for MP4-family files, and the stream
	// is the same either way.
	case models.FormatM4BAAC, models.FormatAAC:
		switch {
		case kbps >= a.cfg.GoodKbps:
			return models.TierBetter
		case kbps >= a.cfg.AcceptableKbps:
			return models.TierGood
		case kbps >= a.cfg.LowKbps:
			return models.TierLow
		default:
			return models.TierPoor
		}
	case models.FormatMP3, models.FormatOpus, models.FormatFLAC:
		// One tier stricter than a premium container at the same bitrate
		switch {
		case kbps >= a.cfg.GoodKbps:
			return models.TierGood
		case kbps >= a.cfg.AcceptableKbps:
			return models.TierLow
		default:
			return models.TierPoor
		}
	default:
		switch {
		case kbps >= a.cfg.GoodKbps:
			return models.TierGood
		case kbps >= a.cfg.LowKbps:
			return models.TierLow
		default:
			return models.TierPoor
		}
	}
}

// formatWeight scores the container. m4b outranks m4a even though both
// classify as premium containers, so the extension decides when present.
func formatWeight(filename string, format models.FormatRank) float64 {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "m4b":
		return 30
	case "m4a":
		return 25
	case "flac":
		return 20
	case "mp3", "opus", "ogg":
		return 15
	}
	switch format {
	case models.FormatM4BAAC, models.FormatAAC:
		return 25
	case models.FormatFLAC:
		return 20
	case models.FormatMP3, models.FormatOpus:
		return 15
	default:
		return 10
	}
}

func (a *Analyzer) score(kbps float64, filename string, format models.FormatRank, spatial bool) float64 {
	score := math.Min(60, kbps/256*60)
	score += formatWeight(filename, format)
	if spatial {
		score += 10
	}
	return score
}

// priority returns the upgrade priority and a human-readable reason.
// Zero means no upgrade is needed.
func (a *Analyzer) priority(q *models.AudioQuality) (int, string) {
	var base int
	var reasons []string

	switch q.Tier {
	case models.TierPoor:
		base = 100
		reasons = append(reasons, fmt.Sprintf("poor quality (%.0f kbps)", q.BitrateKbps))
	case models.TierLow:
		base = 50
		reasons = append(reasons, fmt.Sprintf("low quality (%.0f kbps)", q.BitrateKbps))
	case models.TierGood:
		base = 10
		reasons = append(reasons, "could be better")
	default:
		return 0, ""
	}

	if q.ExternalID != "" {
		base += 20
		reasons = append(reasons, "catalog match available")
	}

	sizeGB := float64(q.SizeBytes) / (1024 * 1024 * 1024)
	if efficiency := q.BitrateKbps / math.Max(1, sizeGB*100); efficiency < 1.0 {
		base += 10
		reasons = append(reasons, "inefficient encoding")
	}

	return base, strings.Join(reasons, "; ")
}
