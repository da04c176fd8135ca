package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mgrantham/shelfscout/internal/models"
)

func oneFileItem(f models.AudioFile, size int64) *models.LibraryItem {
	return &models.LibraryItem{
		ID:         "li_1",
		Title:      "Test Book",
		Author:     "Test Author",
		SizeBytes:  size,
		AudioFiles: []models.AudioFile{f},
	}
}

func TestAnalyzePremiumContainerPath(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "book.m4b",
		Codec:    "aac",
		MimeType: "audio/mp4",
		Bitrate:  128000,
		Channels: 2,
		Duration: 3600,
	}, 57_600_000))

	assert.Equal(t, 128.0, q.BitrateKbps)
	assert.Equal(t, models.FormatM4BAAC, q.Format)
	assert.Equal(t, models.TierBetter, q.Tier)
	assert.Equal(t, 60.0, q.Score) // 128/256*60 + 30
	assert.Equal(t, 0, q.UpgradePriority)
	assert.Empty(t, q.UpgradeReason)
}

func TestAnalyzeMP3IsOneTierStricter(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "ch01.mp3",
		Codec:    "mp3",
		Bitrate:  160000,
		Channels: 2,
		Duration: 3600,
	}, 72_000_000))

	assert.Equal(t, 160.0, q.BitrateKbps)
	assert.Equal(t, models.TierGood, q.Tier) // not Better
	assert.InDelta(t, 52.5, q.Score, 0.001)  // 160/256*60 + 15
	assert.Equal(t, 10, q.UpgradePriority)
}

func TestAnalyzeSpatialOverridesBitrate(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "x.m4b",
		Codec:    "eac3",
		Bitrate:  64000,
		Channels: 6,
		Duration: 3600,
	}, 28_800_000))

	assert.True(t, q.IsSpatial)
	assert.Equal(t, models.TierExcellent, q.Tier)
	// 64/256*60 + 30 + 10 spatial bonus
	assert.InDelta(t, 55.0, q.Score, 0.001)
	assert.Equal(t, 0, q.UpgradePriority)
}

func TestAnalyzeAtmosLayoutIsSpatial(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename:      "book.m4b",
		Codec:         "aac",
		Bitrate:       128000,
		Channels:      2,
		ChannelLayout: "Dolby Atmos 5.1.2",
		Duration:      3600,
	}, 57_600_000))

	assert.True(t, q.IsSpatial)
	assert.Equal(t, models.TierExcellent, q.Tier)
}

func TestAnalyzeDurationWeightedBitrate(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	item := &models.LibraryItem{
		ID: "li_2",
		AudioFiles: []models.AudioFile{
			{Filename: "a.m4b", Codec: "aac", Bitrate: 64000, Duration: 3600},
			{Filename: "b.m4b", Codec: "aac", Bitrate: 128000, Duration: 10800},
		},
	}
	q := a.Analyze(item)
	// (64*3600 + 128*10800) / 14400 = 112
	assert.InDelta(t, 112.0, q.BitrateKbps, 0.001)
	assert.Equal(t, models.TierGood, q.Tier)
}

func TestAnalyzeZeroDurationFallsBackToFirstBitrate(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "book.m4b",
		Codec:    "aac",
		Bitrate:  96000,
		Duration: 0,
	}, 0))

	assert.Equal(t, 96.0, q.BitrateKbps)
	assert.Equal(t, models.TierLow, q.Tier)
}

func TestAnalyzeNoAudioFiles(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(&models.LibraryItem{ID: "li_3", Title: "Empty"})

	assert.Equal(t, models.TierUnknown, q.Tier)
	assert.Equal(t, "unknown", q.TierName)
	assert.Zero(t, q.Score)
	assert.Zero(t, q.UpgradePriority)
}

func TestAnalyzeZeroBitrate(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "book.mp3",
		Codec:    "mp3",
		Bitrate:  0,
		Duration: 3600,
	}, 1_000_000))

	assert.Zero(t, q.BitrateKbps)
	assert.Equal(t, models.TierPoor, q.Tier)
	assert.Greater(t, q.UpgradePriority, 0)
}

func TestPriorityBonuses(t *testing.T) {
	a := NewAnalyzer(Thresholds{})

	// Poor tier, external ID present, tiny bitrate relative to size
	item := oneFileItem(models.AudioFile{
		Filename: "book.mp3",
		Codec:    "mp3",
		Bitrate:  32000,
		Duration: 36000,
	}, 10*1024*1024*1024)
	item.ExternalID = "EX001"

	q := a.Analyze(item)
	assert.Equal(t, models.TierPoor, q.Tier)
	// 100 base + 20 external id + 10 inefficiency
	assert.Equal(t, 130, q.UpgradePriority)
	assert.Contains(t, q.UpgradeReason, "poor quality")
	assert.Contains(t, q.UpgradeReason, "catalog match available")
	assert.Contains(t, q.UpgradeReason, "inefficient encoding")
}

func TestExcellentBitrateClamp(t *testing.T) {
	a := NewAnalyzer(Thresholds{})

	for _, tc := range []struct {
		name     string
		filename string
		codec    string
	}{
		{"premium container", "book.m4b", "aac"},
		{"mp3", "book.mp3", "mp3"},
		{"other", "book.wav", "pcm"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q := a.Analyze(oneFileItem(models.AudioFile{
				Filename: tc.filename,
				Codec:    tc.codec,
				Bitrate:  320000,
				Duration: 3600,
			}, 144_000_000))
			assert.Equal(t, models.TierExcellent, q.Tier)
		})
	}
}

func TestMP3AlwaysOneTierBelowPremium(t *testing.T) {
	a := NewAnalyzer(Thresholds{})

	for _, kbps := range []int64{70, 115, 140, 200} {
		premium := a.Analyze(oneFileItem(models.AudioFile{
			Filename: "a.m4b", Codec: "aac", Bitrate: kbps * 1000, Duration: 3600}, 0))
		mp3 := a.Analyze(oneFileItem(models.AudioFile{
			Filename: "a.mp3", Codec: "mp3", Bitrate: kbps * 1000, Duration: 3600}, 0))
		assert.True(t, premium.Tier.BetterThan(mp3.Tier),
			"premium %s should beat mp3 %s at %d kbps", premium.Tier, mp3.Tier, kbps)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	item := oneFileItem(models.AudioFile{
		Filename: "book.m4b", Codec: "aac", Bitrate: 128000, Duration: 3600}, 57_600_000)

	first := a.Analyze(item)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Analyze(item))
	}
}

func TestScoreCapsAt60ForBitrate(t *testing.T) {
	a := NewAnalyzer(Thresholds{})
	q := a.Analyze(oneFileItem(models.AudioFile{
		Filename: "book.m4b", Codec: "aac", Bitrate: 1_000_000, Duration: 3600}, 450_000_000))
	// 60 cap + 30 m4b weight
	assert.Equal(t, 90.0, q.Score)
}
