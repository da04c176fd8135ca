package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRankLabelsAreDistinct(t *testing.T) {
	seen := make(map[string]FormatRank)
	for _, r := range AllFormatRanks() {
		label := r.Label()
		if prev, dup := seen[label]; dup {
			t.Fatalf("label %q shared by %d and %d", label, prev, r)
		}
		seen[label] = r
	}
	assert.Len(t, seen, 6)
}

func TestFormatRankTiedScoresKeepIdentity(t *testing.T) {
	// MP3, Opus and FLAC score the same but must not collapse
	assert.Equal(t, FormatMP3.Score(), FormatOpus.Score())
	assert.Equal(t, FormatOpus.Score(), FormatFLAC.Score())
	assert.NotEqual(t, FormatMP3.Label(), FormatOpus.Label())
	assert.NotEqual(t, FormatOpus.Label(), FormatFLAC.Label())
	assert.NotEqual(t, FormatMP3, FormatFLAC)
}

func TestFormatRankScoreOrdering(t *testing.T) {
	assert.Greater(t, FormatM4BAAC.Score(), FormatAAC.Score())
	assert.Greater(t, FormatAAC.Score(), FormatMP3.Score())
	assert.Greater(t, FormatMP3.Score(), FormatOther.Score())
}

func TestQualityTierOrdering(t *testing.T) {
	assert.True(t, TierExcellent.BetterThan(TierBetter))
	assert.True(t, TierBetter.BetterThan(TierGood))
	assert.True(t, TierGood.BetterThan(TierLow))
	assert.True(t, TierLow.BetterThan(TierPoor))
	assert.True(t, TierPoor.BetterThan(TierUnknown))
	assert.False(t, TierPoor.BetterThan(TierExcellent))
}

func TestQualityTierString(t *testing.T) {
	assert.Equal(t, "excellent", TierExcellent.String())
	assert.Equal(t, "unknown", TierUnknown.String())
	assert.Equal(t, "unknown", QualityTier(42).String())
}
