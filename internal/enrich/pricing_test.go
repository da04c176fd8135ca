package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mgrantham/shelfscout/internal/models"
)

func fp(v float64) *float64 { return &v }

func TestParseCodecName(t *testing.T) {
	assert.Equal(t, 64.0, parseCodecName("aax_22_64"))
	assert.Equal(t, 128.0, parseCodecName("aax_44_128"))
	assert.Zero(t, parseCodecName("mp4"))
	// Trailing sample rate is rejected
	assert.Zero(t, parseCodecName("aac_44100"))
}

func TestParseEnhancedCodec(t *testing.T) {
	// Sample rate segments exceed the plausibility bound
	assert.Equal(t, 64.0, parseEnhancedCodec("LC_64_22050_stereo"))
	assert.Equal(t, 128.0, parseEnhancedCodec("LC_128_44100_stereo"))
	assert.Zero(t, parseEnhancedCodec("stereo"))
}

func TestBestCodecBitratePrefersLargerParse(t *testing.T) {
	codecs := []models.CodecInfo{
		{Name: "aax_22_32", EnhancedName: "LC_32_22050_stereo"},
		{Name: "aax_44_128", EnhancedName: "LC_128_44100_stereo"},
		{Name: "mp4", EnhancedName: "LC_64_22050_stereo"},
	}
	assert.Equal(t, 128.0, bestCodecBitrate(codecs))
}

func TestPricingForMarksMonthlyDeal(t *testing.T) {
	p := &models.CatalogProduct{ListPrice: fp(30), SalePrice: fp(12), Currency: "USD"}
	info := PricingFor(p)
	assert.True(t, info.IsMonthlyDeal) // 60% off
	assert.Equal(t, models.PriceTypeSale, info.PriceType)

	p = &models.CatalogProduct{ListPrice: fp(30), SalePrice: fp(25), Currency: "USD"}
	assert.False(t, PricingFor(p).IsMonthlyDeal) // 16% off
}

func TestSubscriptionForPlanMatching(t *testing.T) {
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	forever := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	p := &models.CatalogProduct{Plans: []models.SubscriptionPlan{
		{Name: "US Minerva", EndDate: &end},
		{Name: "Audible Plus", EndDate: &end},
	}}
	inc := SubscriptionFor(p, "Plus")
	assert.True(t, inc.IsIncludedFree)
	assert.Equal(t, "Audible Plus", inc.PlanName)
	assert.Equal(t, &end, inc.ExpirationDate)

	// An implausible end year means no scheduled expiration
	p = &models.CatalogProduct{Plans: []models.SubscriptionPlan{
		{Name: "Audible Plus", EndDate: &forever},
	}}
	inc = SubscriptionFor(p, "Plus")
	assert.True(t, inc.IsIncludedFree)
	assert.Nil(t, inc.ExpirationDate)

	// No matching plan
	p = &models.CatalogProduct{Plans: []models.SubscriptionPlan{{Name: "US Minerva"}}}
	assert.False(t, SubscriptionFor(p, "Plus").IsIncludedFree)
}

func TestRecommendOwnedWinsOverEverything(t *testing.T) {
	now := time.Now()
	e := &models.Enrichment{
		Owned:        true,
		Subscription: &models.SubscriptionInclusion{IsIncludedFree: true},
		Pricing:      &models.PricingInfo{ListPrice: fp(30), SalePrice: fp(3)},
	}
	label, mult := recommend(e, 8, now)
	assert.Equal(t, "OWNED", label)
	assert.Equal(t, 0.1, mult)
}

func TestRecommendFree(t *testing.T) {
	now := time.Now()
	e := &models.Enrichment{Subscription: &models.SubscriptionInclusion{IsIncludedFree: true}}
	label, mult := recommend(e, 8, now)
	assert.Equal(t, "FREE", label)
	assert.Equal(t, 5.0, mult)
}

func TestRecommendFreeExpiringSoonAddsUrgency(t *testing.T) {
	now := time.Now()
	exp := now.Add(12*24*time.Hour + time.Hour) // 12 days out
	e := &models.Enrichment{Subscription: &models.SubscriptionInclusion{
		IsIncludedFree: true,
		ExpirationDate: &exp,
	}}
	label, mult := recommend(e, 8, now)
	assert.Contains(t, label, "FREE (expires in 12 days)")
	assert.InDelta(t, 5.0+float64(30-12)/6, mult, 0.001)
}

func TestRecommendMonthlyDealTiers(t *testing.T) {
	now := time.Now()

	e := &models.Enrichment{Pricing: PricingFor(&models.CatalogProduct{
		ListPrice: fp(30), SalePrice: fp(6)})} // 80% off
	label, mult := recommend(e, 8, now)
	assert.Contains(t, label, "MONTHLY_DEAL")
	assert.Equal(t, 4.0, mult)

	e = &models.Enrichment{Pricing: PricingFor(&models.CatalogProduct{
		ListPrice: fp(30), SalePrice: fp(12)})} // 60% off
	label, mult = recommend(e, 8, now)
	assert.Contains(t, label, "MONTHLY_DEAL")
	assert.Equal(t, 3.5, mult)
}

func TestRecommendGoodDeal(t *testing.T) {
	now := time.Now()
	e := &models.Enrichment{Pricing: PricingFor(&models.CatalogProduct{
		ListPrice: fp(9), SalePrice: fp(6.99), Currency: "USD"})} // 22% off, below threshold
	label, mult := recommend(e, 8, now)
	assert.Contains(t, label, "GOOD_DEAL ($6.99)")
	assert.GreaterOrEqual(t, mult, 2.5)
	assert.LessOrEqual(t, mult, 3.0)
}

func TestRecommendCreditAndExpensive(t *testing.T) {
	now := time.Now()

	e := &models.Enrichment{Pricing: &models.PricingInfo{
		ListPrice: fp(30), CreditPrice: fp(1)}}
	label, mult := recommend(e, 8, now)
	assert.Equal(t, "CREDIT", label)
	assert.Equal(t, 1.0, mult)

	e = &models.Enrichment{Pricing: &models.PricingInfo{ListPrice: fp(30), Currency: "USD"}}
	label, mult = recommend(e, 8, now)
	assert.Equal(t, "EXPENSIVE ($30.00)", label)
	assert.Equal(t, 1.0, mult)
}

func TestRecommendSpatialBonus(t *testing.T) {
	now := time.Now()
	e := &models.Enrichment{
		Subscription:     &models.SubscriptionInclusion{IsIncludedFree: true},
		SpatialAvailable: true,
	}
	_, mult := recommend(e, 8, now)
	assert.Equal(t, 5.5, mult)
}
