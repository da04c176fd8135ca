package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestEffectivePrice(t *testing.T) {
	p := PricingInfo{ListPrice: f(29.95), SalePrice: f(9.99)}
	assert.Equal(t, 9.99, *p.EffectivePrice())

	p = PricingInfo{ListPrice: f(29.95)}
	assert.Equal(t, 29.95, *p.EffectivePrice())

	p = PricingInfo{}
	assert.Nil(t, p.EffectivePrice())
}

func TestDiscountPercent(t *testing.T) {
	p := PricingInfo{ListPrice: f(20), SalePrice: f(5)}
	assert.InDelta(t, 75.0, p.DiscountPercent(), 0.001)

	// Missing either price means no discount
	p = PricingInfo{ListPrice: f(20)}
	assert.Zero(t, p.DiscountPercent())
	p = PricingInfo{SalePrice: f(5)}
	assert.Zero(t, p.DiscountPercent())

	// Sale above list is clamped to zero, not negative
	p = PricingInfo{ListPrice: f(10), SalePrice: f(15)}
	assert.Zero(t, p.DiscountPercent())
}

func TestIsGoodDeal(t *testing.T) {
	p := PricingInfo{ListPrice: f(30), SalePrice: f(4.99)}
	assert.True(t, p.IsGoodDeal(5))
	assert.False(t, p.IsGoodDeal(4.99))

	empty := PricingInfo{}
	assert.False(t, empty.IsGoodDeal(5))
}

func TestSubscriptionExpiration(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	in10 := now.AddDate(0, 0, 10)
	s := SubscriptionInclusion{IsIncludedFree: true, ExpirationDate: &in10}
	assert.Equal(t, 10, s.DaysUntilExpiration(now))
	assert.True(t, s.IsExpiringSoon(now))

	in90 := now.AddDate(0, 0, 90)
	s = SubscriptionInclusion{IsIncludedFree: true, ExpirationDate: &in90}
	assert.False(t, s.IsExpiringSoon(now))

	// No expiration on record
	s = SubscriptionInclusion{IsIncludedFree: true}
	assert.Equal(t, -1, s.DaysUntilExpiration(now))
	assert.False(t, s.IsExpiringSoon(now))

	// Already expired
	past := now.AddDate(0, 0, -2)
	s = SubscriptionInclusion{ExpirationDate: &past}
	assert.False(t, s.IsExpiringSoon(now))
}
