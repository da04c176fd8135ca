package models

import "time"

// PriceType identifies which price applies to the caller
type PriceType string

const (
	PriceTypeSale   PriceType = "sale"
	PriceTypeMember PriceType = "member"
	PriceTypeList   PriceType = "list"
)

// PricingInfo is the assembled pricing view of one catalog product
type PricingInfo struct {
	ListPrice     *float64  `json:"listPrice"`
	SalePrice     *float64  `json:"salePrice"`
	CreditPrice   *float64  `json:"creditPrice"`
	Currency      string    `json:"currency"`
	PriceType     PriceType `json:"priceType"`
	IsMonthlyDeal bool      `json:"isMonthlyDeal"`
}

// EffectivePrice returns the sale price when set, otherwise the list price.
// Returns nil when neither is known.
func (p *PricingInfo) EffectivePrice() *float64 {
	if p.SalePrice != nil {
		return p.SalePrice
	}
	return p.ListPrice
}

// DiscountPercent returns 1 - sale/list as a percentage in [0,100], or 0
// when either price is missing or the list price is not positive.
func (p *PricingInfo) DiscountPercent() float64 {
	if p.ListPrice == nil || p.SalePrice == nil || *p.ListPrice <= 0 {
		return 0
	}
	d := (1 - *p.SalePrice / *p.ListPrice) * 100
	if d < 0 {
		return 0
	}
	return d
}

// IsGoodDeal reports whether the effective price is below the threshold
func (p *PricingInfo) IsGoodDeal(threshold float64) bool {
	eff := p.EffectivePrice()
	return eff != nil && *eff < threshold
}

// SubscriptionInclusion records whether a product is included in a
// subscription plan and when that inclusion ends
type SubscriptionInclusion struct {
	IsIncludedFree bool       `json:"isIncludedFree"`
	PlanName       string     `json:"planName,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

// DaysUntilExpiration returns the whole days until the inclusion expires.
// Returns -1 when no expiration is known.
func (s *SubscriptionInclusion) DaysUntilExpiration(now time.Time) int {
	if s.ExpirationDate == nil {
		return -1
	}
	d := int(s.ExpirationDate.Sub(now).Hours() / 24)
	return d
}

// IsExpiringSoon reports whether the inclusion expires within 30 days
func (s *SubscriptionInclusion) IsExpiringSoon(now time.Time) bool {
	days := s.DaysUntilExpiration(now)
	return days > 0 && days <= 30
}
