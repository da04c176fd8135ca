package enrich

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mgrantham/shelfscout/internal/models"
)

// monthlyDealDiscount is the discount at which a sale qualifies as a
// monthly-deal promotion
const monthlyDealDiscount = 50.0

// maxPlausibleKbps rejects numbers that are really sample rates. No
// audiobook codec in the catalog delivers above 320 kbps.
const maxPlausibleKbps = 320

// PricingFor assembles the pricing view of a product
func PricingFor(p *models.CatalogProduct) *models.PricingInfo {
	info := &models.PricingInfo{
		ListPrice:   p.ListPrice,
		SalePrice:   p.SalePrice,
		CreditPrice: p.CreditPrice,
		Currency:    p.Currency,
		PriceType:   models.PriceTypeList,
	}
	if p.SalePrice != nil {
		info.PriceType = models.PriceTypeSale
	}
	info.IsMonthlyDeal = info.DiscountPercent() >= monthlyDealDiscount
	return info
}

// SubscriptionFor finds the inclusion plan matching the marker. An end
// date with an implausible year (2099 or later) means the inclusion has
// no scheduled end.
func SubscriptionFor(p *models.CatalogProduct, marker string) *models.SubscriptionInclusion {
	marker = strings.ToLower(marker)
	for _, plan := range p.Plans {
		if !strings.Contains(strings.ToLower(plan.Name), marker) {
			continue
		}
		inc := &models.SubscriptionInclusion{
			IsIncludedFree: true,
			PlanName:       plan.Name,
		}
		if plan.EndDate != nil && plan.EndDate.Year() < 2099 {
			inc.ExpirationDate = plan.EndDate
		}
		return inc
	}
	return &models.SubscriptionInclusion{IsIncludedFree: false}
}

// codec names look like "aax_22_64" where the last segment is the bitrate
var codecNameRe = regexp.MustCompile(`_(\d+)$`)

// enhanced codec names look like "LC_64_22050_stereo" where one of the
// numeric segments is the bitrate and another a sample rate
var enhancedSegRe = regexp.MustCompile(`\d+`)

// parseCodecName extracts the trailing bitrate from a codec name
func parseCodecName(name string) float64 {
	m := codecNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v <= 0 || v > maxPlausibleKbps {
		return 0
	}
	return float64(v)
}

// parseEnhancedCodec scans every numeric segment, keeps the plausible
// ones, and returns the largest. Sample rates (22050, 44100) exceed the
// plausibility bound and are rejected.
func parseEnhancedCodec(name string) float64 {
	var best float64
	for _, seg := range enhancedSegRe.FindAllString(name, -1) {
		v, err := strconv.Atoi(seg)
		if err != nil || v <= 0 || v > maxPlausibleKbps {
			continue
		}
		if float64(v) > best {
			best = float64(v)
		}
	}
	return best
}

// bestCodecBitrate returns the highest bitrate advertised by any codec
// descriptor, preferring the larger value per descriptor
func bestCodecBitrate(codecs []models.CodecInfo) float64 {
	var best float64
	for _, c := range codecs {
		v := parseCodecName(c.Name)
		if enhanced := parseEnhancedCodec(c.EnhancedName); enhanced > v {
			v = enhanced
		}
		if v > best {
			best = v
		}
	}
	return best
}

// recommend produces the recommendation label and priority multiplier
// from the assembled enrichment
func recommend(e *models.Enrichment, goodDealThreshold float64, now time.Time) (string, float64) {
	label, mult := baseRecommendation(e, goodDealThreshold, now)
	if e.SpatialAvailable {
		mult += spatialBonus
	}
	return label, mult
}

func baseRecommendation(e *models.Enrichment, goodDealThreshold float64, now time.Time) (string, float64) {
	if e.Owned {
		return "OWNED", multOwned
	}

	if e.Subscription != nil && e.Subscription.IsIncludedFree {
		if e.Subscription.IsExpiringSoon(now) {
			days := e.Subscription.DaysUntilExpiration(now)
			urgency := float64(30-days) / 6
			return fmt.Sprintf("FREE (expires in %d days)", days), multFree + urgency
		}
		return "FREE", multFree
	}

	pricing := e.Pricing
	if pricing == nil {
		return "EXPENSIVE (price unknown)", multNeutral
	}

	discount := pricing.DiscountPercent()
	if pricing.IsMonthlyDeal {
		if discount >= 70 {
			return fmt.Sprintf("MONTHLY_DEAL (%.0f%% off)", discount), multMonthlyBig
		}
		return fmt.Sprintf("MONTHLY_DEAL (%.0f%% off)", discount), multMonthlyHalf
	}

	if eff := pricing.EffectivePrice(); eff != nil && pricing.IsGoodDeal(goodDealThreshold) {
		mult := multGoodDealMin + discount/200
		if mult > multGoodDealMax {
			mult = multGoodDealMax
		}
		return fmt.Sprintf("GOOD_DEAL (%s%.2f)", currencySymbol(pricing.Currency), *eff), mult
	}

	if pricing.CreditPrice != nil && *pricing.CreditPrice == 1 {
		return "CREDIT", multNeutral
	}

	if eff := pricing.EffectivePrice(); eff != nil {
		return fmt.Sprintf("EXPENSIVE (%s%.2f)", currencySymbol(pricing.Currency), *eff), multNeutral
	}
	return "EXPENSIVE (price unknown)", multNeutral
}

func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "USD", "CAD", "AUD", "":
		return "$"
	case "GBP":
		return "£"
	case "EUR":
		return "€"
	case "JPY":
		return "¥"
	default:
		return code + " "
	}
}
