package cache

import (
	"strings"
	"time"
)

// DefaultPricingNamespaces are the namespaces whose TTL is clamped to the
// next calendar-month boundary. The catalog's monthly promotional prices
// roll over on the first UTC day of each month, so price-bearing entries
// must not outlive the month they were fetched in. The product, search and
// sims payloads all carry the price block.
var DefaultPricingNamespaces = []string{
	"pricing_catalog",
	"catalog_pricing",
	"catalog_product",
	"catalog_search",
	"catalog_sims",
}

// SecondsUntilNextMonthUTC returns the seconds from now until the first
// instant of the next calendar month in UTC.
func SecondsUntilNextMonthUTC(now time.Time) time.Duration {
	utc := now.UTC()
	nextMonth := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return nextMonth.Sub(utc)
}

// EffectiveTTL clamps the requested TTL to the calendar-month boundary for
// pricing namespaces. Non-pricing namespaces keep the requested TTL.
func EffectiveTTL(ns string, requested time.Duration, now time.Time, pricingNamespaces []string) time.Duration {
	if !isPricingNamespace(ns, pricingNamespaces) {
		return requested
	}
	boundary := SecondsUntilNextMonthUTC(now)
	if requested < boundary {
		return requested
	}
	return boundary
}

func isPricingNamespace(ns string, pricingNamespaces []string) bool {
	for _, p := range pricingNamespaces {
		if ns == p {
			return true
		}
	}
	return strings.HasPrefix(ns, "pricing_")
}
