package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mgrantham/shelfscout/internal/models"
)

// RenderUpgradeText writes a human-readable summary of one finder run
func RenderUpgradeText(w io.Writer, result *models.UpgradeScanResult) {
	fmt.Fprintf(w, "Upgrade scan for library %s\n", result.LibraryID)
	fmt.Fprintf(w, "  Items scanned:    %d\n", result.TotalItems)
	fmt.Fprintf(w, "  Below threshold:  %d\n", result.BelowThreshold)
	fmt.Fprintf(w, "  Enriched:         %d\n", result.Enriched)
	fmt.Fprintf(w, "  Candidates:       %d\n", len(result.Candidates))
	fmt.Fprintf(w, "  Scan time:        %s\n", result.ScanDuration.Round(timeRounding(result.ScanDuration)))
	if result.Enriched > 0 {
		fmt.Fprintf(w, "  Enrich time:      %s (cache hits %d, API calls %d)\n",
			result.EnrichDuration.Round(timeRounding(result.EnrichDuration)),
			result.CacheHits, result.APICalls)
	}

	c := result.Counters
	if c.SubscriptionIncluded+c.MonthlyDeals+c.GoodDeals+c.AlreadyOwned+c.SpatialAvailable > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Included in subscription: %d\n", c.SubscriptionIncluded)
		fmt.Fprintf(w, "  Monthly deals:            %d\n", c.MonthlyDeals)
		fmt.Fprintf(w, "  Good deals:               %d\n", c.GoodDeals)
		fmt.Fprintf(w, "  Already owned:            %d\n", c.AlreadyOwned)
		fmt.Fprintf(w, "  Spatial audio available:  %d\n", c.SpatialAvailable)
	}

	if len(result.Candidates) == 0 {
		fmt.Fprintln(w, "\nNothing to upgrade.")
		return
	}

	fmt.Fprintln(w)
	for i, cand := range result.Candidates {
		q := cand.Quality
		fmt.Fprintf(w, "%3d. %s — %s\n", i+1, q.Title, q.Author)
		fmt.Fprintf(w, "     %.0f kbps %s (%s), priority %.1f\n",
			q.BitrateKbps, q.FormatLabel, q.TierName, cand.FinalPriority)
		if q.UpgradeReason != "" {
			fmt.Fprintf(w, "     %s\n", q.UpgradeReason)
		}
		if e := cand.Enrichment; e != nil {
			line := []string{e.Recommendation}
			if price := formatPrice(e.Pricing); price != "" {
				line = append(line, price)
			}
			if e.BestBitrateKbps > 0 {
				line = append(line, fmt.Sprintf("catalog best %.0f kbps", e.BestBitrateKbps))
			}
			if e.SpatialAvailable {
				line = append(line, "spatial audio")
			}
			fmt.Fprintf(w, "     %s\n", strings.Join(line, ", "))
			fmt.Fprintf(w, "     %s\n", e.CatalogURL)
		}
	}
}

// RenderSeriesText writes a human-readable summary of a whole-library pass
func RenderSeriesText(w io.Writer, rep *models.LibrarySeriesReport) {
	fmt.Fprintf(w, "Series report: %d series, %d matched, %d complete\n",
		rep.TotalSeries, rep.MatchedSeries, rep.CompleteSeries)
	fmt.Fprintf(w, "Missing: %d books (%.1f hours)\n", rep.TotalMissingBooks, rep.TotalMissingHours)

	for i := range rep.Results {
		r := &rep.Results[i]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s: %d/%d (%.1f%%)", r.LocalSeries.Name, r.MatchedCount, r.CatalogCount,
			r.CompletionPercentage())
		if r.IsComplete() {
			fmt.Fprint(w, " complete")
		}
		fmt.Fprintln(w)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  ! %s\n", warning)
		}
		for _, missing := range r.MissingBooks {
			seq := missing.Sequence
			if seq == "" {
				seq = "?"
			}
			line := fmt.Sprintf("  #%s %s", seq, missing.Title)
			if price := formatPrice(missing.Pricing); price != "" {
				line += " — " + price
			}
			if missing.Subscription != nil && missing.Subscription.IsIncludedFree {
				line += " — included free"
			}
			fmt.Fprintln(w, line)
		}
	}
}

// formatPrice renders the effective price with its currency symbol, marking
// discounts against the list price. Empty when no price is known.
func formatPrice(p *models.PricingInfo) string {
	if p == nil {
		return ""
	}
	eff := p.EffectivePrice()
	if eff == nil {
		return ""
	}
	s := fmt.Sprintf("%s%.2f", currencySymbol(p.Currency), *eff)
	if d := p.DiscountPercent(); d > 0 {
		s += fmt.Sprintf(" (%.0f%% off)", d)
	}
	return s
}

func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "USD", "CAD", "AUD":
		return "$"
	case "GBP":
		return "£"
	case "EUR":
		return "€"
	case "JPY":
		return "¥"
	default:
		if code == "" {
			return ""
		}
		return code + " "
	}
}

// timeRounding keeps short runs readable at millisecond precision while
// rounding long runs to whole seconds
func timeRounding(d time.Duration) time.Duration {
	if d >= 10*time.Second {
		return time.Second
	}
	return time.Millisecond
}
