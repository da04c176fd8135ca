package series

import (
	"regexp"
	"strings"
)

var (
	parenSuffixRe   = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	numberTrailerRe = regexp.MustCompile(`(?i)[\s,:\-]*\b(book|volume|part)\s+[0-9ivxlc]+\s*$`)
	seriesSuffixRe  = regexp.MustCompile(`(?i)\s+(series|saga|trilogy|duology|books)\s*$`)
)

// NormalizeTitle canonicalizes a book title for fuzzy comparison:
// lowercase, trimmed, leading article dropped, parenthesized suffixes and
// "Book N" / "Volume N" / "Part N" trailers stripped. Stripping repeats
// until stable so stacked trailers ("Book 2, Volume 3") all come off.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	for {
		next := parenSuffixRe.ReplaceAllString(s, "")
		next = numberTrailerRe.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimPrefix(s, "the ")
	return strings.TrimSpace(s)
}

// NormalizeSeriesName canonicalizes a series name: lowercase, trimmed,
// leading article and trailing genre words dropped
func NormalizeSeriesName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for {
		next := strings.TrimSpace(seriesSuffixRe.ReplaceAllString(s, ""))
		next = strings.TrimSpace(parenSuffixRe.ReplaceAllString(next, ""))
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimPrefix(s, "the ")
	return strings.TrimSpace(s)
}
