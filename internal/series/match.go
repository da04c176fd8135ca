package series

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mgrantham/shelfscout/internal/models"
)

// Match strategy names recorded on MatchResult
const (
	StrategyExternalID  = "external_id"
	StrategyTitle       = "title"
	StrategyTitleAuthor = "title_author"
)

// DefaultMinMatchScore is the acceptance floor for fuzzy matches
const DefaultMinMatchScore = 60.0

// levenshteinRatio is a 0-100 similarity from edit distance
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 100
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return (1 - float64(dist)/float64(longest)) * 100
}

func tokenSet(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.Fields(s) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	sort.Strings(out)
	return out
}

// tokenSetRatio compares the sorted unique-token forms of two strings,
// scoring the shared core against each remainder and keeping the best
func tokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)

	inB := map[string]bool{}
	for _, t := range tb {
		inB[t] = true
	}
	inA := map[string]bool{}
	for _, t := range ta {
		inA[t] = true
	}

	var common, restA, restB []string
	for _, t := range ta {
		if inB[t] {
			common = append(common, t)
		} else {
			restA = append(restA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			restB = append(restB, t)
		}
	}

	core := strings.Join(common, " ")
	full1 := strings.TrimSpace(core + " " + strings.Join(restA, " "))
	full2 := strings.TrimSpace(core + " " + strings.Join(restB, " "))

	best := levenshteinRatio(core, full1)
	if r := levenshteinRatio(core, full2); r > best {
		best = r
	}
	if r := levenshteinRatio(full1, full2); r > best {
		best = r
	}
	return best
}

// MatchBook finds the best catalog candidate for one local book. External
// ID equality wins outright; otherwise the best fuzzy score over the title
// and title+author strategies is kept, and accepted only at or above
// minScore.
func MatchBook(local models.LocalSeriesBook, catalogBooks []models.CatalogSeriesBook, minScore float64) models.MatchResult {
	result := models.MatchResult{
		LocalBook:  local,
		Confidence: models.ConfidenceNone,
	}
	if minScore <= 0 {
		minScore = DefaultMinMatchScore
	}

	if local.ExternalID != "" {
		for i := range catalogBooks {
			if catalogBooks[i].ExternalID == local.ExternalID {
				result.CatalogBook = &catalogBooks[i]
				result.Score = 100
				result.Confidence = models.ConfidenceExact
				result.Strategy = StrategyExternalID
				return result
			}
		}
	}

	localTitle := NormalizeTitle(local.Title)
	localAuthor := strings.ToLower(strings.TrimSpace(local.Author))

	var (
		bestScore    float64
		bestStrategy string
		bestIdx      = -1
	)
	for i := range catalogBooks {
		candTitle := NormalizeTitle(catalogBooks[i].Title)

		if score := levenshteinRatio(localTitle, candTitle); score > bestScore {
			bestScore = score
			bestStrategy = StrategyTitle
			bestIdx = i
		}

		if localAuthor != "" {
			candAuthor := ""
			if len(catalogBooks[i].Authors) > 0 {
				candAuthor = strings.ToLower(catalogBooks[i].Authors[0])
			}
			score := tokenSetRatio(localTitle+" "+localAuthor, candTitle+" "+candAuthor)
			if score > bestScore {
				bestScore = score
				bestStrategy = StrategyTitleAuthor
				bestIdx = i
			}
		}
	}

	if bestIdx >= 0 && bestScore >= minScore {
		result.CatalogBook = &catalogBooks[bestIdx]
		result.Score = bestScore
		result.Confidence = models.ConfidenceForScore(bestScore)
		result.Strategy = bestStrategy
	}
	return result
}
