package mapping

import "strings"

// titleSimilarity returns a 0-100 normalized-Levenshtein similarity
// between a and b, the same 0-100 scale fuzzy_search_threshold is
// configured in. The distance itself is a plain
// Wagner-Fischer edit distance; github.com/lithammer/fuzzysearch (used
// in query.go for the Booru engine's free-text term) targets
// subsequence fuzzy matching rather than full-string similarity
// scoring, so it is not a fit for this particular calculation.
func titleSimilarity(a, b string) int {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	distance := levenshtein(a, b)
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}

	similarity := 100 - (distance*100)/maxLen
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}

// levenshtein computes the edit distance between two strings over
// runes, using the standard two-row dynamic-programming formulation.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = minOf(deletion, insertion, substitution)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func minOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// bestTitleMatch scores candidate's romaji/english/native titles
// against plexTitle and returns the best-scoring candidate along with
// whether two or more candidates tied for the top score (ambiguous).
func bestTitleMatch(plexTitle string, candidates []AniListSearchResult) (*AniListSearchResult, int, bool) {
	bestScore := -1
	var best *AniListSearchResult
	tieCount := 0

	for i := range candidates {
		c := &candidates[i]
		score := maxOf(
			titleSimilarity(plexTitle, c.RomajiTitle),
			titleSimilarity(plexTitle, c.EnglishTitle),
			titleSimilarity(plexTitle, c.NativeTitle),
		)
		switch {
		case score > bestScore:
			bestScore = score
			best = c
			tieCount = 1
		case score == bestScore:
			tieCount++
		}
	}

	return best, bestScore, tieCount > 1 && bestScore > 0
}

func maxOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
