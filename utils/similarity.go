package utils

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// StringSimilarity returns a normalized similarity score in [0, 1] between two
// strings, case-folded. The score is 1 - editDistance/maxLen, with one special
// case: when one string contains the other the score is floored at 0.8, so
// "magnum" vs "magnum supermarket" never falls below the review threshold.
func StringSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	score := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen(a, b))
	if ContainsFold(a, b) && score < 0.8 {
		return 0.8
	}
	return score
}

// ContainsFold reports whether one string contains the other, case-insensitively.
func ContainsFold(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func maxLen(a, b string) int {
	// levenshtein.ComputeDistance counts runes, so the normalizer must too.
	la := len([]rune(a))
	lb := len([]rune(b))
	if la > lb {
		return la
	}
	return lb
}
