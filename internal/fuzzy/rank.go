package fuzzy

import (
	"cmp"
	"slices"
)

// Match is one ranked candidate. Index refers to the position of the
// candidate in the slice passed to Rank.
type Match struct {
	Index int
	Score float64
}

// Rank scores every candidate against query, sorts by score descending and
// keeps the first k. Candidates with equal scores keep their input order.
// A k of zero or less keeps every candidate. The scorer is not called when
// there are no candidates.
func Rank(query string, candidates []string, k int, scorer Scorer) []Match {
	if len(candidates) == 0 {
		return []Match{}
	}
	if scorer == nil {
		scorer = Ratio
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{Index: i, Score: scorer(query, c)}
	}

	slices.SortStableFunc(matches, func(x, y Match) int {
		return cmp.Compare(y.Score, x.Score)
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
