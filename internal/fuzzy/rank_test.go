package fuzzy_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/user-service-mcp/internal/fuzzy"
)

func TestRank(t *testing.T) {
	candidates := []string{"Jon", "John", "Jonathan", "Alice"}

	matches := fuzzy.Rank("John", candidates, 5, fuzzy.Ratio)
	require.Len(t, matches, 4)

	var order []string
	for _, m := range matches {
		order = append(order, candidates[m.Index])
	}
	assert.Equal(t, []string{"John", "Jon", "Jonathan", "Alice"}, order)

	assert.Equal(t, 100.0, matches[0].Score)
	assert.Less(t, matches[1].Score, 100.0)
	assert.Greater(t, matches[2].Score, matches[3].Score)
	assert.Equal(t, 0.0, matches[3].Score)
}

func TestRank_TruncatesToK(t *testing.T) {
	candidates := []string{"Ann", "Anna", "Annie", "Anne", "Hannah", "Joanna", "Bob"}

	matches := fuzzy.Rank("Anna", candidates, 5, fuzzy.Ratio)
	require.Len(t, matches, 5)
	assert.Equal(t, "Anna", candidates[matches[0].Index])
	for _, m := range matches {
		assert.NotEqual(t, "Bob", candidates[m.Index])
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	candidates := []string{"Zed", "Ned", "Ted", "Fred"}

	// "Ned", "Ted" and "Zed" all score the same against "Ed".
	matches := fuzzy.Rank("Ed", candidates, 0, fuzzy.Ratio)
	require.Len(t, matches, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{matches[0].Index, matches[1].Index, matches[2].Index, matches[3].Index})
}

func TestRank_EmptyCandidatesSkipsScorer(t *testing.T) {
	calls := 0
	scorer := func(a, b string) float64 {
		calls++
		return 0
	}

	matches := fuzzy.Rank("anything", nil, 5, scorer)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	assert.Zero(t, calls)
}

func TestRankProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("results are sorted and bounded by k", prop.ForAll(
		func(query string, candidates []string, k int) bool {
			matches := fuzzy.Rank(query, candidates, k, fuzzy.Ratio)
			if len(matches) > k || len(matches) > len(candidates) {
				return false
			}
			for i := 1; i < len(matches); i++ {
				if matches[i].Score > matches[i-1].Score {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(1, 10),
	))

	properties.Property("every candidate is ranked when k is large", prop.ForAll(
		func(query string, candidates []string) bool {
			matches := fuzzy.Rank(query, candidates, len(candidates)+1, fuzzy.IndelRatio)
			seen := make(map[int]bool, len(matches))
			for _, m := range matches {
				seen[m.Index] = true
			}
			return len(matches) == len(candidates) && len(seen) == len(candidates)
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
