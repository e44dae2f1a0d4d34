package fuzzy

import (
	"fmt"
	"strings"
)

// Scorer returns the similarity of a and b in [0, 100].
type Scorer func(a, b string) float64

// Metric names accepted by ScorerByName.
const (
	MetricGestalt = "gestalt"
	MetricIndel   = "indel"
)

// ScorerByName returns the scorer registered under name.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case MetricGestalt, "":
		return Ratio, nil
	case MetricIndel:
		return IndelRatio, nil
	default:
		return nil, fmt.Errorf("unknown fuzzy metric %q", name)
	}
}

// Ratio returns the case-insensitive gestalt similarity of a and b.
func Ratio(a, b string) float64 {
	ra, rb := fold(a), fold(b)
	return normalize(gestaltMatches(ra, rb), len(ra)+len(rb))
}

// IndelRatio returns the case-insensitive InDel similarity of a and b.
func IndelRatio(a, b string) float64 {
	ra, rb := fold(a), fold(b)
	return normalize(lcsLength(ra, rb), len(ra)+len(rb))
}

// fold lowercases with Go's Unicode case mapping, which differs from other
// runtimes for a few runes such as 'İ'.
func fold(s string) []rune {
	return []rune(strings.ToLower(s))
}

func normalize(matches, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(2*matches) / float64(total)
}

type block struct {
	alo, ahi, blo, bhi int
}

// gestaltMatches counts the characters covered by the recursive longest
// common substring decomposition of a and b.
func gestaltMatches(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matches := 0
	queue := []block{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		blk := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b2j, blk)
		if k == 0 {
			continue
		}
		matches += k

		if blk.alo < i && blk.blo < j {
			queue = append(queue, block{blk.alo, i, blk.blo, j})
		}
		if i+k < blk.ahi && j+k < blk.bhi {
			queue = append(queue, block{i + k, blk.ahi, j + k, blk.bhi})
		}
	}
	return matches
}

// longestMatch finds the longest common substring of a[alo:ahi] and
// b[blo:bhi]. Ties go to the match starting earliest in a, then earliest
// in b.
func longestMatch(a []rune, b2j map[rune][]int, blk block) (besti, bestj, bestSize int) {
	besti, bestj = blk.alo, blk.blo

	// j2len[j] is the length of the match ending at a[i-1] and b[j].
	j2len := map[int]int{}
	for i := blk.alo; i < blk.ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < blk.blo {
				continue
			}
			if j >= blk.bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestSize {
				besti, bestj, bestSize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestSize
}

// lcsLength returns the length of the longest common subsequence of a and b.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
