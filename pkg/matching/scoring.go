package matching

import (
	"strings"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// MaxScore is the score of an exact match
const MaxScore = 100.0

// Scorer compares attribute values and returns scores in [0,100]
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 100 for an exact match, 0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return MaxScore
	}
	return 0
}

// Similarity is the recursive longest-common-substring score of two strings
func (s *Scorer) Similarity(a, b string) float64 {
	return Similarity(a, b)
}

// Score compares two values the way the merging map entry asks for: uidOnly entries are
// exact and case-sensitive, everything else is fuzzy.
func (s *Scorer) Score(entry models.MergingMapEntry, a, b string) float64 {
	if entry.UIDOnly {
		return s.ExactMatch(a, b, true)
	}
	return s.Similarity(a, b)
}

// Similarity scores two strings by repeatedly taking their longest common substring,
// crediting it, and recursing on the remainders to its left and to its right. The credited
// rune count is divided by the average length of the two strings.
func Similarity(a, b string) float64 {
	if a == b {
		return MaxScore
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	avg := float64(len(ra)+len(rb)) / 2
	matched := matchedRunes(ra, rb, minFragment(len(ra), len(rb)))

	score := MaxScore * float64(matched) / avg
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// minFragment is the shortest common substring worth crediting. Single runes count for
// short strings; longer strings need proportionally longer fragments.
func minFragment(lenA, lenB int) int {
	avg := (lenA + lenB) / 2
	if avg <= 10 {
		return 1
	}
	return avg / 10
}

func matchedRunes(a, b []rune, min int) int {
	if len(a) < min || len(b) < min {
		return 0
	}

	ia, ib, length := longestCommonSubstring(a, b)
	if length == 0 || length < min {
		return 0
	}

	left := matchedRunes(a[:ia], b[:ib], min)
	right := matchedRunes(a[ia+length:], b[ib+length:], min)
	return length + left + right
}

// longestCommonSubstring returns the start offsets and length of the longest common
// substring. Ties go to the earliest position in a, then in b.
func longestCommonSubstring(a, b []rune) (int, int, int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	bestLen, endA, endB := 0, 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestLen {
					bestLen = curr[j]
					endA, endB = i, j
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return endA - bestLen, endB - bestLen, bestLen
}
