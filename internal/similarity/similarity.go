// Package similarity computes edit distance and normalized similarity
// between short strings.
package similarity

import "strings"

// Distance returns the Levenshtein distance between a and b: the minimum
// number of single-rune insertions, deletions and substitutions that turn
// a into b.
func Distance(a, b string) int {
	return runeDistance([]rune(a), []rune(b))
}

// Similarity returns 1 - distance/maxLen over the lowercased strings.
// Two empty strings are fully similar.
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}

	return 1.0 - float64(runeDistance(ra, rb))/float64(longest)
}

// runeDistance fills the DP table row by row; prev holds row i-1 and cur
// row i, where cell j is the distance between a[:i] and b[:j].
func runeDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(
				prev[j]+1,      // delete
				cur[j-1]+1,     // insert
				prev[j-1]+cost, // substitute or match
			)
		}
		prev, cur = cur, prev
	}

	return prev[len(b)]
}
