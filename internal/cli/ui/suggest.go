package ui

import (
	"sort"
	"strings"
)

// DefaultMaxDistance is the largest edit distance Suggest accepts
const DefaultMaxDistance = 3

// Suggest returns the candidates within maxDistance edits of target, closest
// first. Comparison ignores case; ties keep candidate order.
func Suggest(target string, candidates []string, maxDistance int) []string {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}

	type match struct {
		value    string
		distance int
	}

	target = strings.ToLower(target)
	var matches []match
	for _, c := range candidates {
		d := Distance(target, strings.ToLower(c))
		if d <= maxDistance {
			matches = append(matches, match{value: c, distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.value)
	}
	return out
}

// Distance is the Levenshtein distance between a and b, counted in runes
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	return prev[len(rb)]
}
