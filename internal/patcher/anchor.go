package patcher

import (
	"strings"
)

// anchor is where a hunk's old side was found.
type anchor struct {
	index int
	fuzzy bool
}

// normalizeLineForMatching trims a line and collapses internal whitespace
// runs to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// findAnchor searches for block at expected, then at expected+1, expected-1,
// expected+2, ... up to window lines away. An exact pass over the whole
// window runs before the whitespace-insensitive one.
func findAnchor(source, block []string, expected, window int, fuzzy bool) (anchor, bool) {
	if i, ok := searchOutward(source, block, expected, window, exactEqual); ok {
		return anchor{index: i}, true
	}
	if !fuzzy {
		return anchor{}, false
	}
	if i, ok := searchOutward(source, block, expected, window, normalizedEqual); ok {
		return anchor{index: i, fuzzy: true}, true
	}
	return anchor{}, false
}

func searchOutward(source, block []string, expected, window int, eq func(a, b string) bool) (int, bool) {
	for d := 0; d <= window; d++ {
		for _, cand := range [2]int{expected + d, expected - d} {
			if matchAt(source, block, cand, eq) {
				return cand, true
			}
			if d == 0 {
				break
			}
		}
	}
	return 0, false
}

func matchAt(source, block []string, at int, eq func(a, b string) bool) bool {
	if at < 0 || at+len(block) > len(source) {
		return false
	}
	for j, line := range block {
		if !eq(source[at+j], line) {
			return false
		}
	}
	return true
}

func exactEqual(a, b string) bool { return a == b }

func normalizedEqual(a, b string) bool {
	return normalizeLineForMatching(a) == normalizeLineForMatching(b)
}

// bestCandidate returns the position within the window where the most block
// lines match after normalisation, preferring the position nearest to
// expected. The score is the number of matching lines.
func bestCandidate(source, block []string, expected, window int) (index, score int) {
	index, score = -1, 0
	for d := 0; d <= window; d++ {
		for _, cand := range [2]int{expected + d, expected - d} {
			if cand < 0 || cand >= len(source) {
				continue
			}
			s := 0
			for j := 0; j < len(block) && cand+j < len(source); j++ {
				if normalizedEqual(source[cand+j], block[j]) {
					s++
				}
			}
			if s > score {
				index, score = cand, s
			}
			if d == 0 {
				break
			}
		}
	}
	return index, score
}
