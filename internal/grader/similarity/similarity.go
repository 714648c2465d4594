// Package similarity scores how close an output is to its expected content
// using character-frequency cosine similarity. It backs the partial-credit
// number kept alongside the exact verdict.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Score returns the cosine similarity of the character-frequency vectors of
// a and b, scaled to 0-100. Whitespace is stripped before counting.
// Returns 0 when either stripped string is empty, which guards the
// divide-by-zero on a zero-magnitude vector. Symmetric in its arguments.
// Identical stripped inputs score exactly 100 and the result is clamped to
// [0, 100] so float rounding cannot push it past either bound.
func Score(a, b string) float64 {
	sa, sb := stripWhitespace(a), stripWhitespace(b)
	if sa == sb {
		if sa == "" {
			return 0
		}
		return 100
	}
	freqA := termFrequency(sa)
	freqB := termFrequency(sb)

	var dot, magA, magB float64
	for r, countA := range freqA {
		ca := float64(countA)
		magA += ca * ca
		if countB, ok := freqB[r]; ok {
			dot += ca * float64(countB)
		}
	}
	for _, countB := range freqB {
		cb := float64(countB)
		magB += cb * cb
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	// Single sqrt over the exact integer product keeps equal frequency
	// vectors (permutations) at exactly 100.
	s := dot / math.Sqrt(magA*magB) * 100
	return math.Min(100, math.Max(0, s))
}

func termFrequency(s string) map[rune]int {
	freq := make(map[rune]int, len(s))
	for _, r := range s {
		freq[r]++
	}
	return freq
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
