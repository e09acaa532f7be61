package nlp

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two normalized strings in [0,1], 1 meaning identical.
// Implementations must be pure and safe for concurrent use.
type Similarity interface {
	Score(a, b string) float64
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(a, b string) float64

// Score calls f(a, b).
func (f SimilarityFunc) Score(a, b string) float64 { return f(a, b) }

// LevenshteinRatio is 1 - distance/longest, counted in runes. It is the
// default fuzzy scorer: forgiving of typos, strict about length.
type LevenshteinRatio struct{}

// Score implements Similarity.
func (LevenshteinRatio) Score(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// TokenOverlap is the Sørensen–Dice coefficient over the sets of
// whitespace-separated tokens. It ignores word order and is blind to typos.
type TokenOverlap struct{}

// Score implements Similarity.
func (TokenOverlap) Score(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	shared := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(as)+len(bs))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
