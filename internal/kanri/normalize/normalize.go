// Package normalize turns free-form chat text into the canonical form the
// classifier matches against.
//
// The pipeline is fixed and every stage is total:
//
//  1. lower-case + accent stripping (é→e, ã→a, ç→c)
//  2. elongation reduction ("oiiiii" → "oii")
//  3. emoji isolation and punctuation stripping
//  4. spelled-out numerals and ordinals to digits ("terceira" → "3")
//  5. synonym substitution, longest phrase first
//
// Synonyms run last on purpose: "trêees" only reaches "3" after the accent
// and elongation stages have had their turn.
package normalize

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSubstitutePasses bounds synonym rescans. Synonym chains in a sane table
// settle in two passes.
const maxSubstitutePasses = 4

// Text is normalized message text. Values are produced by Normalizer.Normalize
// and are never edited afterwards.
type Text string

// String returns the text as a plain string.
func (t Text) String() string { return string(t) }

// Synthetic words substituted for confirmation emoji before punctuation is
// stripped.
const (
	EmojiYes = "__EMOJI_YES__"
	EmojiNo  = "__EMOJI_NO__"
)

var emojiWords = map[rune]string{
	'👍': EmojiYes,
	'✅': EmojiYes,
	'❌': EmojiNo,
	'👎': EmojiNo,
}

// tokenCase restores the emoji words after lower-casing so that normalizing
// already-normalized text is a no-op.
var tokenCase = strings.NewReplacer(
	strings.ToLower(EmojiYes), EmojiYes,
	strings.ToLower(EmojiNo), EmojiNo,
)

// Synonym maps every variant phrase to one canonical phrase.
type Synonym struct {
	Canonical string
	Variants  []string
}

// phrase is a compiled synonym key: the squeezed tokens to match and the
// tokens to emit in their place.
type phrase struct {
	match   []string
	replace []string
}

// Normalizer applies the normalization pipeline. It is immutable after New
// and safe for concurrent use.
type Normalizer struct {
	phrases []phrase
	longest int
}

// New compiles a Normalizer from a precedence-ordered synonym table. Keys are
// themselves run through stages 1-4 so they are written in the same form the
// text will be in when stage 5 sees it.
func New(synonyms []Synonym) *Normalizer {
	n := &Normalizer{}
	seen := make(map[string]struct{})

	add := func(key string, replace []string) {
		toks := prepare(key)
		if len(toks) == 0 {
			return
		}
		match := make([]string, len(toks))
		for i, t := range toks {
			match[i] = squeeze(t)
		}
		k := strings.Join(match, " ")
		if _, dup := seen[k]; dup {
			// First declaration wins.
			return
		}
		seen[k] = struct{}{}
		n.phrases = append(n.phrases, phrase{match: match, replace: replace})
		if len(match) > n.longest {
			n.longest = len(match)
		}
	}

	for _, syn := range synonyms {
		canonical := prepare(syn.Canonical)
		if len(canonical) == 0 {
			continue
		}
		add(syn.Canonical, canonical)
		for _, v := range syn.Variants {
			add(v, canonical)
		}
	}
	return n
}

// Normalize runs the full pipeline. It never fails; text that no stage can
// improve comes back trimmed and lower-cased.
func (n *Normalizer) Normalize(raw string) Text {
	toks := prepare(raw)
	if n != nil && len(n.phrases) > 0 {
		// A replacement can complete a longer phrase with the token before
		// it ("to trabalhando na" → "to fazendo"), so substitute until
		// nothing changes.
		for range maxSubstitutePasses {
			next := n.substitute(toks)
			if slices.Equal(next, toks) {
				break
			}
			toks = next
		}
	}
	return Text(strings.Join(toks, " "))
}

// prepare runs stages 1-4 and returns the resulting tokens.
func prepare(raw string) []string {
	s := stripAccents(strings.ToLower(raw))
	s = tokenCase.Replace(s)
	s = reduceElongation(s)
	s = stripPunctuation(s)
	return convertNumerals(strings.Fields(s))
}

// stripAccents removes combining marks after canonical decomposition. A
// transform error leaves the input untouched.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// reduceElongation collapses runs of three or more identical letters to two.
// Digits are left alone so "1000" stays a thousand.
func reduceElongation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > 2 && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripPunctuation replaces the whitelisted emoji with their synthetic words
// and every other non-word rune with a space.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if w, ok := emojiWords[r]; ok {
			b.WriteByte(' ')
			b.WriteString(w)
			b.WriteByte(' ')
			continue
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// substitute replaces synonym phrases, scanning left to right and trying the
// longest phrase at each position first.
func (n *Normalizer) substitute(toks []string) []string {
	squeezed := make([]string, len(toks))
	for i, t := range toks {
		squeezed[i] = squeeze(t)
	}

	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); {
		p, ok := n.match(squeezed[i:])
		if !ok {
			out = append(out, toks[i])
			i++
			continue
		}
		out = append(out, p.replace...)
		i += len(p.match)
	}
	return out
}

func (n *Normalizer) match(toks []string) (phrase, bool) {
	for size := min(n.longest, len(toks)); size > 0; size-- {
		for _, p := range n.phrases {
			if len(p.match) != size {
				continue
			}
			if equalTokens(p.match, toks[:size]) {
				return p, true
			}
		}
	}
	return phrase{}, false
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// squeeze collapses every run of a repeated letter to a single letter. It is
// the lookup key for numeral words and synonyms, which makes "trees",
// "doiss" and "concluii" find their dictionary entries.
func squeeze(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	var prev rune
	for i, r := range tok {
		if i > 0 && r == prev && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// Fold lower-cases s and strips accents rune by rune. Unlike Normalize it
// keeps the rune count, so an index into Fold(s) is an index into []rune(s).
func Fold(s string) string {
	rs := []rune(s)
	for i, r := range rs {
		r = unicode.ToLower(r)
		for _, d := range norm.NFD.String(string(r)) {
			if !unicode.Is(unicode.Mn, d) {
				r = d
				break
			}
		}
		rs[i] = r
	}
	return string(rs)
}
