package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// cardinals are keyed by their squeezed spelling.
var cardinals = map[string]int{
	"um": 1, "uma": 1,
	"dois": 2, "duas": 2,
	"tres": 3,
	"quatro": 4,
	"cinco":  5,
	"seis":   6,
	"sete":   7,
	"oito":   8,
	"nove":   9,
	"dez":    10,
}

var ordinals = map[string]int{
	"primeiro": 1, "primeira": 1,
	"segundo": 2, "segunda": 2,
	"terceiro": 3, "terceira": 3,
	"quarto": 4, "quarta": 4,
	"quinto": 5, "quinta": 5,
	"sexto": 6, "sexta": 6,
	"setimo": 7, "setima": 7,
	"oitavo": 8, "oitava": 8,
	"nono": 9, "nona": 9,
	"decimo": 10, "decima": 10,
}

// convertNumerals rewrites spelled-out numbers 1-10, their ordinals and
// abbreviated ordinals ("3a", "1º") as digits.
//
// "um"/"uma" double as the indefinite article, so they only become 1 when
// nothing but a number, "e" or the end of the message follows. Ordinals
// followed by "feira" name a weekday and are kept.
func convertNumerals(toks []string) []string {
	out := make([]string, len(toks))
	for i, tok := range toks {
		out[i] = tok
		if d, ok := abbreviatedOrdinal(tok); ok {
			out[i] = d
			continue
		}

		key := squeeze(tok)
		next := ""
		if i+1 < len(toks) {
			next = squeeze(toks[i+1])
		}

		if n, ok := cardinals[key]; ok {
			if (key == "um" || key == "uma") && !numeralContext(next) {
				continue
			}
			out[i] = strconv.Itoa(n)
			continue
		}
		if n, ok := ordinals[key]; ok && next != "feira" {
			out[i] = strconv.Itoa(n)
		}
	}
	return out
}

func numeralContext(next string) bool {
	if next == "" || next == "e" || isDigits(next) {
		return true
	}
	_, ok := cardinals[next]
	return ok
}

// abbreviatedOrdinal turns "3a", "3o", "3ª" and "3º" into "3".
func abbreviatedOrdinal(tok string) (string, bool) {
	trimmed := strings.TrimRightFunc(tok, func(r rune) bool {
		return r == 'a' || r == 'o' || r == 'ª' || r == 'º'
	})
	if trimmed == tok || len(tok)-len(trimmed) > len("º") || !isDigits(trimmed) {
		return "", false
	}
	return trimmed, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
