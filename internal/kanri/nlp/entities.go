package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

// Task indices outside this range are treated as extraction failures.
const (
	MinTaskIndex = 1
	MaxTaskIndex = 999
)

// Entities are the structured values pulled out of a message. A nil pointer
// or empty slice means the value was not present, never zero.
type Entities struct {
	TaskIndex   *int    `json:"task_index,omitempty"`
	TaskIndices []int   `json:"task_indices,omitempty"`
	Reason      *string `json:"reason,omitempty"`
	HelpTopic   *string `json:"help_topic,omitempty"`
	Title       *string `json:"title,omitempty"`
}

// Merge returns e with every field that is set in o copied over.
func (e Entities) Merge(o Entities) Entities {
	if o.TaskIndex != nil {
		e.TaskIndex = o.TaskIndex
	}
	if len(o.TaskIndices) > 0 {
		e.TaskIndices = append([]int(nil), o.TaskIndices...)
	}
	if o.Reason != nil {
		e.Reason = o.Reason
	}
	if o.HelpTopic != nil {
		e.HelpTopic = o.HelpTopic
	}
	if o.Title != nil {
		e.Title = o.Title
	}
	return e
}

// Indices returns every targeted task index: TaskIndices when set, otherwise
// TaskIndex alone, otherwise nil.
func (e Entities) Indices() []int {
	if len(e.TaskIndices) > 0 {
		return e.TaskIndices
	}
	if e.TaskIndex != nil {
		return []int{*e.TaskIndex}
	}
	return nil
}

// WithIndices sets the index fields the way intent expects them: multi-index
// intents get TaskIndices (and TaskIndex when there is exactly one), the rest
// get only TaskIndex from the first value.
func (e Entities) WithIndices(intent Intent, idx []int) Entities {
	if len(idx) == 0 {
		return e
	}
	if intent.MultiIndex() {
		e.TaskIndices = append([]int(nil), idx...)
		if len(idx) == 1 {
			e.TaskIndex = intPtr(idx[0])
		}
		return e
	}
	e.TaskIndex = intPtr(idx[0])
	return e
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

// signedNumber spots "-2" written as a negative number rather than as the
// tail of a "1-2" range.
var signedNumber = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])-\d`)

// reasonDelimiter is matched against folded text.
var reasonDelimiter = regexp.MustCompile(`\s[-–—]\s|:|\bporque\b|\bpq\b`)

// createPhrase captures the title after a create-task phrase, over folded
// text.
var createPhrase = regexp.MustCompile(`(?s)^\s*(?:(?:quero|queria|preciso|vou|pode|por favor)\s+)*` +
	`(?:nova|novo|criar?|crie|adicionar?|adicione|add|incluir?|inclua|cadastrar?|anotar?|anote)\s+` +
	`(?:uma\s+|um\s+|a\s+|1\s+)?(?:nova\s+)?(?:tarefa|task)(?:\s+nova)?\s*(?:[:\-–]\s*)?(.*)$`)

// Extractor pulls intent-specific entities out of a message. It keeps a
// normalizer to re-normalize fragments of the original text.
type Extractor struct {
	norm *normalize.Normalizer
}

// NewExtractor returns an Extractor. A nil normalizer normalizes without
// synonyms.
func NewExtractor(n *normalize.Normalizer) *Extractor {
	return &Extractor{norm: n}
}

// Extract returns the entities for intent. text is the normalized form of
// original; free-text values are cut from original so they keep the user's
// accents and casing.
func (x *Extractor) Extract(intent Intent, text normalize.Text, original string) Entities {
	var e Entities
	switch intent {
	case IntentDoneTask, IntentInProgressTask, IntentShowTask:
		e = e.WithIndices(intent, x.indices(text, original))

	case IntentBlockedTask:
		head, reason, ok := splitReason(original)
		if ok {
			e.Reason = strPtr(reason)
		}
		e = e.WithIndices(intent, x.indices(x.norm.Normalize(head), head))

	case IntentCreateTask:
		if title, ok := extractTitle(original); ok {
			e.Title = strPtr(title)
		}

	case IntentHelp:
		if topic, ok := helpTopic(text); ok {
			e.HelpTopic = strPtr(topic)
		}
	}
	return e
}

// indices collects digit tokens in order, dropping repeats. Any negative or
// out-of-range number voids the whole extraction.
func (x *Extractor) indices(text normalize.Text, original string) []int {
	if signedNumber.MatchString(original) {
		return nil
	}
	var out []int
	seen := make(map[int]struct{})
	for _, tok := range strings.Fields(text.String()) {
		if !allDigits(tok) {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < MinTaskIndex || n > MaxTaskIndex {
			return nil
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// splitReason cuts original at the first reason delimiter. head is
// everything before it; reason is the trimmed remainder and ok is false when
// there is no delimiter or nothing meaningful follows it.
func splitReason(original string) (head, reason string, ok bool) {
	folded := normalize.Fold(original)
	loc := reasonDelimiter.FindStringIndex(folded)
	if loc == nil {
		return original, "", false
	}
	runes := []rune(original)
	start := utf8.RuneCountInString(folded[:loc[0]])
	end := utf8.RuneCountInString(folded[:loc[1]])
	head = string(runes[:start])
	reason = strings.TrimSpace(string(runes[end:]))
	if !Meaningful(reason) {
		return head, "", false
	}
	return head, reason, true
}

func extractTitle(original string) (string, bool) {
	folded := normalize.Fold(original)
	m := createPhrase.FindStringSubmatchIndex(folded)
	if m == nil || m[2] < 0 {
		return "", false
	}
	start := utf8.RuneCountInString(folded[:m[2]])
	title := strings.TrimSpace(string([]rune(original)[start:]))
	if !Meaningful(title) {
		return "", false
	}
	return title, true
}

func helpTopic(text normalize.Text) (string, bool) {
	toks := strings.Fields(text.String())
	for i, t := range toks {
		if t == "ajuda" && i+1 < len(toks) {
			return toks[i+1], true
		}
	}
	return "", false
}

// Meaningful reports whether s contains at least one letter or digit.
func Meaningful(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
