package nlp

import (
	"fmt"
	"regexp"
	"slices"
	"sort"

	"github.com/bdobrica/Kanri/internal/kanri/catalog"
	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

// Confidence gates.
//
//   - ≥ ActionThreshold: the dialogue layer may act on the result.
//   - ≥ FuzzyFloor:      a fuzzy score is good enough to name an intent.
//   - otherwise:         IntentUnknown, with the best score kept as signal.
const (
	ActionThreshold = 0.75
	FuzzyFloor      = 0.80
)

var digitRun = regexp.MustCompile(`\d+`)

type rule struct {
	intent     Intent
	re         *regexp.Regexp
	confidence float64
}

type exampleSet struct {
	intent  Intent
	phrases []string // normalized, digits masked
}

// Candidate is an intent with its best fuzzy score.
type Candidate struct {
	Intent Intent
	Score  float64
}

// Match is the raw classifier output for one normalized text.
type Match struct {
	Intent     Intent
	Confidence float64
	// Raw is the rule pattern that matched, or the closest example phrase.
	Raw string
	// Exact is true for a Tier-1 rule match.
	Exact bool
	// Candidates ranks intents by fuzzy score. It is filled whenever the
	// result is below ActionThreshold.
	Candidates []Candidate
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules    []rule
	examples []exampleSet // in first-declaration order
	describe map[Intent]string
	sim      Similarity
}

// NewClassifier compiles the rule table. Example phrases are run through n so
// they live in the same canonical space as incoming text. A nil sim selects
// LevenshteinRatio.
func NewClassifier(blocks []catalog.RuleBlock, n *normalize.Normalizer, sim Similarity) (*Classifier, error) {
	if sim == nil {
		sim = LevenshteinRatio{}
	}
	c := &Classifier{describe: make(map[Intent]string), sim: sim}
	position := make(map[Intent]int)

	for bi, b := range blocks {
		intent, err := ParseIntent(b.Intent)
		if err != nil {
			return nil, fmt.Errorf("nlp: rule block %d: %w", bi, err)
		}
		if _, seen := position[intent]; !seen {
			position[intent] = len(c.examples)
			c.examples = append(c.examples, exampleSet{intent: intent})
		}
		if b.Describe != "" && c.describe[intent] == "" {
			c.describe[intent] = b.Describe
		}

		for pi, p := range b.Patterns {
			re, err := regexp.Compile(p.Match)
			if err != nil {
				return nil, fmt.Errorf("nlp: rule block %d (%s) pattern %d: %w", bi, intent, pi, err)
			}
			conf := b.Confidence
			if p.Confidence > 0 {
				conf = p.Confidence
			}
			c.rules = append(c.rules, rule{intent: intent, re: re, confidence: conf})
		}

		set := &c.examples[position[intent]]
		for _, ex := range b.Examples {
			masked := mask(n.Normalize(ex).String())
			if masked != "" {
				set.phrases = append(set.phrases, masked)
			}
		}
	}
	return c, nil
}

// Classify runs Tier 1 then, if nothing matched, Tier 2.
func (c *Classifier) Classify(text normalize.Text) Match {
	s := text.String()
	for _, r := range c.rules {
		if !r.re.MatchString(s) {
			continue
		}
		m := Match{Intent: r.intent, Confidence: r.confidence, Raw: r.re.String(), Exact: true}
		if m.Confidence < ActionThreshold {
			m.Candidates = promote(c.rank(mask(s)), r.intent)
		}
		return m
	}

	cands, closest := c.rankWithClosest(mask(s))
	m := Match{Intent: IntentUnknown, Candidates: cands}
	if len(cands) == 0 {
		return m
	}
	// Candidates are sorted stably from declaration order, so the head is
	// the first-declared intent among equal scores.
	best := cands[0]
	m.Confidence = best.Score
	m.Raw = closest[best.Intent]
	if best.Score >= FuzzyFloor {
		m.Intent = best.Intent
		m.Candidates = nil
	}
	return m
}

// MatchRule runs only the Tier-1 rules of the given intents, in declaration
// order, and reports the first match. No fuzzy scoring is done.
func (c *Classifier) MatchRule(text normalize.Text, intents ...Intent) (Match, bool) {
	s := text.String()
	for _, r := range c.rules {
		if !slices.Contains(intents, r.intent) || !r.re.MatchString(s) {
			continue
		}
		return Match{Intent: r.intent, Confidence: r.confidence, Raw: r.re.String(), Exact: true}, true
	}
	return Match{Intent: IntentUnknown}, false
}

// Describe returns the conversational phrase offered for intent in a
// disambiguation reply, or "" when the intent is never offered.
func (c *Classifier) Describe(i Intent) string {
	return c.describe[i]
}

func (c *Classifier) rank(masked string) []Candidate {
	cands, _ := c.rankWithClosest(masked)
	return cands
}

func (c *Classifier) rankWithClosest(masked string) ([]Candidate, map[Intent]string) {
	cands := make([]Candidate, 0, len(c.examples))
	closest := make(map[Intent]string, len(c.examples))
	for _, set := range c.examples {
		if len(set.phrases) == 0 {
			continue
		}
		best, phrase := -1.0, ""
		for _, p := range set.phrases {
			if sc := c.sim.Score(masked, p); sc > best {
				best, phrase = sc, p
			}
		}
		cands = append(cands, Candidate{Intent: set.intent, Score: best})
		closest[set.intent] = phrase
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	return cands, closest
}

// promote moves intent to the front of cands, inserting it if absent.
func promote(cands []Candidate, intent Intent) []Candidate {
	out := make([]Candidate, 0, len(cands)+1)
	var head *Candidate
	for i := range cands {
		if cands[i].Intent == intent {
			head = &cands[i]
			continue
		}
		out = append(out, cands[i])
	}
	if head == nil {
		head = &Candidate{Intent: intent}
	}
	return append([]Candidate{*head}, out...)
}

// mask replaces every digit run with "0" so "feito 12" and "feito 3" compare
// as the same phrase.
func mask(s string) string {
	return digitRun.ReplaceAllString(s, "0")
}
