package nlp

import (
	"fmt"

	"github.com/bdobrica/Kanri/internal/kanri/catalog"
	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

// ParseResult is the full reading of one message. It is built once and never
// modified.
type ParseResult struct {
	Intent     Intent
	Confidence float64
	Entities   Entities
	Normalized normalize.Text
	Original   string
	Raw        string
	Exact      bool
	Candidates []Candidate
}

// Actionable reports whether the result clears ActionThreshold with a known
// intent.
func (r ParseResult) Actionable() bool {
	return r.Intent != IntentUnknown && r.Confidence >= ActionThreshold
}

// Parser chains normalizer, classifier and extractor.
type Parser struct {
	norm       *normalize.Normalizer
	classifier *Classifier
	extractor  *Extractor
}

// NewParser wires an existing normalizer and classifier together.
func NewParser(n *normalize.Normalizer, c *Classifier) *Parser {
	return &Parser{norm: n, classifier: c, extractor: NewExtractor(n)}
}

// FromCatalog builds the normalizer, classifier and parser for cat.
func FromCatalog(cat *catalog.Catalog, sim Similarity) (*Parser, error) {
	n := normalize.New(cat.SynonymTable())
	c, err := NewClassifier(cat.Rules, n, sim)
	if err != nil {
		return nil, fmt.Errorf("nlp: build classifier: %w", err)
	}
	return NewParser(n, c), nil
}

// Parse reads one raw message.
func (p *Parser) Parse(original string) ParseResult {
	text := p.norm.Normalize(original)
	m := p.classifier.Classify(text)
	r := ParseResult{
		Intent:     m.Intent,
		Confidence: m.Confidence,
		Normalized: text,
		Original:   original,
		Raw:        m.Raw,
		Exact:      m.Exact,
		Candidates: m.Candidates,
	}
	if m.Intent != IntentUnknown {
		r.Entities = p.extractor.Extract(m.Intent, text, original)
	}
	return r
}

// MatchOnly reads raw against the Tier-1 rules of intents alone. Entities
// are not extracted. ok is false when none of those rules match.
func (p *Parser) MatchOnly(raw string, intents ...Intent) (ParseResult, bool) {
	text := p.norm.Normalize(raw)
	m, ok := p.classifier.MatchRule(text, intents...)
	return ParseResult{
		Intent:     m.Intent,
		Confidence: m.Confidence,
		Normalized: text,
		Original:   raw,
		Raw:        m.Raw,
		Exact:      m.Exact,
	}, ok
}

// Normalize exposes the parser's normalizer.
func (p *Parser) Normalize(raw string) normalize.Text {
	return p.norm.Normalize(raw)
}

// ExtractFor normalizes raw and extracts the entities intent would need,
// without classifying. It is how slot answers are read.
func (p *Parser) ExtractFor(intent Intent, raw string) Entities {
	return p.extractor.Extract(intent, p.norm.Normalize(raw), raw)
}

// Describe returns the disambiguation phrase for intent.
func (p *Parser) Describe(i Intent) string {
	return p.classifier.Describe(i)
}
