// Package catalog loads the language resources Kanri runs on: the synonym
// table used by the normalizer, the intent rule table used by the classifier
// and the reply pools used by the humanizer.
//
// Each resource is a YAML file. Defaults are embedded in the binary; an
// operator can override any of them by pointing Load at a directory that
// contains a file with the same name:
//
//	synonyms.yaml
//	intents.yaml
//	replies.yaml
//
// Every file is validated against a JSON Schema before it is decoded, so a
// malformed override fails at startup instead of at the first message.
// A loaded Catalog is read-only and shared by reference.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

const (
	synonymsFile = "synonyms.yaml"
	intentsFile  = "intents.yaml"
	repliesFile  = "replies.yaml"
)

// Catalog is the full set of language resources.
type Catalog struct {
	Synonyms []SynonymGroup
	Rules    []RuleBlock
	Replies  Replies
}

// SynonymGroup maps every variant to one canonical phrase.
type SynonymGroup struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// RuleBlock is one entry of the rule table. An intent may have several
// blocks; order across the whole table is the match order.
type RuleBlock struct {
	Intent     string    `yaml:"intent"`
	Confidence float64   `yaml:"confidence"`
	Describe   string    `yaml:"describe"`
	Patterns   []Pattern `yaml:"patterns"`
	Examples   []string  `yaml:"examples"`
}

// Pattern is a regular expression over normalized text. Confidence is zero
// when the pattern inherits the block's confidence.
type Pattern struct {
	Match      string
	Confidence float64
}

// UnmarshalYAML accepts either a bare regex string or a
// {match, confidence} mapping.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Match = node.Value
		return nil
	}
	var full struct {
		Match      string  `yaml:"match"`
		Confidence float64 `yaml:"confidence"`
	}
	if err := node.Decode(&full); err != nil {
		return err
	}
	p.Match, p.Confidence = full.Match, full.Confidence
	return nil
}

// Replies maps category → subcategory → templates.
type Replies map[string]map[string][]string

// Pool returns the templates for category/subcategory, or nil.
func (r Replies) Pool(category, subcategory string) []string {
	return r[category][subcategory]
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(nil)
}

// Load reads the catalog from fsys, falling back to the embedded default for
// every file fsys does not contain. A nil fsys loads only the defaults.
func Load(fsys fs.FS) (*Catalog, error) {
	var syn struct {
		Synonyms []SynonymGroup `yaml:"synonyms"`
	}
	if err := decodeFile(fsys, synonymsFile, &syn); err != nil {
		return nil, err
	}

	var rules struct {
		Rules []RuleBlock `yaml:"rules"`
	}
	if err := decodeFile(fsys, intentsFile, &rules); err != nil {
		return nil, err
	}

	var replies struct {
		Replies Replies `yaml:"replies"`
	}
	if err := decodeFile(fsys, repliesFile, &replies); err != nil {
		return nil, err
	}

	return &Catalog{
		Synonyms: syn.Synonyms,
		Rules:    rules.Rules,
		Replies:  replies.Replies,
	}, nil
}

// SynonymTable converts the synonym groups into the normalizer's input.
func (c *Catalog) SynonymTable() []normalize.Synonym {
	out := make([]normalize.Synonym, len(c.Synonyms))
	for i, g := range c.Synonyms {
		out[i] = normalize.Synonym{Canonical: g.Canonical, Variants: g.Variants}
	}
	return out
}

// decodeFile reads name from fsys (or the embedded defaults), validates it
// against its schema and decodes it into dst.
func decodeFile(fsys fs.FS, name string, dst any) error {
	raw, err := readFile(fsys, name)
	if err != nil {
		return err
	}
	if err := validate(name, raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("catalog: %s: decode: %w", name, err)
	}
	return nil
}

func readFile(fsys fs.FS, name string) ([]byte, error) {
	if fsys != nil {
		raw, err := fs.ReadFile(fsys, name)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("catalog: %s: %w", name, err)
		}
	}
	raw, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		return nil, fmt.Errorf("catalog: embedded %s: %w", name, err)
	}
	return raw, nil
}
