package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const synonymsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["synonyms"],
  "additionalProperties": false,
  "properties": {
    "synonyms": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["canonical", "variants"],
        "additionalProperties": false,
        "properties": {
          "canonical": {"type": "string", "minLength": 1},
          "variants": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`

const intentsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rules"],
  "additionalProperties": false,
  "$defs": {
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "pattern": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {
          "type": "object",
          "required": ["match"],
          "additionalProperties": false,
          "properties": {
            "match": {"type": "string", "minLength": 1},
            "confidence": {"$ref": "#/$defs/confidence"}
          }
        }
      ]
    }
  },
  "properties": {
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["intent", "confidence"],
        "additionalProperties": false,
        "properties": {
          "intent": {"type": "string", "pattern": "^[a-z_]+$"},
          "confidence": {"$ref": "#/$defs/confidence"},
          "describe": {"type": "string"},
          "patterns": {"type": "array", "items": {"$ref": "#/$defs/pattern"}},
          "examples": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`

const repliesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["replies"],
  "additionalProperties": false,
  "properties": {
    "replies": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": {
          "type": "array",
          "minItems": 1,
          "items": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var schemaSources = map[string]string{
	synonymsFile: synonymsSchema,
	intentsFile:  intentsSchema,
	repliesFile:  repliesSchema,
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		compiled = make(map[string]*jsonschema.Schema, len(schemaSources))
		for name, src := range schemaSources {
			url := "kanri://schema/" + name + ".json"
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("catalog: schema %s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("catalog: schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// validate checks a raw YAML document against the schema registered for
// name. The YAML is round-tripped through encoding/json first so the
// validator only ever sees JSON value types.
func validate(name string, raw []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	schema, ok := all[name]
	if !ok {
		return fmt.Errorf("catalog: no schema for %s", name)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("catalog: %s: parse: %w", name, err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog: %s: %w", name, err)
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return fmt.Errorf("catalog: %s: %w", name, err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("catalog: %s: invalid: %w", name, err)
	}
	return nil
}
