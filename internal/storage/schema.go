package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrSchema is returned when document JSON matches neither persisted layout
var ErrSchema = errors.New("document does not match the persisted layout")

// Layout identifies the shape of a persisted document
type Layout int

const (
	// LayoutSections is the nested section tree
	LayoutSections Layout = iota
	// LayoutLegacy is a flat block list with section_heading markers
	LayoutLegacy
)

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "sections"
}

const (
	documentSchemaURL = "https://pstuifzand.github.io/section-outliner/document.schema.json"
	legacySchemaURL   = "https://pstuifzand.github.io/section-outliner/legacy.schema.json"
)

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sections"],
  "properties": {
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/section"}
    }
  },
  "$defs": {
    "mark": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"},
        "attrs": {"type": "object"}
      }
    },
    "inline": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "text": {"type": "string"},
        "marks": {"type": "array", "items": {"$ref": "#/$defs/mark"}},
        "attrs": {"type": "object"}
      }
    },
    "block": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "attrs": {"type": "object"},
        "content": {"type": "array", "items": {"$ref": "#/$defs/inline"}},
        "blocks": {"type": "array", "items": {"$ref": "#/$defs/block"}}
      }
    },
    "section": {
      "type": "object",
      "required": ["id", "heading", "body", "children"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "collapsed": {"type": "boolean"},
        "heading": {"type": "array", "items": {"$ref": "#/$defs/inline"}},
        "body": {"type": "array", "items": {"$ref": "#/$defs/block"}},
        "children": {"type": "array", "items": {"$ref": "#/$defs/section"}}
      }
    }
  }
}`

const legacySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["blocks"],
  "not": {"required": ["sections"]},
  "properties": {
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "attrs": {"type": "object"},
          "content": {"type": "array"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaErr      error
	documentLayout *jsonschema.Schema
	legacyLayout   *jsonschema.Schema
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	for url, src := range map[string]string{
		documentSchemaURL: documentSchema,
		legacySchemaURL:   legacySchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema %s: %w", url, err)
			return
		}
		if err := c.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", url, err)
			return
		}
	}
	if documentLayout, schemaErr = c.Compile(documentSchemaURL); schemaErr != nil {
		return
	}
	legacyLayout, schemaErr = c.Compile(legacySchemaURL)
}

// DetectLayout validates raw JSON against the persisted layouts and reports
// which one it matches
func DetectLayout(data []byte) (Layout, error) {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return 0, schemaErr
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse JSON: %w", err)
	}
	docErr := documentLayout.Validate(inst)
	if docErr == nil {
		return LayoutSections, nil
	}
	if legacyLayout.Validate(inst) == nil {
		return LayoutLegacy, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrSchema, docErr)
}
