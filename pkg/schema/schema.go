package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON Schema document. A nil *Schema accepts any value.
type Schema struct {
	doc      map[string]interface{}
	compiled *gojsonschema.Schema
}

// Parameter describes a single top-level object property. It is the compact
// form tool authors use instead of a full JSON Schema document.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// New compiles a JSON Schema document.
func New(doc map[string]interface{}) (*Schema, error) {
	if doc == nil {
		return nil, fmt.Errorf("schema document cannot be nil")
	}

	// Normalize so Doc() always returns JSON-shaped values
	normalized, err := Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize schema document: %w", err)
	}
	docMap, ok := normalized.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("schema document must be an object")
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(docMap))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Schema{doc: docMap, compiled: compiled}, nil
}

// MustNew is like New but panics on error. Intended for static tool tables.
func MustNew(doc map[string]interface{}) *Schema {
	s, err := New(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse compiles a schema from its JSON encoding.
func Parse(data []byte) (*Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	return New(doc)
}

// FromParameters generates an object schema from a parameter list.
// Unknown properties are rejected.
func FromParameters(params []Parameter) (*Schema, error) {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, param := range params {
		if param.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return nil, fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}

		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			enum := make([]interface{}, len(param.Enum))
			for i, v := range param.Enum {
				enum[i] = v
			}
			paramSchema["enum"] = enum
		}

		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	doc := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	return New(doc)
}

// Doc returns the JSON Schema document. Callers must treat it as read-only.
func (s *Schema) Doc() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object"}
	}
	return s.doc
}

// MarshalJSON encodes the underlying document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Doc())
}
