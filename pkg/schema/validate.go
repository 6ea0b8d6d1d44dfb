package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/xeipuuv/gojsonschema"
)

// Issue is a single violated constraint.
type Issue struct {
	// Field is the dotted path of the offending value, "(root)" for the document.
	Field string `json:"field"`
	// Constraint is the gojsonschema error type, e.g. "required" or "invalid_type".
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError is the structured cause returned when data does not match a schema.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "validation errors: " + strings.Join(parts, "; ")
}

// Fields returns the offending field paths in issue order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		fields[i] = issue.Field
	}
	return fields
}

// Normalize converts a Go value into its JSON-shaped equivalent: structs become
// maps, integers become float64. []byte and json.RawMessage are parsed as JSON
// text rather than treated as opaque values.
func Normalize(data interface{}) (interface{}, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks data against s and returns the normalized value.
// A nil schema accepts anything. On mismatch the error is a *ValidationError.
func Validate(s *Schema, data interface{}) (interface{}, error) {
	normalized, err := Normalize(data)
	if err != nil {
		return nil, &ValidationError{Issues: []Issue{{
			Field:      "(root)",
			Constraint: "invalid_json",
			Message:    err.Error(),
		}}}
	}

	if s == nil {
		return normalized, nil
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return nil, &ValidationError{Issues: []Issue{{
			Field:      "(root)",
			Constraint: "invalid_document",
			Message:    err.Error(),
		}}}
	}

	if !result.Valid() {
		issues := make([]Issue, 0, len(result.Errors()))
		for _, resErr := range result.Errors() {
			field := resErr.Field()
			// required errors are reported against the parent object
			if prop, ok := resErr.Details()["property"].(string); ok && resErr.Type() == "required" {
				if field == "(root)" {
					field = prop
				} else {
					field = field + "." + prop
				}
			}
			issues = append(issues, Issue{
				Field:      field,
				Constraint: resErr.Type(),
				Message:    resErr.Description(),
			})
		}
		return nil, &ValidationError{Issues: issues}
	}

	return normalized, nil
}

// Decode validates data against s and decodes it into T using json field names.
func Decode[T any](s *Schema, data interface{}) (T, error) {
	var out T

	normalized, err := Validate(s, data)
	if err != nil {
		return out, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(normalized); err != nil {
		return out, &ValidationError{Issues: []Issue{{
			Field:      "(root)",
			Constraint: "decode",
			Message:    err.Error(),
		}}}
	}

	return out, nil
}
