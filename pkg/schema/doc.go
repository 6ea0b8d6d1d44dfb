// Package schema validates tool inputs and outputs against JSON Schema.
//
// Validation is a free function with no knowledge of tools:
//
//	in, err := schema.Validate(s, raw)
//
// The same call serves input checks before execution and output checks after.
// Values are normalized to JSON shapes first, so a Go struct, a map and its
// json.RawMessage encoding all validate identically.
package schema
