// Package executor runs registered tools.
//
// Every call goes through the same pipeline regardless of implementation
// kind: lookup, input validation, execution, output validation. Failures at
// each stage surface as the matching error type from package tool, so callers
// can tell a bad request from a broken tool with errors.As.
//
//	exec := executor.New(reg, executor.WithResolver(resolver))
//	out, err := exec.Run(ctx, "math/calculator", map[string]any{"expression": "2 + 2"})
package executor
