// Package tool defines the tool data model shared by builders, the registry
// and the executor.
//
// Invariants:
//   - Simple names and namespaces match ^[a-z0-9-]+$.
//   - Fully qualified names join segments with "/" only; ":" is rejected.
//   - Implementation is a closed variant: NativeFunction, HTTPEndpoint or
//     RemoteProcedure. Anything else is reported as ErrUnsupportedImplementation
//     at execution time.
//   - Every runtime failure is one of the typed errors in errors.go.
package tool
