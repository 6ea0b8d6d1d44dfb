package tool

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/harun/toolbelt/pkg/schema"
)

// Definition is the immutable metadata shown to agents.
type Definition struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
}

// Metadata describes a toolkit (all tools of one namespace).
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	// Derived is set when the metadata was copied from a member tool rather than
	// declared for the toolkit itself.
	Derived bool `json:"derived,omitempty"`
}

// IsZero reports whether no field besides Name is set.
func (m Metadata) IsZero() bool {
	return m.Description == "" && m.Version == "" && m.Author == ""
}

// Kind names an implementation variant.
type Kind string

const (
	KindNative  Kind = "native"
	KindHTTP    Kind = "http"
	KindRemote  Kind = "remote"
	KindUnknown Kind = "unknown"
)

// Implementation is the closed set of execution strategies. Only the types in
// this package satisfy it: NativeFunction, HTTPEndpoint and RemoteProcedure.
type Implementation interface {
	Schemas() (input, output *schema.Schema)
	implementation()
}

// NativeFunc is an in-process tool body.
type NativeFunc func(ctx context.Context, input interface{}) (interface{}, error)

// NativeFunction runs a Go function in-process.
type NativeFunction struct {
	Func         NativeFunc
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
}

// HTTPEndpoint issues one HTTP request per call. URL may contain {field}
// placeholders filled from the validated input.
type HTTPEndpoint struct {
	URL     string
	Method  string
	Headers map[string]string
	// BodyMapping projects input fields into the request body: body key -> input field.
	// When empty the whole input is sent.
	BodyMapping  map[string]string
	Timeout      time.Duration
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
}

// RemoteProcedure is served by an external service located by slug.
type RemoteProcedure struct {
	Service string
	// Version is an optional semver constraint such as "^1.2".
	Version      string
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
}

func (n NativeFunction) Schemas() (*schema.Schema, *schema.Schema)  { return n.InputSchema, n.OutputSchema }
func (h HTTPEndpoint) Schemas() (*schema.Schema, *schema.Schema)    { return h.InputSchema, h.OutputSchema }
func (r RemoteProcedure) Schemas() (*schema.Schema, *schema.Schema) { return r.InputSchema, r.OutputSchema }

func (NativeFunction) implementation()  {}
func (HTTPEndpoint) implementation()    {}
func (RemoteProcedure) implementation() {}

// EffectiveMethod returns the upper-cased method, GET when unset.
func (h HTTPEndpoint) EffectiveMethod() string {
	if h.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(strings.TrimSpace(h.Method))
}

// Tool pairs a definition with its implementation.
type Tool struct {
	Definition     Definition
	Implementation Implementation
}

// Name returns the simple name of the tool.
func (t Tool) Name() string {
	return t.Definition.Name
}

// Kind returns the implementation kind.
func (t Tool) Kind() Kind {
	return KindOf(t.Implementation)
}

// Schemas returns the declared input and output schemas. Unknown or missing
// implementations yield nil schemas.
func (t Tool) Schemas() (input, output *schema.Schema) {
	impl := Concrete(t.Implementation)
	if impl == nil {
		return nil, nil
	}
	return impl.Schemas()
}

// Concrete dereferences pointer variants so callers only deal with values.
// A nil pointer yields nil.
func Concrete(impl Implementation) Implementation {
	switch v := impl.(type) {
	case *NativeFunction:
		if v == nil {
			return nil
		}
		return *v
	case *HTTPEndpoint:
		if v == nil {
			return nil
		}
		return *v
	case *RemoteProcedure:
		if v == nil {
			return nil
		}
		return *v
	}
	return impl
}

// KindOf classifies an implementation.
func KindOf(impl Implementation) Kind {
	switch Concrete(impl).(type) {
	case NativeFunction:
		return KindNative
	case HTTPEndpoint:
		return KindHTTP
	case RemoteProcedure:
		return KindRemote
	default:
		return KindUnknown
	}
}

// Native is a shorthand for building a native tool.
func Native(def Definition, in, out *schema.Schema, fn NativeFunc) Tool {
	return Tool{
		Definition: def,
		Implementation: NativeFunction{
			Func:         fn,
			InputSchema:  in,
			OutputSchema: out,
		},
	}
}
