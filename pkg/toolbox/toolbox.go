package toolbox

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolbelt/pkg/tool"
)

// Toolbox is the immutable set of tools in one namespace.
type Toolbox struct {
	namespace string
	tools     map[string]tool.Tool
	metadata  *tool.Metadata
}

// Namespace returns the namespace the toolbox was built for.
func (tb *Toolbox) Namespace() string {
	return tb.namespace
}

// Get returns the tool registered under a simple name.
func (tb *Toolbox) Get(name string) (tool.Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Names returns the simple names in sorted order.
func (tb *Toolbox) Names() []string {
	names := make([]string, 0, len(tb.tools))
	for name := range tb.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tools.
func (tb *Toolbox) Len() int {
	return len(tb.tools)
}

// Metadata returns explicitly declared toolkit metadata, if any.
func (tb *Toolbox) Metadata() (tool.Metadata, bool) {
	if tb.metadata == nil {
		return tool.Metadata{}, false
	}
	return *tb.metadata, true
}

// Builder accumulates tools for a single namespace.
type Builder struct {
	namespace  string
	tools      map[string]tool.Tool
	metadata   *tool.Metadata
	noOverride bool
	logger     zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithNoOverride makes re-adding a simple name an error instead of a warning.
func WithNoOverride() Option {
	return func(b *Builder) {
		b.noOverride = true
	}
}

// WithLogger sets the logger used for override warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a builder for namespace.
func NewBuilder(namespace string, opts ...Option) *Builder {
	b := &Builder{
		namespace: namespace,
		tools:     make(map[string]tool.Tool),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Namespace returns the builder's namespace.
func (b *Builder) Namespace() string {
	return b.namespace
}

// WithMetadata declares toolkit-level metadata.
func (b *Builder) WithMetadata(meta tool.Metadata) *Builder {
	if meta.Name == "" {
		meta.Name = b.namespace
	}
	b.metadata = &meta
	return b
}

// AddTool registers t under its simple name. Re-adding a name replaces the
// previous tool and logs a warning.
func (b *Builder) AddTool(t tool.Tool) error {
	name := t.Definition.Name
	if err := tool.ValidateSimpleName(name); err != nil {
		return fmt.Errorf("toolbox %s: %w", b.namespace, err)
	}

	if _, exists := b.tools[name]; exists {
		if b.noOverride {
			return &tool.RegistrationConflictError{
				FullName: name,
				Existing: "toolbox " + b.namespace,
				Incoming: "toolbox " + b.namespace,
			}
		}
		b.logger.Warn().
			Str("namespace", b.namespace).
			Str("tool", name).
			Msg("Tool re-added, previous definition overwritten")
	}

	if t.Definition.Description == "" {
		b.logger.Warn().
			Str("namespace", b.namespace).
			Str("tool", name).
			Msg("Tool has no description")
	}

	b.tools[name] = t
	return nil
}

// MustAddTool is like AddTool but panics on error.
func (b *Builder) MustAddTool(t tool.Tool) *Builder {
	if err := b.AddTool(t); err != nil {
		panic(err)
	}
	return b
}

// Build returns an immutable snapshot of the builder's tools.
func (b *Builder) Build() *Toolbox {
	tools := make(map[string]tool.Tool, len(b.tools))
	for name, t := range b.tools {
		tools[name] = t
	}

	var metadata *tool.Metadata
	if b.metadata != nil {
		meta := *b.metadata
		metadata = &meta
	}

	return &Toolbox{
		namespace: b.namespace,
		tools:     tools,
		metadata:  metadata,
	}
}
