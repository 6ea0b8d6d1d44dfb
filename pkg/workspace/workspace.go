package workspace

import (
	"sort"

	"github.com/harun/toolbelt/pkg/toolbox"
)

// Workspace maps namespaces to toolboxes for one project or organization.
type Workspace struct {
	owner     string
	toolboxes map[string]*toolbox.Toolbox
}

// Owner returns the project or organization label.
func (w *Workspace) Owner() string {
	if w == nil {
		return ""
	}
	return w.owner
}

// Toolbox returns the toolbox for namespace.
func (w *Workspace) Toolbox(namespace string) (*toolbox.Toolbox, bool) {
	if w == nil {
		return nil, false
	}
	tb, ok := w.toolboxes[namespace]
	return tb, ok
}

// Namespaces returns all namespaces in sorted order.
func (w *Workspace) Namespaces() []string {
	if w == nil {
		return nil
	}
	namespaces := make([]string, 0, len(w.toolboxes))
	for ns := range w.toolboxes {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces
}

// Len returns the total number of tools across namespaces.
func (w *Workspace) Len() int {
	if w == nil {
		return 0
	}
	total := 0
	for _, tb := range w.toolboxes {
		total += tb.Len()
	}
	return total
}

// Builder aggregates toolbox builders by namespace.
type Builder struct {
	owner    string
	builders map[string]*toolbox.Builder
	opts     []toolbox.Option
}

// NewBuilder creates a workspace builder. opts apply to every toolbox builder it creates.
func NewBuilder(owner string, opts ...toolbox.Option) *Builder {
	return &Builder{
		owner:    owner,
		builders: make(map[string]*toolbox.Builder),
		opts:     opts,
	}
}

// Toolbox returns the builder for namespace, creating it on first access.
func (b *Builder) Toolbox(namespace string) *toolbox.Builder {
	if tb, ok := b.builders[namespace]; ok {
		return tb
	}
	tb := toolbox.NewBuilder(namespace, b.opts...)
	b.builders[namespace] = tb
	return tb
}

// Build materializes every namespace builder.
func (b *Builder) Build() *Workspace {
	toolboxes := make(map[string]*toolbox.Toolbox, len(b.builders))
	for ns, tb := range b.builders {
		toolboxes[ns] = tb.Build()
	}
	return &Workspace{
		owner:     b.owner,
		toolboxes: toolboxes,
	}
}
