package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/harun/toolbelt/pkg/tool"
)

// Entry is a registered tool together with where it came from.
type Entry struct {
	FullName  string
	Namespace string
	Tier      Tier
	Tool      tool.Tool
}

type toolkitEntry struct {
	namespace string
	metadata  *tool.Metadata
	members   map[string]struct{}
}

// Registry is an immutable, merged view of every tier. It is safe for
// concurrent use and never changes after Merge returns; a rebuild produces
// a new Registry.
type Registry struct {
	tools    map[string]Entry
	toolkits map[string]*toolkitEntry
	fallback MetadataFallback
}

// Runner executes a tool by full name. The executor implements it.
type Runner interface {
	Run(ctx context.Context, fullName string, input interface{}) (interface{}, error)
}

// GetTool returns the tool registered under fullName.
func (r *Registry) GetTool(fullName string) (tool.Tool, error) {
	e, err := r.lookup(fullName)
	if err != nil {
		return tool.Tool{}, err
	}
	return e.Tool, nil
}

// Entry returns the registry entry for fullName.
func (r *Registry) Entry(fullName string) (Entry, error) {
	return r.lookup(fullName)
}

func (r *Registry) lookup(fullName string) (Entry, error) {
	if e, ok := r.tools[fullName]; ok {
		return e, nil
	}

	notFound := &tool.NotFoundError{ToolName: fullName}
	if strings.Contains(fullName, ":") {
		canonical := strings.ReplaceAll(fullName, ":", tool.Separator)
		notFound.Hint = "the separator is \"" + tool.Separator + "\", did you mean " + canonical + "?"
	}
	return Entry{}, notFound
}

// ListTools returns every full name in sorted order.
func (r *Registry) ListTools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns every entry sorted by full name.
func (r *Registry) Entries() []Entry {
	names := r.ListTools()
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.tools[name])
	}
	return entries
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Namespaces returns every toolkit namespace that has at least one tool.
func (r *Registry) Namespaces() []string {
	namespaces := make([]string, 0, len(r.toolkits))
	for ns, tk := range r.toolkits {
		if len(tk.members) > 0 {
			namespaces = append(namespaces, ns)
		}
	}
	sort.Strings(namespaces)
	return namespaces
}

// GetToolkit returns the tools of namespace bound to runner.
func (r *Registry) GetToolkit(namespace string, runner Runner) (*Toolkit, error) {
	tk, ok := r.toolkits[namespace]
	if !ok || len(tk.members) == 0 {
		return nil, &tool.ToolkitNotFoundError{Namespace: namespace}
	}

	names := make([]string, 0, len(tk.members))
	for name := range tk.members {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]ExecutableTool, 0, len(names))
	for _, name := range names {
		tools = append(tools, ExecutableTool{
			FullName: name,
			Tool:     r.tools[name].Tool,
			runner:   runner,
		})
	}

	return &Toolkit{
		Namespace: namespace,
		Metadata:  r.toolkitMetadata(tk, tools),
		Tools:     tools,
	}, nil
}

func (r *Registry) toolkitMetadata(tk *toolkitEntry, tools []ExecutableTool) tool.Metadata {
	if tk.metadata != nil {
		return *tk.metadata
	}

	meta := tool.Metadata{Name: tk.namespace}
	if r.fallback == FallbackFirstTool && len(tools) > 0 {
		first := tools[0].Tool.Definition
		meta.Description = first.Description
		meta.Version = first.Version
		meta.Author = first.Author
		meta.Derived = true
	}
	return meta
}

// Toolkit is every tool of one namespace, ready to execute.
type Toolkit struct {
	Namespace string
	Metadata  tool.Metadata
	// Tools are sorted by full name.
	Tools []ExecutableTool
}

// Tool returns the member with the given simple name.
func (tk *Toolkit) Tool(name string) (ExecutableTool, bool) {
	for _, t := range tk.Tools {
		if t.Tool.Name() == name {
			return t, true
		}
	}
	return ExecutableTool{}, false
}

// Names returns the full names of the members.
func (tk *Toolkit) Names() []string {
	names := make([]string, len(tk.Tools))
	for i, t := range tk.Tools {
		names[i] = t.FullName
	}
	return names
}

// ExecutableTool wraps a tool with a uniform entry point, whatever its
// implementation kind.
type ExecutableTool struct {
	FullName string
	Tool     tool.Tool
	runner   Runner
}

// Execute runs the tool through the bound runner, so validation and error
// classification are the same as calling the runner directly.
func (et ExecutableTool) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	return et.runner.Run(ctx, et.FullName, input)
}
