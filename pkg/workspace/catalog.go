package workspace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harun/toolbelt/pkg/tool"
)

// Catalog maps function names referenced by declarative toolkit files to Go
// implementations. Files cannot carry code, so native tools point here.
type Catalog struct {
	funcs map[string]tool.NativeFunc
	mu    sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		funcs: make(map[string]tool.NativeFunc),
	}
}

// Register adds fn under name. Registering the same name twice is an error.
func (c *Catalog) Register(name string, fn tool.NativeFunc) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %s cannot be nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.funcs[name]; exists {
		return fmt.Errorf("function %s already registered", name)
	}
	c.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (c *Catalog) Lookup(name string) (tool.NativeFunc, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	fn, ok := c.funcs[name]
	return fn, ok
}

// Names returns registered function names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.funcs))
	for name := range c.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
