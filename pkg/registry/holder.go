package registry

import (
	"sync/atomic"

	"github.com/harun/toolbelt/pkg/tool"
)

// Holder publishes the current registry snapshot. Readers always see a
// complete registry; a reload swaps in a new one without touching the old.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder creates a holder publishing r.
func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Swap publishes r and returns the previous snapshot.
func (h *Holder) Swap(r *Registry) *Registry {
	return h.current.Swap(r)
}

// GetTool looks fullName up in the current snapshot.
func (h *Holder) GetTool(fullName string) (tool.Tool, error) {
	r := h.current.Load()
	if r == nil {
		return tool.Tool{}, &tool.NotFoundError{ToolName: fullName}
	}
	return r.GetTool(fullName)
}

// GetToolkit returns namespace from the current snapshot.
func (h *Holder) GetToolkit(namespace string, runner Runner) (*Toolkit, error) {
	r := h.current.Load()
	if r == nil {
		return nil, &tool.ToolkitNotFoundError{Namespace: namespace}
	}
	return r.GetToolkit(namespace, runner)
}
