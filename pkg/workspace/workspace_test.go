package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/pkg/tool"
)

func nativeTool(name string) tool.Tool {
	return tool.Native(tool.Definition{Name: name, Description: name}, nil, nil,
		func(ctx context.Context, input interface{}) (interface{}, error) {
			return input, nil
		})
}

func TestBuilder_ToolboxIsLazyAndStable(t *testing.T) {
	b := NewBuilder("acme")

	first := b.Toolbox("math")
	second := b.Toolbox("math")
	assert.Same(t, first, second)

	require.NoError(t, first.AddTool(nativeTool("calculator")))
	require.NoError(t, b.Toolbox("text").AddTool(nativeTool("upper")))

	ws := b.Build()
	assert.Equal(t, "acme", ws.Owner())
	assert.Equal(t, []string{"math", "text"}, ws.Namespaces())
	assert.Equal(t, 2, ws.Len())

	tb, ok := ws.Toolbox("math")
	require.True(t, ok)
	_, ok = tb.Get("calculator")
	assert.True(t, ok)

	_, ok = ws.Toolbox("missing")
	assert.False(t, ok)
}

func TestWorkspace_NilIsEmpty(t *testing.T) {
	var ws *Workspace
	assert.Equal(t, "", ws.Owner())
	assert.Empty(t, ws.Namespaces())
	assert.Equal(t, 0, ws.Len())
	_, ok := ws.Toolbox("math")
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	fn := func(ctx context.Context, input interface{}) (interface{}, error) { return nil, nil }

	require.NoError(t, c.Register("noop", fn))
	assert.Error(t, c.Register("noop", fn))
	assert.Error(t, c.Register("", fn))
	assert.Error(t, c.Register("nil", nil))

	_, ok := c.Lookup("noop")
	assert.True(t, ok)
	_, ok = c.Lookup("other")
	assert.False(t, ok)
	assert.Equal(t, []string{"noop"}, c.Names())
}
