// Package stdlib is the internal toolbox shipped with toolbelt: tools every
// registry gets at the lowest precedence tier.
package stdlib

import (
	"github.com/harun/toolbelt/pkg/toolbox"
	"github.com/harun/toolbelt/pkg/workspace"
)

// Namespace is the toolkit name of the internal tools.
const Namespace = "stdlib"

// Catalog function names for toolkit files that reuse the internal tools.
const (
	CalculatorFunc = "stdlib.calculator"
	NewsFunc       = "stdlib.news"
)

// Config configures the internal tools.
type Config struct {
	News       NewsConfig
	WeatherURL string
}

// Toolbox builds the internal toolbox.
func Toolbox(cfg Config, opts ...toolbox.Option) *toolbox.Toolbox {
	return toolbox.NewBuilder(Namespace, opts...).
		MustAddTool(Calculator()).
		MustAddTool(NewNewsReader(cfg.News).Tool()).
		MustAddTool(Weather(cfg.WeatherURL)).
		Build()
}

// Register adds the native functions of the internal tools to c so toolkit
// files can declare their own tools on top of them.
func Register(c *workspace.Catalog, cfg Config) error {
	if err := c.Register(CalculatorFunc, Calculate); err != nil {
		return err
	}
	return c.Register(NewsFunc, NewNewsReader(cfg.News).Read)
}
