package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/internal/server"
)

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	var toolkit bool

	cmd := &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a tool's definition and schemas",
		Long: `Show the definition, tier and input/output schemas of a tool.
With --toolkit, the argument is a namespace and its metadata and members
are shown instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			var v interface{}
			if toolkit {
				tk, err := d.Executor().Toolkit(args[0])
				if err != nil {
					return err
				}
				v = map[string]interface{}{
					"namespace": tk.Namespace,
					"metadata":  tk.Metadata,
					"tools":     tk.Names(),
				}
			} else {
				e, err := d.Registry().Entry(args[0])
				if err != nil {
					return err
				}
				v = server.Describe(e, true)
			}

			return writeIndented(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().BoolVar(&toolkit, "toolkit", false, "describe a toolkit namespace")
	return cmd
}
