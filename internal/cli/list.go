package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/internal/server"
	"github.com/harun/toolbelt/pkg/llmtools"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Long: `List every tool in the merged registry by fully qualified name,
with its implementation kind and the tier that supplied it.

Formats:
  table      aligned columns (default)
  json       tool summaries
  openai     OpenAI chat completion tool definitions
  anthropic  Anthropic messages tool definitions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDaemon(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			reg := d.Registry()
			out := cmd.OutOrStdout()

			switch format {
			case "openai":
				return writeIndented(out, llmtools.OpenAITools(reg))
			case "anthropic":
				return writeIndented(out, llmtools.AnthropicTools(reg))
			}

			infos := []server.ToolInfo{}
			for _, e := range reg.Entries() {
				if namespace != "" && e.Namespace != namespace {
					continue
				}
				infos = append(infos, server.Describe(e, false))
			}

			switch format {
			case "json":
				return writeIndented(out, infos)
			case "table", "":
				return writeTable(out, infos)
			}
			return fmt.Errorf("unknown format %q (use table, json, openai or anthropic)", format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table, json, openai, anthropic")
	cmd.Flags().StringVar(&namespace, "namespace", "", "only list tools of this toolkit namespace (table and json)")
	return cmd
}

func writeTable(out io.Writer, infos []server.ToolInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tTIER\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Kind, info.Tier, info.Description)
	}
	return w.Flush()
}

func writeIndented(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
