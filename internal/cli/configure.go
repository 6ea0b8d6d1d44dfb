package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and
TOOLBELT_* environment overrides are applied, and report validation errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(opts.cfgFile)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", loader.GetConfigPath())
			fmt.Fprintln(out, cfg.String())
			return config.Validate(cfg)
		},
	}
}
