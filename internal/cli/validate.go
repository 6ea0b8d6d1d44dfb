package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/pkg/stdlib"
	"github.com/harun/toolbelt/pkg/workspace"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check toolkit files",
		Long: `Parse and check toolkit files without loading them into a registry.
Every file is checked against the toolkit document schema and every tool is
built, so unknown native functions and malformed schemas are reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, true)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			catalog := workspace.NewCatalog()
			if err := stdlib.Register(catalog, stdlib.Config{}); err != nil {
				return err
			}
			loader := workspace.NewLoader(workspace.WithCatalog(catalog), workspace.WithLogger(log.Zerolog()))

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if err := validateFile(loader, path); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d toolkit files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateFile(loader *workspace.Loader, path string) error {
	file, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	return loader.Apply(workspace.NewBuilder("validate"), file)
}
