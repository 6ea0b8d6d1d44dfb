package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	cfgFile  string
	logLevel string
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "toolbelt",
		Short: "Toolbelt - tool registry and execution engine",
		Long: `Toolbelt merges internal, organization and project toolkits into one
registry and executes tools through native, HTTP and remote strategies with
schema-validated inputs and outputs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.toolbelt/toolbelt.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newListCmd(opts),
		newDescribeCmd(opts),
		newRunCmd(opts),
		newValidateCmd(opts),
		newServeCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return newRootCmd().Execute()
}

// GetRootCmd returns a fresh root command for testing
func GetRootCmd() *cobra.Command {
	return newRootCmd()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
