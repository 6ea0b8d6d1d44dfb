package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/internal/daemon"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		Long: `Serve the registry over HTTP until interrupted.

Routes:
  GET  /tools                list tools
  GET  /tools/{name}         describe a tool
  GET  /toolkits/{namespace} describe a toolkit
  POST /run/{name}           execute a tool with the JSON request body
  GET  /metrics              Prometheus metrics
  GET  /healthz              health check

With --watch, toolkit directories are watched and the registry is rebuilt
when toolkit files change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Toolkits.Watch = watch
			}

			log, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Close()

			d, err := daemon.New(cfg, log)
			if err != nil {
				return err
			}
			if err := d.Start(); err != nil {
				_ = d.Stop()
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %d tools on http://%s\n", d.Status().Tools, d.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			return d.Stop()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload when toolkit files change")
	return cmd
}
