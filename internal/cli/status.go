package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  `Query the health endpoint of a running toolbelt server.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig(opts, true)
				if err != nil {
					return err
				}
				addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + addr + "/healthz")
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Status: stopped")
				return nil
			}
			defer resp.Body.Close()

			var health struct {
				Status string `json:"status"`
				Tools  int    `json:"tools"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("unexpected health response: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", health.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\n", addr)
			fmt.Fprintf(cmd.OutOrStdout(), "Tools: %d\n", health.Tools)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address host:port (default from config)")
	return cmd
}
