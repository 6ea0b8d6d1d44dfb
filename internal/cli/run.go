package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/internal/server"
	"github.com/harun/toolbelt/internal/tracing"
)

// RunError carries the classified failure of `toolbelt run`.
type RunError struct {
	Body server.ErrorBody
	err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Body.Code, e.Body.Message)
}

func (e *RunError) Unwrap() error { return e.err }

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		input     string
		inputFile string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a tool",
		Long: `Execute a tool by fully qualified name. Input is a JSON document given
with --input, read from --input-file, or read from stdin when the file is "-".
The validated output is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, input, inputFile)
			if err != nil {
				return err
			}

			var value interface{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &value); err != nil {
					return fmt.Errorf("input is not valid JSON: %w", err)
				}
			}

			d, closeFn, err := openDaemon(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := tracing.NewRequestContext(cmd.Context())
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out, err := d.Executor().Run(ctx, args[0], value)
			if err != nil {
				body := server.NewErrorBody(err)
				_ = writeIndented(cmd.ErrOrStderr(), map[string]interface{}{"error": body})
				return &RunError{Body: body, err: err}
			}

			return writeIndented(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "tool input as JSON")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "read tool input from a file, - for stdin")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this duration")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	return cmd
}

func readInput(cmd *cobra.Command, input, inputFile string) ([]byte, error) {
	switch {
	case input != "":
		return []byte(input), nil
	case inputFile == "-":
		return io.ReadAll(cmd.InOrStdin())
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}
