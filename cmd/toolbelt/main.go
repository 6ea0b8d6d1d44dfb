package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harun/toolbelt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var runErr *cli.RunError
		if errors.As(err, &runErr) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
