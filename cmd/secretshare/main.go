// Command secretshare runs the secret share service.
package main

import (
	"fmt"
	"os"

	"github.com/sh1vu7/secreteshare/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
