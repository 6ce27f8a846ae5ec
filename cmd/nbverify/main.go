// Command nbverify re-executes notebook cells and checks their outputs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nbverify/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
