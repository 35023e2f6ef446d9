// Command doctype manages runtime-defined doctypes and their documents.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/doctype/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
