// Command syncd serves the offline-first field-service sync protocol:
// tenant pull, overlay ingest, and delta replay over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/fieldsync/syncd/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
