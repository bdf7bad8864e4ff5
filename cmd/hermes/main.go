// Command hermes is the CLI surface over the research core (spec §6.1):
// init, task, run, queue, history, and log.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
