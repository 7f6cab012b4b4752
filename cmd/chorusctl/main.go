// Command chorusctl is the chorus command-line entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/kestrelhq/chorus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
