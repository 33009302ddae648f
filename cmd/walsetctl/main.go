// Command walsetctl inspects walset manifest logs and checkpoints.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/walset/cmd/walsetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
