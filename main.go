package main

import (
	"fmt"
	"os"

	"github.com/goprove/goprove/cmd"
)

func main() {
	// Run our root CLI command, which contains all underlying command
	// logic and will handle parsing/invocation.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
