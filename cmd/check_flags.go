package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/goprove/goprove/verify"
)

// addCheckFlags adds the various flags for the check command
func addCheckFlags(flags *pflag.FlagSet) {
	// Prevent alphabetical sorting of usage message
	flags.SortFlags = false

	flags.Duration("timeout", verify.DefaultTimeout,
		fmt.Sprintf("oracle time budget per function (default is %s)", verify.DefaultTimeout))

	flags.String("cache-dir", "",
		"directory for the persistent proof cache (one JSON file per proof)")

	flags.String("cache-db", "",
		"database file for the persistent proof cache (takes precedence over --cache-dir)")

	flags.String("format", "text",
		"output format: text, json or yaml")

	flags.Bool("all", false,
		"verify every function, not only those carrying goprove directives")

	flags.Bool("watch", false,
		"stay running and re-verify whenever a target file changes")

	flags.BoolP("verbose", "v", false,
		"enable debug logging")
}
