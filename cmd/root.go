package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "goprove",
	Short: "A contract verifier for restricted Go functions",
	Long: "goprove proves, or disproves, that annotated Go functions satisfy their\n" +
		"contracts for all inputs, by symbolic execution and an SMT oracle",
}

func Execute() error {
	return rootCmd.Execute()
}
