package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flow-cli",
	Short: "Flow CLI - inspect and edit flow documents from the terminal",
	Long: `flow-cli works on flow documents stored as JSON or YAML files.

Examples:
  flow-cli catalog --format yaml
  flow-cli outline --file tea.yaml
  flow-cli run --file tea.yaml "add a section called Prep with two steps"`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}
