package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janhq/flow-api/internal/domain/operation"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the operation catalog",
	Long:  `Print every editing operation the assistant can call, with its parameter schema.`,
	RunE:  runCatalog,
}

func init() {
	catalogCmd.Flags().String("format", "json", "Output format: json, yaml")
	catalogCmd.Flags().Bool("names", false, "Print operation names only")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	namesOnly, _ := cmd.Flags().GetBool("names")
	if namesOnly {
		for _, name := range operation.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	rawFormat, _ := cmd.Flags().GetString("format")
	format, err := parseFormat(rawFormat)
	if err != nil {
		return err
	}

	// Round-trip through JSON so YAML output keeps the wire field names.
	raw, err := json.Marshal(operation.Catalog())
	if err != nil {
		return err
	}
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	out, err := encode(generic, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
