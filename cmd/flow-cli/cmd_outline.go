package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janhq/flow-api/internal/domain/flow"
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Print the outline of a flow file",
	RunE:  runOutline,
}

func init() {
	outlineCmd.Flags().StringP("file", "f", "", "Flow file (JSON or YAML)")
	outlineCmd.Flags().Int("preview", flow.DefaultPreviewLength, "Characters of each step description to show")
	_ = outlineCmd.MarkFlagRequired("file")
}

func runOutline(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	preview, _ := cmd.Flags().GetInt("preview")

	f, _, err := readFlowFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), f.Outline(preview))
	return nil
}
