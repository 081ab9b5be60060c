package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/audiobids/internal/assemble"
	"github.com/KaramelBytes/audiobids/internal/sidecar"
)

var sidecarsResults string

var sidecarsCmd = &cobra.Command{
	Use:   "sidecars",
	Short: "Regenerate the JSON sidecar originals",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("results") {
			c.ResultsDir = sidecarsResults
		}
		layout := assemble.Layout{Results: c.ResultsDir}
		files, err := sidecar.Generate(layout.Originals())
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sidecarsCmd)
	sidecarsCmd.Flags().StringVar(&sidecarsResults, "results", "", "results directory (overrides config)")
}
