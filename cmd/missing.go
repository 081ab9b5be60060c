package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/audiobids/internal/catalog"
	"github.com/KaramelBytes/audiobids/internal/subject"
)

var (
	missingCatalog string
	missingSubject string
	missingTest    string
)

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List the sessions of a subject without a table for a test, from the run catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeConfig()
		if err != nil {
			return err
		}
		path := c.CatalogPath
		if cmd.Flags().Changed("catalog") {
			path = missingCatalog
		}
		if path == "" {
			return errors.New("no catalog: pass --catalog or set catalog_path")
		}
		canonical, err := subject.Canonicalize(missingSubject)
		if err != nil {
			return err
		}
		ids, err := catalog.Missing(cmd.Context(), path, canonical, missingTest)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintf(out, "✓ %s has %s for every session\n", subject.Label(canonical), missingTest)
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(missingCmd)
	missingCmd.Flags().StringVar(&missingCatalog, "catalog", "", "catalog path (overrides config)")
	missingCmd.Flags().StringVar(&missingSubject, "subject", "", "subject id, original or canonical")
	missingCmd.Flags().StringVar(&missingTest, "test", "", "reference column, e.g. TEOAE or DPGrowth_2kHz")
	_ = missingCmd.MarkFlagRequired("subject")
	_ = missingCmd.MarkFlagRequired("test")
}
