package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/audiobids/internal/assemble"
	"github.com/KaramelBytes/audiobids/internal/logging"
)

var (
	convertDB              databaseFlags
	convertOAEDir          string
	convertResults         string
	convertAllowMissingOAE bool
	convertCatalog         string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the database and OAE exports into the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeConfig()
		if err != nil {
			return err
		}
		convertDB.apply(cmd, c)
		f := cmd.Flags()
		if f.Changed("oae-dir") {
			c.OAEDir = convertOAEDir
		}
		if f.Changed("results") {
			c.ResultsDir = convertResults
		}
		if f.Changed("allow-missing-oae") {
			c.AllowMissingOAE = convertAllowMissingOAE
		}
		if f.Changed("catalog") {
			c.CatalogPath = convertCatalog
		}

		logger, err := logging.NewFromConfig(c, debug)
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), c)
		if err != nil {
			return err
		}
		logger.Debug("database loaded", "rows", len(db.Rows), "columns", len(db.Header))

		sum, err := assemble.New(c, logger).Run(cmd.Context(), db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		rows := make([][]string, 0, len(sum.Subjects))
		for _, s := range sum.Subjects {
			rows = append(rows, []string{
				s.Original,
				"sub-" + s.Canonical,
				strconv.Itoa(len(s.Rows)),
				strconv.Itoa(s.Tables),
				strconv.Itoa(s.Warnings),
			})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Subject", "Participant", "Sessions", "Tables", "Warnings"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight}))
		if len(sum.Warnings) > 0 {
			wrows := make([][]string, 0, len(sum.Warnings))
			for _, w := range sum.Warnings {
				wrows = append(wrows, []string{w.Subject, "ses-" + w.Session, w.Date, w.Condition, w.Instrument, w.Message})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Subject", "Session", "Date", "Condition", "Test", "Problem"}, wrows, nil))
		}
		if sum.OAESkipped {
			fmt.Fprintln(out, "⚠ OAE directory missing: file-based tests were skipped")
		}
		fmt.Fprintf(out, "✓ Dataset written to %s (run %s)\n", sum.Root, sum.RunID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertDB.bind(convertCmd)
	convertCmd.Flags().StringVar(&convertOAEDir, "oae-dir", "", "directory holding the OAE exports (overrides config)")
	convertCmd.Flags().StringVar(&convertResults, "results", "", "results directory (overrides config)")
	convertCmd.Flags().BoolVar(&convertAllowMissingOAE, "allow-missing-oae", false, "skip file-based tests when the OAE directory is missing")
	convertCmd.Flags().StringVar(&convertCatalog, "catalog", "", "also write a SQLite catalog of the run to this path")
}
