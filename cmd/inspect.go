package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/audiobids/internal/assemble"
)

var inspectDB databaseFlags

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the column classification and session plan without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeConfig()
		if err != nil {
			return err
		}
		inspectDB.apply(cmd, c)
		if err := c.Validate(); err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), c)
		if err != nil {
			return err
		}
		plan, err := assemble.BuildPlan(c, db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var crows [][]string
		for _, name := range plan.Groups.Instruments() {
			pair, _ := plan.Groups.Get(name)
			crows = append(crows, []string{name, strings.Join(pair.Right, ", "), strings.Join(pair.Left, ", ")})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Test", "Side 1", "Side 2"}, crows, nil))
		if b := plan.Schema.Boundary(); b >= 0 {
			var unclassified []string
			for _, h := range plan.Schema.Header[b:] {
				if !plan.Groups.Classified(h) {
					unclassified = append(unclassified, h)
				}
			}
			if len(unclassified) > 0 {
				fmt.Fprintf(out, "⚠ Unclassified columns: %s\n", strings.Join(unclassified, ", "))
			}
		}

		for _, sp := range plan.Subjects {
			fmt.Fprintf(out, "\n%s -> sub-%s\n", sp.Original, sp.Canonical)
			rows := make([][]string, 0, len(sp.Sessions))
			for i, s := range sp.Sessions {
				origin := "database"
				if s.Synthetic {
					origin = "paired with ses-" + s.ParentID
				}
				rows = append(rows, []string{"ses-" + s.ID, s.Protocol, s.Condition, s.Date, strconv.Itoa(sp.Delays[i]), origin})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Session", "Name", "Condition", "Date", "Delay", "Origin"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectDB.bind(inspectCmd)
}
