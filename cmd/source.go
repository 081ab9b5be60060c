package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/source"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// databaseFlags locate the session database; shared by convert and inspect.
type databaseFlags struct {
	path     string
	url      string
	urlFile  string
	sheet    string
	subjects []string
}

func (d *databaseFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.path, "database", "", "local database file (.xlsx, .xls, .csv, .tsv)")
	cmd.Flags().StringVar(&d.url, "url", "", "shared spreadsheet URL of the database")
	cmd.Flags().StringVar(&d.urlFile, "url-file", "", "TSV file holding the database URL")
	cmd.Flags().StringVar(&d.sheet, "sheet", "", "worksheet name for spreadsheet databases")
	cmd.Flags().StringSliceVar(&d.subjects, "subject", nil, "restrict the run to these subject ids (repeatable)")
}

// apply copies the flags the user set onto c.
func (d *databaseFlags) apply(cmd *cobra.Command, c *cfgpkg.Global) {
	f := cmd.Flags()
	if f.Changed("database") || f.Changed("url") || f.Changed("url-file") {
		c.Database.Path, c.Database.URL, c.Database.URLFile = d.path, d.url, d.urlFile
	}
	if f.Changed("sheet") {
		c.Database.Sheet = d.sheet
	}
	if f.Changed("subject") {
		c.Subjects = append([]string(nil), d.subjects...)
	}
}

func openDatabase(ctx context.Context, c *cfgpkg.Global) (*table.Table, error) {
	return source.Open(ctx, source.Options{
		Path:      c.Database.Path,
		URL:       c.Database.URL,
		URLFile:   c.Database.URLFile,
		URLColumn: c.Database.URLColumn,
		Sheet:     c.Database.Sheet,
		NA:        c.NA,
		Timeout:   time.Duration(c.HTTPTimeoutSec) * time.Second,
	})
}
