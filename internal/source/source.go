// Package source retrieves the wide session database from a local file or a shared spreadsheet.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/KaramelBytes/audiobids/internal/table"
)

// Options selects where the database comes from. Exactly one of Path, URL or URLFile is set.
type Options struct {
	Path      string
	URL       string
	URLFile   string
	URLColumn string
	Sheet     string
	NA        string
	Timeout   time.Duration
	Client    *http.Client
}

// ErrNoSource is returned when no location is configured.
var ErrNoSource = errors.New("no database configured: set --database, --url or --url-file")

// Open loads the database and fills empty cells with the NA sentinel.
func Open(ctx context.Context, opt Options) (*table.Table, error) {
	set := 0
	for _, s := range []string{opt.Path, opt.URL, opt.URLFile} {
		if strings.TrimSpace(s) != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, ErrNoSource
	case set > 1:
		return nil, fmt.Errorf("database: path, url and url_file are mutually exclusive")
	}

	var (
		t   *table.Table
		err error
	)
	switch {
	case opt.Path != "":
		t, err = table.ReadFile(opt.Path, table.Options{Sheet: opt.Sheet})
	default:
		url := opt.URL
		if opt.URLFile != "" {
			url, err = ReadURLFile(opt.URLFile, opt.URLColumn)
			if err != nil {
				return nil, err
			}
		}
		t, err = fetch(ctx, opt, url)
	}
	if err != nil {
		return nil, err
	}
	return t.FillEmpty(opt.NA), nil
}

// ExportURL turns a Google Sheets share link into its CSV export link.
// Other URLs are returned unchanged.
func ExportURL(url string) string {
	url = strings.TrimSpace(url)
	if i := strings.Index(url, "/edit#gid="); i >= 0 {
		return url[:i] + "/export?format=csv&gid=" + url[i+len("/edit#gid="):]
	}
	if i := strings.Index(url, "/edit?gid="); i >= 0 {
		return url[:i] + "/export?format=csv&gid=" + url[i+len("/edit?gid="):]
	}
	return url
}

func fetch(ctx context.Context, opt Options, url string) (*table.Table, error) {
	client := opt.Client
	if client == nil {
		timeout := opt.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ExportURL(url), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return table.ReadCSV(bytes.NewReader(body), "database.csv", ',')
}

type urlEntry struct {
	URL string `csv:"test_database"`
}

// ReadURLFile returns the first non-empty URL of a tab-separated URL file.
// Only the default column name is decoded through struct tags; any other
// column is looked up by header.
func ReadURLFile(path, column string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read url file: %w", err)
	}
	if column == "" || column == "test_database" {
		var entries []urlEntry
		if err := gocsv.UnmarshalCSV(tabReader(data), &entries); err != nil {
			return "", fmt.Errorf("parse url file: %w", err)
		}
		for _, e := range entries {
			if u := strings.TrimSpace(e.URL); u != "" {
				return u, nil
			}
		}
		return "", fmt.Errorf("url file %s: no value in column test_database", path)
	}
	t, err := table.ReadCSV(bytes.NewReader(data), path, '\t')
	if err != nil {
		return "", fmt.Errorf("parse url file: %w", err)
	}
	vals, ok := t.Column(column)
	if !ok {
		return "", fmt.Errorf("url file %s: missing column %q", path, column)
	}
	for _, v := range vals {
		if u := strings.TrimSpace(v); u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("url file %s: no value in column %s", path, column)
}

func tabReader(data []byte) gocsv.CSVReader {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}
