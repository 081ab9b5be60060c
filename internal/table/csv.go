package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/csimplestring/go-csv/detector"
)

type delimitedReader struct{}

func (delimitedReader) CanRead(filename string) bool { return hasExt(filename, ".csv", ".tsv", ".txt") }

func (delimitedReader) Read(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 && hasExt(path, ".tsv") {
		delim = '\t'
	}
	return ReadCSV(f, filepath.Base(path), delim)
}

// ReadCSV reads delimited text. A zero delim is sniffed from the content.
func ReadCSV(r io.Reader, name string, delim rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if delim == 0 {
		delim = DetectDelimiter(data)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header row", name)
	}
	return New(name, records[0], records[1:]), nil
}

// DetectDelimiter returns the most likely delimiter of CSV-like data, defaulting to ','.
func DetectDelimiter(data []byte) rune {
	d := detector.New()
	candidates := d.DetectDelimiter(bytes.NewReader(data), '"')
	if len(candidates) > 0 && len(candidates[0]) > 0 {
		return rune(candidates[0][0])
	}
	return ','
}
