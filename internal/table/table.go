package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Table is a header plus rows of raw cell text. Rows are padded to the header width.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Options controls how a file is read.
type Options struct {
	// Sheet selects a workbook sheet by name; empty means the first sheet.
	Sheet string
	// Delimiter for delimited text. If 0, it is sniffed from the content.
	Delimiter rune
}

// Reader loads one tabular file format.
type Reader interface {
	CanRead(filename string) bool
	Read(path string, opt Options) (*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// ErrUnsupported indicates no registered reader accepts the file.
var ErrUnsupported = errors.New("unsupported table format")

// ReadFile selects a reader based on the filename.
func ReadFile(path string, opt Options) (*Table, error) {
	for _, r := range registry {
		if r.CanRead(path) {
			t, err := r.Read(path, opt)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
}

func init() {
	Register(xlsxReader{})
	Register(xlsReader{})
	Register(delimitedReader{})
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// New builds a table from a header and rows, trimming header cells and padding rows.
func New(name string, header []string, rows [][]string) *Table {
	h := make([]string, len(header))
	for i, c := range header {
		h[i] = strings.TrimSpace(c)
	}
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}
	t := &Table{Name: name, Header: h}
	for _, r := range rows {
		if isBlank(r) {
			continue
		}
		row := make([]string, len(h))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Index returns the position of the named column or -1.
func (t *Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (t *Table) Column(col string) ([]string, bool) {
	i := t.Index(col)
	if i < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, true
}

// FillEmpty returns a copy with each cell trimmed and empty cells replaced by na.
func (t *Table) FillEmpty(na string) *Table {
	out := &Table{Name: t.Name, Header: append([]string(nil), t.Header...)}
	out.Rows = make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cp := make([]string, len(row))
		for i, c := range row {
			c = strings.TrimSpace(c)
			if c == "" {
				c = na
			}
			cp[i] = c
		}
		out.Rows[r] = cp
	}
	return out
}
