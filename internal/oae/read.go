package oae

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// flagSuffix marks a reading the device flagged; it is kept on the value.
const flagSuffix = " *"

// ReadExport reads one export. A zero delim is sniffed. Unnamed columns, such
// as the empty header cell left by a trailing delimiter, are dropped.
func ReadExport(path string, delim rune) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()
	t, err := table.ReadCSV(f, filepath.Base(path), delim)
	if err != nil {
		return nil, err
	}
	var keep []int
	for i, h := range t.Header {
		if h == "" || strings.Contains(h, "Unnamed") {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == len(t.Header) {
		return t, nil
	}
	header := make([]string, len(keep))
	for j, i := range keep {
		header[j] = t.Header[i]
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cp := make([]string, len(keep))
		for j, i := range keep {
			cp[j] = row[i]
		}
		rows[r] = cp
	}
	return table.New(t.Name, header, rows), nil
}

// NormalizeValue rewrites one export cell: "-" becomes na, decimal commas
// become points, and a flagged reading keeps its " *" suffix as text.
func NormalizeValue(raw, na string) string {
	v := strings.TrimSpace(raw)
	switch {
	case v == "" || v == "-" || v == na:
		return na
	case strings.HasSuffix(v, flagSuffix):
		num := strings.TrimSpace(strings.TrimSuffix(v, flagSuffix))
		return strings.ReplaceAll(num, ",", ".") + flagSuffix
	}
	if f, ok := table.NormalizeDecimal(v); ok {
		return table.FormatFloat(f)
	}
	return v
}

// Header returns the output columns for fields.
func Header(fields []config.OAEField) []string {
	h := []string{"order", "side"}
	for _, f := range fields {
		h = append(h, f.Name)
	}
	return h
}

// Convert merges a right and a left export into output rows, right ear first.
// Derived fields are na when an operand is not a plain number.
func Convert(right, left *table.Table, fields []config.OAEField, na string) ([][]string, error) {
	var rows [][]string
	for i, t := range []*table.Table{right, left} {
		side := Side(i)
		index := map[string]int{}
		for c, h := range t.Header {
			index[h] = c
		}
		for _, f := range fields {
			for _, col := range append([]string{f.Source}, f.Operands...) {
				if col == "" {
					continue
				}
				if _, ok := index[col]; !ok {
					return nil, fmt.Errorf("export %s lacks column %q", t.Name, col)
				}
			}
		}
		for _, raw := range t.Rows {
			cell := func(col string) string { return NormalizeValue(raw[index[col]], na) }
			num := func(col string) (float64, bool) {
				v := cell(col)
				if v == na || strings.HasSuffix(v, flagSuffix) {
					return 0, false
				}
				return table.NormalizeDecimal(v)
			}
			out := []string{fmt.Sprint(i + 1), side.Code()}
			for _, f := range fields {
				switch f.Derive {
				case "ratio":
					if x, ok := num(f.Operands[0]); ok {
						out = append(out, table.FormatFloat(x/f.Divisor))
					} else {
						out = append(out, na)
					}
				case "difference":
					a, okA := num(f.Operands[0])
					b, okB := num(f.Operands[1])
					if okA && okB {
						out = append(out, table.FormatFloat(a-b))
					} else {
						out = append(out, na)
					}
				default:
					out = append(out, cell(f.Source))
				}
			}
			rows = append(rows, out)
		}
	}
	return rows, nil
}
