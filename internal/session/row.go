// Package session turns database rows into ordered, expanded subject sessions.
package session

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// Schema binds a database header to the administrative column names.
type Schema struct {
	Header    []string
	NA        string
	subject   int
	date      int
	protocol  int
	condition int
	scan      int
	// boundary is the index of the first instrument-bearing column, -1 when absent.
	boundary int
}

// NewSchema resolves the configured columns against header. Subject, date,
// protocol and condition are required; scan type is optional.
func NewSchema(header []string, cols config.Columns, na string) (*Schema, error) {
	s := &Schema{Header: append([]string(nil), header...), NA: na, scan: -1, boundary: -1}
	idx := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		return -1
	}
	required := []struct {
		name string
		dst  *int
	}{
		{cols.Subject, &s.subject},
		{cols.Date, &s.date},
		{cols.Protocol, &s.protocol},
		{cols.Condition, &s.condition},
	}
	for _, r := range required {
		*r.dst = idx(r.name)
		if *r.dst < 0 {
			return nil, fmt.Errorf("database is missing required column %q", r.name)
		}
	}
	if cols.Scan != "" {
		s.scan = idx(cols.Scan)
	}
	if cols.Boundary != "" {
		s.boundary = idx(cols.Boundary)
	}
	return s, nil
}

// Boundary returns the index of the first instrument-bearing column, or -1.
func (s *Schema) Boundary() int { return s.boundary }

// Index returns the header position of col, or -1.
func (s *Schema) Index(col string) int {
	for i, h := range s.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Row is one database row of a subject.
type Row struct {
	Subject   string
	Date      string
	Protocol  string
	Condition string
	Scan      string
	Values    []string
}

// Subjects lists distinct subject ids in order of first appearance, skipping NA cells.
func (s *Schema) Subjects(t *table.Table) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range t.Rows {
		id := strings.TrimSpace(r[s.subject])
		if id == "" || id == s.NA {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Rows returns the rows of one subject in database order.
func (s *Schema) Rows(t *table.Table, subjectID string) []Row {
	var out []Row
	for _, r := range t.Rows {
		if strings.TrimSpace(r[s.subject]) != subjectID {
			continue
		}
		row := Row{
			Subject:   subjectID,
			Date:      r[s.date],
			Protocol:  r[s.protocol],
			Condition: r[s.condition],
			Scan:      s.NA,
			Values:    append([]string(nil), r...),
		}
		if s.scan >= 0 {
			row.Scan = r[s.scan]
		}
		out = append(out, row)
	}
	return out
}
