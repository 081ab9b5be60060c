// Package reference builds the per-subject sessions table from what was written to disk.
package reference

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/session"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// MissingBaselineError reports a subject without its first-baseline row.
type MissingBaselineError struct {
	Subject string
	Marker  string
}

func (e *MissingBaselineError) Error() string {
	return fmt.Sprintf("subject %s has no %q session to compute delays from", e.Subject, e.Marker)
}

// DuplicateBaselineError reports a subject with more than one first-baseline row.
type DuplicateBaselineError struct {
	Subject string
	Marker  string
	Count   int
}

func (e *DuplicateBaselineError) Error() string {
	return fmt.Sprintf("subject %s has %d %q sessions, expected exactly one", e.Subject, e.Count, e.Marker)
}

// Delays returns, per session, the day difference to the subject's first-baseline session.
// Synthetic sessions are not candidates for the baseline.
func Delays(subjectID string, sessions []session.Expanded, marker string) ([]int, error) {
	var base *session.Expanded
	count := 0
	for i := range sessions {
		if sessions[i].Synthetic || sessions[i].Protocol != marker {
			continue
		}
		count++
		if base == nil {
			base = &sessions[i]
		}
	}
	if count == 0 {
		return nil, &MissingBaselineError{Subject: subjectID, Marker: marker}
	}
	if count > 1 {
		return nil, &DuplicateBaselineError{Subject: subjectID, Marker: marker, Count: count}
	}
	t0, err := session.ParseDate(base.Date)
	if err != nil {
		return nil, fmt.Errorf("subject %s baseline: %w", subjectID, err)
	}
	out := make([]int, len(sessions))
	for i, s := range sessions {
		t, err := session.ParseDate(s.Date)
		if err != nil {
			return nil, fmt.Errorf("subject %s session %s: %w", subjectID, s.ID, err)
		}
		out[i] = session.DaysBetween(t0, t)
	}
	return out, nil
}

// Column is one completeness flag.
type Column struct {
	Name       string
	Instrument string
	// ReadbackField, when set, restricts the flag to tables whose first row
	// carries ReadbackValue in that field.
	ReadbackField string
	ReadbackValue float64
}

// ColumnsFromConfig converts configured columns.
func ColumnsFromConfig(in []config.ReferenceColumn) []Column {
	out := make([]Column, len(in))
	for i, c := range in {
		out[i] = Column{Name: c.Name, Instrument: c.Instrument, ReadbackField: c.ReadbackField, ReadbackValue: c.ReadbackValue}
	}
	return out
}

// Inspect reports which flags are satisfied by the tables present in sessionDir.
// A missing directory yields no flags.
func Inspect(sessionDir string, cols []Column) (map[string]bool, error) {
	flags := map[string]bool{}
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return flags, nil
		}
		return nil, fmt.Errorf("list session dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".tsv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		for _, c := range cols {
			if flags[c.Name] || !strings.Contains(name, "_task-"+c.Instrument+"_") {
				continue
			}
			if c.ReadbackField == "" {
				flags[c.Name] = true
				continue
			}
			ok, err := readback(filepath.Join(sessionDir, name), c)
			if err != nil {
				return nil, err
			}
			if ok {
				flags[c.Name] = true
			}
		}
	}
	return flags, nil
}

func readback(path string, c Column) (bool, error) {
	t, err := table.ReadTSV(path)
	if err != nil {
		return false, fmt.Errorf("read back %s: %w", filepath.Base(path), err)
	}
	vals, ok := t.Column(c.ReadbackField)
	if !ok || len(vals) == 0 {
		return false, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
	if err != nil {
		return false, nil
	}
	return math.Round(f) == math.Round(c.ReadbackValue), nil
}

// Row is one session of the sessions table.
type Row struct {
	SessionID string
	Name      string
	Condition string
	Delay     int
	ScanType  string
	Flags     map[string]bool
}

// SessionDir maps a session id to its directory.
type SessionDir func(sessionID string) string

// Build inspects every session directory and assembles the rows.
func Build(sessions []session.Expanded, delays []int, dirOf SessionDir, cols []Column) ([]Row, error) {
	if len(delays) != len(sessions) {
		return nil, fmt.Errorf("got %d delays for %d sessions", len(delays), len(sessions))
	}
	rows := make([]Row, len(sessions))
	for i, s := range sessions {
		flags, err := Inspect(dirOf(s.ID), cols)
		if err != nil {
			return nil, err
		}
		rows[i] = Row{
			SessionID: "ses-" + s.ID,
			Name:      s.Protocol,
			Condition: s.Condition,
			Delay:     delays[i],
			ScanType:  s.Scan,
			Flags:     flags,
		}
	}
	return rows, nil
}

// Header returns the sessions table columns.
func Header(cols []Column) []string {
	h := []string{"session_id", "session_name", "condition", "delay", "scan_type"}
	for _, c := range cols {
		h = append(h, c.Name)
	}
	return h
}

// Markers render flags.
type Markers struct {
	Present string
	Absent  string
}

// Cells renders a row in Header order.
func (r Row) Cells(cols []Column, m Markers) []string {
	out := []string{r.SessionID, r.Name, r.Condition, strconv.Itoa(r.Delay), r.ScanType}
	for _, c := range cols {
		if r.Flags[c.Name] {
			out = append(out, m.Present)
		} else {
			out = append(out, m.Absent)
		}
	}
	return out
}

// Write saves the sessions table.
func Write(path string, rows []Row, cols []Column, m Markers) error {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Cells(cols, m)
	}
	return table.WriteTSV(path, Header(cols), cells)
}
