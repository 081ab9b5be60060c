// Package assemble drives a full conversion run and owns the output tree.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/KaramelBytes/audiobids/internal/catalog"
	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/logging"
	"github.com/KaramelBytes/audiobids/internal/oae"
	"github.com/KaramelBytes/audiobids/internal/record"
	"github.com/KaramelBytes/audiobids/internal/reference"
	"github.com/KaramelBytes/audiobids/internal/session"
	"github.com/KaramelBytes/audiobids/internal/sidecar"
	"github.com/KaramelBytes/audiobids/internal/table"
	"github.com/KaramelBytes/audiobids/internal/utils"
)

var (
	// ErrOAEDirMissing is returned when the export directory is absent and skipping was not requested.
	ErrOAEDirMissing = errors.New("oae export directory not found")
	// ErrLocked is returned when another run holds the output lock.
	ErrLocked = errors.New("results directory is locked by another run")
)

// Warning is a recoverable per-session problem.
type Warning struct {
	Subject    string
	Session    string
	Date       string
	Condition  string
	Instrument string
	Message    string
}

// SubjectSummary reports what was produced for one subject.
type SubjectSummary struct {
	Original  string
	Canonical string
	Rows      []reference.Row
	Tables    int
	Warnings  int
}

// Summary reports one run.
type Summary struct {
	RunID      string
	Root       string
	Subjects   []SubjectSummary
	Warnings   []Warning
	OAESkipped bool
	Sidecars   bool
}

// Assembler converts a database into the dataset tree.
type Assembler struct {
	cfg    *config.Global
	logger *slog.Logger
	layout Layout
	now    func() time.Time
}

// New returns an assembler writing below cfg.ResultsDir.
func New(cfg *config.Global, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{cfg: cfg, logger: logger, layout: Layout{Results: cfg.ResultsDir}, now: time.Now}
}

// Layout returns the output layout.
func (a *Assembler) Layout() Layout { return a.layout }

// Run converts db. Configuration, identifier and baseline problems fail before
// anything is written; missing exports only produce warnings.
func (a *Assembler) Run(ctx context.Context, db *table.Table) (*Summary, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	plan, err := BuildPlan(a.cfg, db)
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: uuid.NewString(), Root: a.layout.Root()}
	logger := a.logger.With(logging.FieldRunID, sum.RunID)
	started := a.now()

	idx, err := a.openIndex(logger)
	if err != nil {
		return nil, err
	}
	sum.OAESkipped = idx == nil

	if err := utils.EnsureDir(a.layout.Results); err != nil {
		return nil, err
	}
	lock := flock.New(a.layout.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock results: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, a.layout.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	if sum.Sidecars, err = sidecar.Ensure(a.layout.Originals()); err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(a.layout.Root()); err != nil {
		return nil, err
	}
	if err := sidecar.Install(a.layout.Originals(), a.layout.Root()); err != nil {
		return nil, err
	}

	families := oae.FamiliesFromConfig(a.cfg.OAE)
	cols := reference.ColumnsFromConfig(a.cfg.Reference.Columns)
	for _, sp := range plan.Subjects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ss, err := a.convertSubject(plan, sp, idx, families, cols, logger, sum)
		if err != nil {
			return sum, err
		}
		sum.Subjects = append(sum.Subjects, ss)
	}

	if err := WriteConcordance(a.layout.ConcordancePath(), plan.Registry.Entries()); err != nil {
		return sum, err
	}
	if a.cfg.CatalogPath != "" {
		if err := catalog.Write(ctx, a.cfg.CatalogPath, snapshot(sum, plan, cols, started)); err != nil {
			return sum, fmt.Errorf("write catalog: %w", err)
		}
		logger.Info("catalog written", logging.FieldPath, a.cfg.CatalogPath)
	}
	logger.Info("conversion finished", "subjects", len(sum.Subjects), "warnings", len(sum.Warnings))
	return sum, nil
}

func (a *Assembler) openIndex(logger *slog.Logger) (*oae.Index, error) {
	dir := a.cfg.OAEDir
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		idx, err := oae.ScanDir(dir)
		if err != nil {
			return nil, err
		}
		logger.Debug("oae exports indexed", logging.FieldPath, dir, "files", idx.Len())
		return idx, nil
	}
	if a.cfg.AllowMissingOAE {
		logger.Warn("oae directory missing, skipping file-based tests", logging.FieldPath, dir)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOAEDirMissing, dir)
}

func (a *Assembler) convertSubject(plan *Plan, sp SubjectPlan, idx *oae.Index, families []oae.Family, cols []reference.Column, logger *slog.Logger, sum *Summary) (SubjectSummary, error) {
	ss := SubjectSummary{Original: sp.Original, Canonical: sp.Canonical}
	logger = logger.With(logging.FieldSubject, sp.Original)
	if err := utils.EnsureDir(a.layout.SubjectDir(sp.Canonical)); err != nil {
		return ss, err
	}
	for _, s := range sp.Sessions {
		if err := a.prepareSessionDir(sp.Canonical, s.ID); err != nil {
			return ss, err
		}
		sessLog := logger.With(logging.FieldSession, s.ID, logging.FieldDate, s.Date, logging.FieldCondition, s.Condition)
		warn := func(instrument, format string, args ...any) {
			msg := fmt.Sprintf(format, args...)
			sum.Warnings = append(sum.Warnings, Warning{
				Subject:    sp.Original,
				Session:    s.ID,
				Date:       s.Date,
				Condition:  s.Condition,
				Instrument: instrument,
				Message:    msg,
			})
			ss.Warnings++
			sessLog.Warn(msg, logging.FieldInstrument, instrument)
		}

		n, err := a.writeInline(plan, sp.Canonical, s)
		if err != nil {
			return ss, err
		}
		ss.Tables += n
		if idx != nil {
			n, err := a.writeExports(sp, s, idx, families, warn)
			if err != nil {
				return ss, err
			}
			ss.Tables += n
		}
	}

	dirOf := func(id string) string { return a.layout.SessionDir(sp.Canonical, id) }
	rows, err := reference.Build(sp.Sessions, sp.Delays, dirOf, cols)
	if err != nil {
		return ss, err
	}
	markers := reference.Markers{Present: a.cfg.Reference.PresentMarker, Absent: a.cfg.Reference.AbsentMarker}
	if err := reference.Write(a.layout.SessionsPath(sp.Canonical), rows, cols, markers); err != nil {
		return ss, fmt.Errorf("write sessions table: %w", err)
	}
	ss.Rows = rows
	logger.Info("subject converted", "sessions", len(rows), "tables", ss.Tables, "warnings", ss.Warnings)
	return ss, nil
}

// writeInline writes the instruments stored in the database row.
func (a *Assembler) writeInline(plan *Plan, canonical string, s session.Expanded) (int, error) {
	written := 0
	for _, spec := range plan.Specs {
		pair, ok := plan.Groups.Get(spec.Instrument)
		if !ok {
			continue
		}
		recs, err := record.Build(s, pair, spec, a.cfg.NA)
		if err != nil {
			return written, err
		}
		if len(recs) == 0 {
			continue
		}
		if err := a.writeTable(canonical, s.ID, spec.Instrument, "01", spec.Header(), record.Rows(recs, spec)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// writeExports matches and converts the file-based tests of one session.
func (a *Assembler) writeExports(sp SubjectPlan, s session.Expanded, idx *oae.Index, families []oae.Family, warn func(instrument, format string, args ...any)) (int, error) {
	t, err := session.ParseDate(s.Date)
	if err != nil {
		return 0, fmt.Errorf("subject %s session %s: %w", sp.Original, s.ID, err)
	}
	key := oae.Session{Subject: sp.Original, DateKey: session.DateKey(t), Condition: s.Condition}
	delim := a.delimiter()
	written := 0
	for _, fam := range families {
		m, ok := fam.Resolve(key, idx)
		if !ok {
			continue
		}
		for _, slot := range m.Slots {
			if names, ok := m.Ambiguous[slot]; ok {
				warn(fam.Name, "ambiguous export for %s, using %s of %s", slot, names[0], strings.Join(names, ", "))
			}
		}
		if !m.Complete() {
			missing := make([]string, 0, len(m.Missing()))
			for _, slot := range m.Missing() {
				missing = append(missing, slot.String())
			}
			warn(fam.Name, "export not found for %s", strings.Join(missing, ", "))
			continue
		}
		tables, err := convertRuns(m.Runs(), idx, fam.Fields, delim, a.cfg.NA)
		if err != nil {
			warn(fam.Name, "%v", err)
			continue
		}
		for i, run := range m.Runs() {
			if err := a.writeTable(sp.Canonical, s.ID, fam.Name, run.ID, oae.Header(fam.Fields), tables[i]); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// convertRuns reads and converts every run of a match. One failing export
// discards the whole family for the session.
func convertRuns(runs []oae.Run, idx *oae.Index, fields []config.OAEField, delim rune, na string) ([][][]string, error) {
	out := make([][][]string, 0, len(runs))
	for _, run := range runs {
		right, err := oae.ReadExport(idx.Path(run.Right), delim)
		if err != nil {
			return nil, fmt.Errorf("unreadable export: %w", err)
		}
		left, err := oae.ReadExport(idx.Path(run.Left), delim)
		if err != nil {
			return nil, fmt.Errorf("unreadable export: %w", err)
		}
		rows, err := oae.Convert(right, left, fields, na)
		if err != nil {
			return nil, err
		}
		out = append(out, rows)
	}
	return out, nil
}

// prepareSessionDir creates the session folder and removes tables left there by a previous run.
func (a *Assembler) prepareSessionDir(canonical, sessionID string) error {
	dir := a.layout.SessionDir(canonical, sessionID)
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}
	stale, err := filepath.Glob(filepath.Join(dir, TableName(canonical, sessionID, "*", "*")))
	if err != nil {
		return fmt.Errorf("list session tables: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove stale table: %w", err)
		}
	}
	return nil
}

func (a *Assembler) delimiter() rune {
	r, _ := utf8.DecodeRuneInString(a.cfg.OAE.Delimiter)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

func (a *Assembler) writeTable(canonical, sessionID, task, run string, header []string, rows [][]string) error {
	if err := utils.EnsureDir(a.layout.SessionDir(canonical, sessionID)); err != nil {
		return err
	}
	path := a.layout.TablePath(canonical, sessionID, task, run)
	if err := table.WriteTSV(path, header, rows); err != nil {
		return fmt.Errorf("write %s: %w", TableName(canonical, sessionID, task, run), err)
	}
	return nil
}

func snapshot(sum *Summary, plan *Plan, cols []reference.Column, started time.Time) catalog.Snapshot {
	snap := catalog.Snapshot{RunID: sum.RunID, StartedAt: started, DatasetRoot: sum.Root}
	for _, e := range plan.Registry.Entries() {
		snap.Subjects = append(snap.Subjects, catalog.Subject{Original: e.Original, Canonical: e.Canonical})
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	for i, ss := range sum.Subjects {
		for j, r := range ss.Rows {
			snap.Sessions = append(snap.Sessions, catalog.Session{
				Subject:   ss.Canonical,
				SessionID: r.SessionID,
				Name:      r.Name,
				Condition: r.Condition,
				Delay:     r.Delay,
				ScanType:  r.ScanType,
				Synthetic: plan.Subjects[i].Sessions[j].Synthetic,
				Flags:     r.Flags,
				Columns:   names,
			})
		}
	}
	return snap
}
