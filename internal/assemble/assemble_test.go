package assemble

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/KaramelBytes/audiobids/internal/catalog"
	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/reference"
	"github.com/KaramelBytes/audiobids/internal/subject"
	"github.com/KaramelBytes/audiobids/internal/table"
)

const (
	cond3A = "Condition 3A (OAEs right before the scan)"
	cond3B = "Condition 3B (OAEs right after the scan)"
	na     = "n/a"
)

var dbHeader = []string{
	"Participant_ID", "Date", "Session_ID", "Protocol name", "Protocol condition", "Scan type",
	"Type_RE", "TPP_RE", "ECV_RE", "SC_RE", "TW_RE",
	"Type_LE", "TPP_LE", "ECV_LE", "SC_LE", "TW_LE",
	"REFLEX_RE_500", "REFLEX_RE_1000", "REFLEX_RE_2000", "REFLEX_RE_4000", "REFLEX_RE_NOISE",
	"REFLEX_LE_500", "REFLEX_LE_1000", "REFLEX_LE_2000", "REFLEX_LE_4000", "REFLEX_LE_NOISE",
}

func testDB(rows ...[]string) *table.Table {
	return table.New("db", dbHeader, rows)
}

func defaultRows() [][]string {
	return [][]string{
		{"Sub01", "2020-01-01", "1", "Baseline 1", "Baseline", "No Scan",
			"A", "-10", "1.2", "0.8", "90",
			"A", "-5", "1.1", "0.7", "85",
			"85", "90", "95", "100", "80",
			na, na, na, na, na},
		{"Sub01", "2020-01-11 09:30:00", "2", "Scan 1", cond3A, "Anatomical",
			"A", "0", "1.0", "0.6", "80",
			na, na, na, na, na,
			na, na, na, na, na,
			na, na, na, na, na},
	}
}

const (
	teHeader = "Freq (Hz);OAE (dB);Noise (dB);Confidence (%);\n"
	dpHeader = "Freq (Hz);F1 (dB);F2 (dB);DP (dB);Noise+2sd (dB);Noise+1sd (dB);2F2-F1 (dB);3F1-2F2 (dB);3F2-2F1 (dB);4F1-3F2 (dB);\n"
)

func writeExports(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"Sub01_2020-01-01_Baseline_TE_R.csv":            teHeader + "1000;10,5;2,5;99;\n",
		"Sub01_2020-01-01_Baseline_TE_L.csv":            teHeader + "1000;9,5;2,5;97;\n",
		"Sub01_2020-01-01_DPGrowth_4000_R.csv":          dpHeader + "4004;65;55;5,2;-3,1;-5;1;2;3;4;\n",
		"Sub01_2020-01-01_DPGrowth_4000_L.csv":          dpHeader + "4004;65;55;4,2;-3,1;-5;1;2;3;-;\n",
		"Sub01_2020-01-11_PostScan_TE_R.csv":            teHeader + "1000;8;2;95;\n",
		"Sub01_2020-01-11_PostScan_TE_L.csv":            teHeader + "1000;7;2;90;\n",
		"Sub02_2020-01-01_Baseline_TE_R.csv":            teHeader + "1000;1;1;1;\n",
		"Sub01_2020-01-11_PostScan_DPGrowth_2000_R.csv": dpHeader + "2002;65;55;1;1;1;1;1;1;1;\n",
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func testConfig(t *testing.T) *config.Global {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	root := t.TempDir()
	cfg.ResultsDir = filepath.Join(root, "results")
	cfg.OAEDir = filepath.Join(root, "OAE")
	cfg.Columns.Boundary = "Type_RE"
	return cfg
}

func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return out
}

func TestRunWritesDataset(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	a := New(cfg, nil)
	sum, err := a.Run(context.Background(), testDB(defaultRows()...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	l := a.Layout()
	tree := snapshotTree(t, l.Root())

	want := []string{
		"sessions.json",
		"task-Tymp_beh.json",
		"subject_id_concordance.tsv",
		filepath.Join("sub-01", "sub-01_sessions.tsv"),
		filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-Tymp_run-01_beh.tsv"),
		filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-Reflex_run-01_beh.tsv"),
		filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-TEOAE_run-01_beh.tsv"),
		filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-DPGrowth_run-01_beh.tsv"),
		filepath.Join("sub-01", "ses-02", "sub-01_ses-02_task-Tymp_run-01_beh.tsv"),
		filepath.Join("sub-01", "ses-03", "sub-01_ses-03_task-TEOAE_run-01_beh.tsv"),
	}
	for _, w := range want {
		if _, ok := tree[w]; !ok {
			t.Fatalf("missing %s in %v", w, keys(tree))
		}
	}
	for name := range tree {
		if strings.Contains(name, "ses-03") && strings.Contains(name, "Tymp") {
			t.Fatalf("synthetic session must not carry database tables: %s", name)
		}
		if strings.Contains(name, "DPGrowth") && !strings.Contains(name, "ses-01") {
			t.Fatalf("incomplete growth set was written: %s", name)
		}
	}

	tymp := tree[filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-Tymp_run-01_beh.tsv")]
	wantTymp := "order\tside\ttype\ttpp\tecv\tsc\ttw\n1\tR\tA\t-10\t1.2\t0.8\t90\n2\tL\tA\t-5\t1.1\t0.7\t85\n"
	if tymp != wantTymp {
		t.Fatalf("tymp table:\n%q\nwant\n%q", tymp, wantTymp)
	}
	reflex := tree[filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-Reflex_run-01_beh.tsv")]
	if strings.Count(reflex, "\n") != 2 || strings.Contains(reflex, "\tL\t") {
		t.Fatalf("reflex table should only hold the right ear:\n%s", reflex)
	}
	te := tree[filepath.Join("sub-01", "ses-01", "sub-01_ses-01_task-TEOAE_run-01_beh.tsv")]
	wantTE := "order\tside\tfreq\toae\tnoise\tsnr\tconfidence\n1\tR\t1000\t10.5\t2.5\t8\t99\n2\tL\t1000\t9.5\t2.5\t7\t97\n"
	if te != wantTE {
		t.Fatalf("teoae table:\n%q\nwant\n%q", te, wantTE)
	}

	for _, id := range []string{"01", "02", "03"} {
		if info, err := os.Stat(l.SessionDir("01", id)); err != nil || !info.IsDir() {
			t.Fatalf("session directory ses-%s missing: %v", id, err)
		}
	}

	if got := tree["subject_id_concordance.tsv"]; got != "original_id\tparticipant_id\nSub01\tsub-01\n" {
		t.Fatalf("unexpected concordance: %q", got)
	}

	if len(sum.Subjects) != 1 {
		t.Fatalf("expected one subject, got %d", len(sum.Subjects))
	}
	rows := sum.Subjects[0].Rows
	if len(rows) != 3 {
		t.Fatalf("expected three sessions, got %d", len(rows))
	}
	checkFlags(t, rows[0], map[string]bool{"Tymp": true, "Reflex": true, "TEOAE": true, "DPGrowth_4kHz": true})
	checkFlags(t, rows[1], map[string]bool{"Tymp": true})
	checkFlags(t, rows[2], map[string]bool{"TEOAE": true})
	if rows[2].Condition != cond3B || rows[2].Delay != 10 || rows[0].Delay != 0 {
		t.Fatalf("unexpected reference rows: %+v", rows)
	}

	if len(sum.Warnings) == 0 {
		t.Fatalf("expected warnings for missing exports")
	}
	for _, w := range sum.Warnings {
		if w.Subject != "Sub01" || w.Date == "" || w.Condition == "" {
			t.Fatalf("warning lacks location: %+v", w)
		}
	}
}

func checkFlags(t *testing.T, r reference.Row, want map[string]bool) {
	t.Helper()
	got := map[string]bool{}
	for k, v := range r.Flags {
		if v {
			got[k] = true
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s flags = %v, want %v", r.SessionID, got, want)
	}
}

func keys(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	a := New(cfg, nil)
	if _, err := a.Run(context.Background(), testDB(defaultRows()...)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := snapshotTree(t, a.Layout().Root())
	if _, err := a.Run(context.Background(), testDB(defaultRows()...)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := snapshotTree(t, a.Layout().Root())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second run changed the tree")
	}
}

func TestRunConflictWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	rows := defaultRows()
	dup := append([]string(nil), rows[0]...)
	dup[0] = "sub-01"
	_, err := New(cfg, nil).Run(context.Background(), testDB(rows[0], dup))
	var conflict *subject.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Canonical != "01" {
		t.Fatalf("unexpected canonical: %q", conflict.Canonical)
	}
	if _, err := os.Stat(cfg.ResultsDir); !os.IsNotExist(err) {
		t.Fatalf("results must not exist after a conflict: %v", err)
	}
}

func TestRunMissingBaselineIsFatal(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	_, err := New(cfg, nil).Run(context.Background(), testDB(defaultRows()[1]))
	var mb *reference.MissingBaselineError
	if !errors.As(err, &mb) || mb.Subject != "Sub01" {
		t.Fatalf("expected MissingBaselineError, got %v", err)
	}
	if _, err := os.Stat(cfg.ResultsDir); !os.IsNotExist(err) {
		t.Fatalf("results must not exist: %v", err)
	}
}

func TestRunMissingOAEDir(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil).Run(context.Background(), testDB(defaultRows()...))
	if !errors.Is(err, ErrOAEDirMissing) {
		t.Fatalf("expected ErrOAEDirMissing, got %v", err)
	}

	cfg.AllowMissingOAE = true
	sum, err := New(cfg, nil).Run(context.Background(), testDB(defaultRows()...))
	if err != nil {
		t.Fatalf("run with missing oae allowed: %v", err)
	}
	if !sum.OAESkipped || len(sum.Warnings) != 0 {
		t.Fatalf("expected skipped file-based tests, got %+v", sum)
	}
	checkFlags(t, sum.Subjects[0].Rows[0], map[string]bool{"Tymp": true, "Reflex": true})
}

func TestRunHonoursLock(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	a := New(cfg, nil)
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(a.Layout().LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()
	if _, err := a.Run(context.Background(), testDB(defaultRows()...)); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunSubjectSelectionAndCatalog(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	cfg.CatalogPath = filepath.Join(cfg.ResultsDir, "catalog.db")
	rows := defaultRows()
	other := append([]string(nil), rows[0]...)
	other[0] = "Sub02"

	cfg.Subjects = []string{"Sub03"}
	if _, err := New(cfg, nil).Run(context.Background(), testDB(rows[0], rows[1], other)); err == nil {
		t.Fatalf("expected error for unknown subject")
	}

	cfg.Subjects = []string{"Sub02"}
	sum, err := New(cfg, nil).Run(context.Background(), testDB(rows[0], rows[1], other))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Subjects) != 1 || sum.Subjects[0].Canonical != "02" {
		t.Fatalf("unexpected subjects: %+v", sum.Subjects)
	}
	missing, err := catalog.Missing(context.Background(), cfg.CatalogPath, "02", "TEOAE")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !reflect.DeepEqual(missing, []string{"ses-01"}) {
		t.Fatalf("missing TEOAE = %v", missing)
	}
}

func TestRunCreatesEmptySessionDirs(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	rows := defaultRows()
	empty := []string{"Sub01", "2020-02-01", "3", "Scan 2", "Condition 1A (right before the scan)", "Anatomical"}
	for len(empty) < len(dbHeader) {
		empty = append(empty, na)
	}
	a := New(cfg, nil)
	sum, err := a.Run(context.Background(), testDB(append(rows, empty)...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	dir := a.Layout().SessionDir("01", "04")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("session without tables has no directory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected an empty session directory, got %d entries", len(entries))
	}
	if got := sum.Subjects[0].Rows; len(got) != 4 || got[3].SessionID != "ses-04" {
		t.Fatalf("unexpected reference rows: %+v", got)
	}
	checkFlags(t, sum.Subjects[0].Rows[3], map[string]bool{})
}

func TestRunGrowthBadExportWritesNoRun(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	noDP := "Freq (Hz);F1 (dB);F2 (dB);Noise+2sd (dB);Noise+1sd (dB);2F2-F1 (dB);3F1-2F2 (dB);3F2-2F1 (dB);4F1-3F2 (dB);\n"
	for _, f := range []string{"2000", "4000", "6000"} {
		for _, side := range []string{"R", "L"} {
			body := dpHeader + "2002;65;55;5;-3;-5;1;2;3;4;\n"
			if f == "6000" && side == "R" {
				body = noDP + "6006;65;55;-3;-5;1;2;3;4;\n"
			}
			name := "Sub01_2020-01-11_PreScan_DPGrowth_" + f + "_" + side + ".csv"
			if err := os.WriteFile(filepath.Join(cfg.OAEDir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("write %s: %v", name, err)
			}
		}
	}
	a := New(cfg, nil)
	sum, err := a.Run(context.Background(), testDB(defaultRows()...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for name := range snapshotTree(t, a.Layout().SessionDir("01", "02")) {
		if strings.Contains(name, "DPGrowth") {
			t.Fatalf("growth set with a bad export was partially written: %s", name)
		}
	}
	found := false
	for _, w := range sum.Warnings {
		if w.Session == "02" && w.Instrument == "DPGrowth" && strings.Contains(w.Message, "DP (dB)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a growth warning for ses-02, got %+v", sum.Warnings)
	}
	checkFlags(t, sum.Subjects[0].Rows[1], map[string]bool{"Tymp": true})
}

func TestRerunDropsTablesNoLongerProduced(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.OAEDir)
	a := New(cfg, nil)
	if _, err := a.Run(context.Background(), testDB(defaultRows()...)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	te := a.Layout().TablePath("01", "01", "TEOAE", "01")
	if _, err := os.Stat(te); err != nil {
		t.Fatalf("first run table: %v", err)
	}
	if err := os.Remove(filepath.Join(cfg.OAEDir, "Sub01_2020-01-01_Baseline_TE_L.csv")); err != nil {
		t.Fatalf("remove export: %v", err)
	}
	sum, err := a.Run(context.Background(), testDB(defaultRows()...))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, err := os.Stat(te); !os.IsNotExist(err) {
		t.Fatalf("stale TEOAE table survived the rerun: %v", err)
	}
	checkFlags(t, sum.Subjects[0].Rows[0], map[string]bool{"Tymp": true, "Reflex": true, "DPGrowth_4kHz": true})
}

func TestLayoutNames(t *testing.T) {
	l := Layout{Results: "results"}
	got := l.TablePath("01", "02", "PTA", "01")
	want := filepath.Join("results", "BIDS_data", "sub-01", "ses-02", "sub-01_ses-02_task-PTA_run-01_beh.tsv")
	if got != want {
		t.Fatalf("TablePath = %s, want %s", got, want)
	}
	if l.SessionsPath("01") != filepath.Join("results", "BIDS_data", "sub-01", "sub-01_sessions.tsv") {
		t.Fatalf("unexpected sessions path: %s", l.SessionsPath("01"))
	}
}
