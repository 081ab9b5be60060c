package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExportURL(t *testing.T) {
	cases := map[string]string{
		"https://docs.google.com/spreadsheets/d/abc/edit#gid=12": "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=12",
		"https://docs.google.com/spreadsheets/d/abc/edit?gid=7":  "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=7",
		"http://example.org/db.csv":                              "http://example.org/db.csv",
	}
	for in, want := range cases {
		if got := ExportURL(in); got != want {
			t.Fatalf("ExportURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenLocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "db.csv")
	if err := os.WriteFile(p, []byte("Participant_ID,Date,Tymp_RE\nSub01,2020-01-01,\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tb, err := Open(context.Background(), Options{Path: p, NA: "n/a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(tb.Rows) != 1 || tb.Rows[0][2] != "n/a" {
		t.Fatalf("unexpected rows: %v", tb.Rows)
	}
}

func TestOpenRequiresExactlyOneSource(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
	if _, err := Open(context.Background(), Options{Path: "a.csv", URL: "http://x"}); err == nil {
		t.Fatalf("expected error for two sources")
	}
}

func TestOpenURLFollowsURLFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "csv" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("Participant_ID,Date\nSub01,2020-01-01\nSub02,\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	urlFile := filepath.Join(dir, "URL.tsv")
	content := "name\ttest_database\nmain\t" + srv.URL + "/d/abc/edit#gid=0\n"
	if err := os.WriteFile(urlFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tb, err := Open(context.Background(), Options{URLFile: urlFile, NA: "n/a", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(tb.Rows) != 2 || tb.Rows[1][1] != "n/a" {
		t.Fatalf("unexpected rows: %v", tb.Rows)
	}
}

func TestOpenURLStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sheet is private", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err := Open(context.Background(), Options{URL: srv.URL})
	if err == nil || !strings.Contains(err.Error(), "sheet is private") {
		t.Fatalf("expected status error with body, got %v", err)
	}
}

func TestReadURLFileCustomColumn(t *testing.T) {
	p := filepath.Join(t.TempDir(), "URL.tsv")
	if err := os.WriteFile(p, []byte("other\nhttp://example.org/x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadURLFile(p, "other")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "http://example.org/x" {
		t.Fatalf("got %q", got)
	}
	if _, err := ReadURLFile(p, "test_database"); err == nil {
		t.Fatalf("expected error for missing default column")
	}
}
