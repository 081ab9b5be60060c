package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
	if c.NA != "n/a" {
		t.Fatalf("expected n/a sentinel, got %q", c.NA)
	}
	if len(c.Pairable) != 1 || c.Pairable[0].Condition != "Condition 3A (OAEs right before the scan)" {
		t.Fatalf("unexpected pairable conditions: %+v", c.Pairable)
	}
	pta, ok := c.InstrumentByName("PTA")
	if !ok || len(pta.Sentinels) != 1 || pta.Sentinels[0].Value != 130 {
		t.Fatalf("expected PTA sentinel 130, got %+v", pta)
	}
	if len(c.OAE.Growth.Fields) != 12 {
		t.Fatalf("expected growth fields from anchor, got %d", len(c.OAE.Growth.Fields))
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	content := "na_value: NA\npairable_conditions:\n  - condition: Visit A\n    paired: Visit B\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.NA != "NA" {
		t.Fatalf("expected override, got %q", c.NA)
	}
	if len(c.Pairable) != 1 || c.Pairable[0].Paired != "Visit B" {
		t.Fatalf("expected replaced pairing list with case preserved, got %+v", c.Pairable)
	}
	if c.FirstBaseline != "Baseline 1" {
		t.Fatalf("expected default first_baseline to survive merge, got %q", c.FirstBaseline)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AUDIOBIDS_LOG_LEVEL", "debug")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("expected env override, got %q", c.LogLevel)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	c.ResultsDir = "/tmp/out"
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(c, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ResultsDir != "/tmp/out" {
		t.Fatalf("expected results_dir round trip, got %q", got.ResultsDir)
	}
	if len(got.Rules) != len(c.Rules) {
		t.Fatalf("expected %d rules, got %d", len(c.Rules), len(got.Rules))
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Global)
		key    string
	}{
		{"missing paired label", func(c *Global) { c.Pairable[0].Paired = "" }, "pairable_conditions[0].paired"},
		{"unknown rule instrument", func(c *Global) { c.Rules[0].Instrument = "Nope" }, "column_rules[0].instrument"},
		{"bad match kind", func(c *Global) { c.Rules[0].Match = "infix" }, "column_rules[0].match"},
		{"empty growth frequencies", func(c *Global) { c.OAE.Growth.Frequencies = nil }, "oae.growth.frequencies"},
		{"bad derive", func(c *Global) { c.OAE.EarPairs[0].Fields[3].Derive = "sum" }, "oae.ear_pairs[0].fields[3].derive"},
		{"unknown reference instrument", func(c *Global) { c.Reference.Columns[0].Instrument = "X" }, "reference.columns[0].instrument"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Default()
			if err != nil {
				t.Fatalf("default: %v", err)
			}
			tc.mutate(c)
			err = c.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Key != tc.key {
				t.Fatalf("expected key %q, got %q", tc.key, ve.Key)
			}
		})
	}
}
