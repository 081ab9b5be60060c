package record

import (
	"reflect"
	"testing"

	"github.com/KaramelBytes/audiobids/internal/columns"
	"github.com/KaramelBytes/audiobids/internal/config"
)

type mapRow map[string]string

func (m mapRow) Value(col string) string {
	if v, ok := m[col]; ok {
		return v
	}
	return "n/a"
}

var ptaSpec = Spec{
	Instrument: "PTA",
	SideCodes:  []string{"R", "L"},
	Fields:     []string{"250_hz", "500_hz"},
	Sentinels:  []config.Sentinel{{Value: 130, Replacement: "No response"}},
}

var ptaPair = columns.Pair{Right: []string{"RE_250", "RE_500"}, Left: []string{"LE_250", "LE_500"}}

func TestBuildDropsEmptySides(t *testing.T) {
	cases := []struct {
		name  string
		row   mapRow
		sides []string
	}{
		{"both", mapRow{"RE_250": "10", "RE_500": "15", "LE_250": "5", "LE_500": "n/a"}, []string{"R", "L"}},
		{"right only", mapRow{"RE_250": "10", "LE_250": "n/a"}, []string{"R"}},
		{"left only", mapRow{"LE_500": "20"}, []string{"L"}},
		{"none", mapRow{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := Build(tc.row, ptaPair, ptaSpec, "n/a")
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			var sides []string
			for _, r := range recs {
				sides = append(sides, r.Side)
			}
			if !reflect.DeepEqual(sides, tc.sides) {
				t.Fatalf("sides = %v, want %v", sides, tc.sides)
			}
		})
	}
}

func TestBuildSentinelCountsAsPresent(t *testing.T) {
	row := mapRow{"RE_250": "130", "LE_250": "130.0", "LE_500": "40"}
	recs, err := Build(row, ptaPair, ptaSpec, "n/a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected both sides, got %+v", recs)
	}
	want := [][]string{{"1", "R", "No response", "n/a"}, {"2", "L", "No response", "40"}}
	if got := Rows(recs, ptaSpec); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestBuildSentinelOnlyForConfiguredInstrument(t *testing.T) {
	spec := Spec{Instrument: "Reflex", SideCodes: []string{"R", "L"}, Fields: []string{"500_hz"}}
	pair := columns.Pair{Right: []string{"REFLEX_RE_500"}, Left: []string{"REFLEX_LE_500"}}
	recs, err := Build(mapRow{"REFLEX_RE_500": "130"}, pair, spec, "n/a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(recs) != 1 || recs[0].Values[0] != "130" {
		t.Fatalf("expected raw 130 kept, got %+v", recs)
	}
}

func TestBuildDecimalComma(t *testing.T) {
	spec := Spec{Instrument: "MTX", Fields: []string{"language", "practice", "sp_bin_no_bin"}, DecimalComma: true}
	pair := columns.Pair{
		Right: []string{"MTX1_LANG", "MTX1_PRACTICE", "MTX1_BIN"},
		Left:  []string{"MTX2_LANG", "MTX2_PRACTICE", "MTX2_BIN"},
	}
	row := mapRow{"MTX1_LANG": "French", "MTX1_PRACTICE": "-3,2", "MTX1_BIN": "-7.5"}
	recs, err := Build(row, pair, spec, "n/a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected channel 2 dropped, got %+v", recs)
	}
	want := []string{"1", "French", "-3.2", "-7.5"}
	if got := recs[0].Cells(spec); !reflect.DeepEqual(got, want) {
		t.Fatalf("cells = %v, want %v", got, want)
	}
	if h := spec.Header(); !reflect.DeepEqual(h, []string{"order", "language", "practice", "sp_bin_no_bin"}) {
		t.Fatalf("unexpected header %v", h)
	}
}

func TestBuildColumnCountMismatch(t *testing.T) {
	pair := columns.Pair{Right: []string{"RE_250"}, Left: []string{"LE_250", "LE_500"}}
	if _, err := Build(mapRow{}, pair, ptaSpec, "n/a"); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestSpecFromConfigHeader(t *testing.T) {
	c, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	in, _ := c.InstrumentByName("Tymp")
	h := SpecFromConfig(in).Header()
	if !reflect.DeepEqual(h, []string{"order", "side", "type", "tpp", "ecv", "sc", "tw"}) {
		t.Fatalf("unexpected tymp header: %v", h)
	}
}
