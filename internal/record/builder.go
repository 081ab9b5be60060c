// Package record converts the wide columns of one instrument into per-side records.
package record

import (
	"fmt"

	"github.com/KaramelBytes/audiobids/internal/columns"
	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// Spec describes how one inline instrument is rendered.
type Spec struct {
	Instrument string
	// SideCodes labels sides 0 and 1; empty means the table has no side column.
	SideCodes    []string
	Fields       []string
	Sentinels    []config.Sentinel
	DecimalComma bool
}

// SpecFromConfig converts an instrument definition.
func SpecFromConfig(in config.Instrument) Spec {
	return Spec{
		Instrument:   in.Name,
		SideCodes:    append([]string(nil), in.SideCodes...),
		Fields:       append([]string(nil), in.Fields...),
		Sentinels:    append([]config.Sentinel(nil), in.Sentinels...),
		DecimalComma: in.DecimalComma,
	}
}

// Header returns the output columns: order, side when coded, then the fields.
func (s Spec) Header() []string {
	h := []string{"order"}
	if len(s.SideCodes) > 0 {
		h = append(h, "side")
	}
	return append(h, s.Fields...)
}

// Check verifies that both sides of pair line up with the configured fields.
func (s Spec) Check(pair columns.Pair) error {
	for i := 0; i < 2; i++ {
		if n := len(pair.Side(i)); n != len(s.Fields) {
			return fmt.Errorf("instrument %s: side %d has %d columns, %d fields configured", s.Instrument, i, n, len(s.Fields))
		}
	}
	return nil
}

// Record is one side of one instrument in one session.
type Record struct {
	Order  string
	Side   string
	Values []string
}

// Cells renders the record in Header order.
func (r Record) Cells(s Spec) []string {
	out := []string{r.Order}
	if len(s.SideCodes) > 0 {
		out = append(out, r.Side)
	}
	return append(out, r.Values...)
}

// Source yields cell values by column name.
type Source interface {
	Value(col string) string
}

// Build returns zero to two records. A side is dropped when all of its values are na,
// evaluated after sentinel substitution.
func Build(row Source, pair columns.Pair, s Spec, na string) ([]Record, error) {
	if err := s.Check(pair); err != nil {
		return nil, err
	}
	var out []Record
	for side := 0; side < 2; side++ {
		cols := pair.Side(side)
		values := make([]string, len(cols))
		present := false
		for i, c := range cols {
			v := s.transform(row.Value(c), na)
			values[i] = v
			if v != na {
				present = true
			}
		}
		if !present {
			continue
		}
		rec := Record{Order: fmt.Sprint(side + 1), Values: values}
		if len(s.SideCodes) > side {
			rec.Side = s.SideCodes[side]
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s Spec) transform(raw, na string) string {
	if raw == na {
		return raw
	}
	if len(s.Sentinels) > 0 {
		if f, ok := table.NormalizeDecimal(raw); ok {
			for _, sn := range s.Sentinels {
				if f == sn.Value {
					return sn.Replacement
				}
			}
		}
	}
	if s.DecimalComma {
		if f, ok := table.NormalizeDecimal(raw); ok {
			return table.FormatFloat(f)
		}
	}
	return raw
}

// Rows renders records for table.WriteTSV.
func Rows(recs []Record, s Spec) [][]string {
	out := make([][]string, len(recs))
	for i, r := range recs {
		out[i] = r.Cells(s)
	}
	return out
}
