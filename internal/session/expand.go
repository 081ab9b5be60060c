package session

import (
	"fmt"

	"github.com/KaramelBytes/audiobids/internal/config"
)

// Pairing lists the conditions that get a synthetic companion session, with the companion label.
type Pairing []config.Pairing

// Paired returns the companion label of condition.
func (p Pairing) Paired(condition string) (string, bool) {
	for _, e := range p {
		if e.Condition == condition {
			return e.Paired, true
		}
	}
	return "", false
}

// Expanded is a session in output order.
type Expanded struct {
	Row
	// ID is the zero-padded session index, starting at "01".
	ID        string
	Synthetic bool
	// ParentID names the session a synthetic row was derived from.
	ParentID string
	schema   *Schema
}

// Value returns the cell of col, or the NA sentinel when the column is unknown.
func (e Expanded) Value(col string) string {
	if e.schema == nil {
		return ""
	}
	i := e.schema.Index(col)
	if i < 0 || i >= len(e.Values) {
		return e.schema.NA
	}
	return e.Values[i]
}

// FormatID renders a 1-based session index.
func FormatID(n int) string {
	return fmt.Sprintf("%02d", n)
}

// Expand numbers rows and inserts a synthetic companion directly after every
// row whose condition is pairable. The companion copies its parent with the
// condition replaced and every instrument value, from the boundary column on,
// set to NA. Companions are never expanded again. rows is not modified.
func Expand(rows []Row, pairing Pairing, schema *Schema) ([]Expanded, error) {
	out := make([]Expanded, 0, len(rows))
	for _, r := range rows {
		parent := Expanded{Row: copyRow(r), ID: FormatID(len(out) + 1), schema: schema}
		out = append(out, parent)

		paired, ok := pairing.Paired(r.Condition)
		if !ok {
			continue
		}
		if paired == "" {
			return nil, fmt.Errorf("condition %q has no paired label", r.Condition)
		}
		b := schema.Boundary()
		if b < 0 {
			return nil, fmt.Errorf("condition %q is pairable but the boundary column is missing from the database", r.Condition)
		}
		child := copyRow(r)
		child.Condition = paired
		for i := b; i < len(child.Values); i++ {
			child.Values[i] = schema.NA
		}
		if ci := schema.condition; ci < len(child.Values) && ci < b {
			child.Values[ci] = paired
		}
		out = append(out, Expanded{
			Row:       child,
			ID:        FormatID(len(out) + 1),
			Synthetic: true,
			ParentID:  parent.ID,
			schema:    schema,
		})
	}
	return out, nil
}

func copyRow(r Row) Row {
	r.Values = append([]string(nil), r.Values...)
	return r
}
