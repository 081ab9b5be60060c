package assemble

import (
	"fmt"

	"github.com/KaramelBytes/audiobids/internal/columns"
	"github.com/KaramelBytes/audiobids/internal/config"
	"github.com/KaramelBytes/audiobids/internal/record"
	"github.com/KaramelBytes/audiobids/internal/reference"
	"github.com/KaramelBytes/audiobids/internal/session"
	"github.com/KaramelBytes/audiobids/internal/subject"
	"github.com/KaramelBytes/audiobids/internal/table"
)

// Plan is everything derived from the database before any file is written.
type Plan struct {
	Schema   *session.Schema
	Groups   columns.Groups
	Specs    []record.Spec
	Subjects []SubjectPlan
	Registry *subject.Registry
}

// SubjectPlan is one subject with its expanded sessions and their delays.
type SubjectPlan struct {
	Original  string
	Canonical string
	Sessions  []session.Expanded
	Delays    []int
}

// BuildPlan classifies the columns, canonicalises every selected subject and
// expands its sessions. Identifier conflicts and missing baselines fail here.
func BuildPlan(cfg *config.Global, db *table.Table) (*Plan, error) {
	schema, err := session.NewSchema(db.Header, cfg.Columns, cfg.NA)
	if err != nil {
		return nil, err
	}
	p := &Plan{
		Schema:   schema,
		Groups:   columns.Classify(db.Header, columns.RulesFromConfig(cfg.Rules)),
		Registry: subject.NewRegistry(),
	}
	for _, in := range cfg.Instruments {
		spec := record.SpecFromConfig(in)
		if pair, ok := p.Groups.Get(spec.Instrument); ok {
			if err := spec.Check(pair); err != nil {
				return nil, err
			}
		}
		p.Specs = append(p.Specs, spec)
	}

	ids, err := selectSubjects(schema, db, cfg.Subjects)
	if err != nil {
		return nil, err
	}
	canon := make([]string, len(ids))
	for i, id := range ids {
		c, err := p.Registry.Register(id)
		if err != nil {
			return nil, err
		}
		canon[i] = c
	}

	pairing := session.Pairing(cfg.Pairable)
	for i, id := range ids {
		expanded, err := session.Expand(schema.Rows(db, id), pairing, schema)
		if err != nil {
			return nil, fmt.Errorf("subject %s: %w", id, err)
		}
		delays, err := reference.Delays(id, expanded, cfg.FirstBaseline)
		if err != nil {
			return nil, err
		}
		p.Subjects = append(p.Subjects, SubjectPlan{
			Original:  id,
			Canonical: canon[i],
			Sessions:  expanded,
			Delays:    delays,
		})
	}
	return p, nil
}

func selectSubjects(schema *session.Schema, db *table.Table, wanted []string) ([]string, error) {
	all := schema.Subjects(db)
	if len(wanted) == 0 {
		return all, nil
	}
	present := make(map[string]bool, len(all))
	for _, id := range all {
		present[id] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, id := range wanted {
		if !present[id] {
			return nil, fmt.Errorf("subject %q is not in the database", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
