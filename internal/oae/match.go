package oae

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KaramelBytes/audiobids/internal/config"
)

// Session identifies the database session exports are matched against.
type Session struct {
	// Subject is the participant id as written in the database.
	Subject   string
	DateKey   string
	Condition string
}

// Side is an ear.
type Side int

const (
	Right Side = iota
	Left
)

// Code returns the side column value.
func (s Side) Code() string {
	if s == Right {
		return "R"
	}
	return "L"
}

// Slot is one expected export.
type Slot struct {
	Side      Side
	Frequency string
}

func (s Slot) String() string {
	if s.Frequency == "" {
		return s.Side.Code()
	}
	return s.Frequency + "_" + s.Side.Code()
}

// Match is the outcome of resolving one family for one session.
type Match struct {
	Family string
	// Slots lists the expected exports in output order.
	Slots []Slot
	Files map[Slot]string
	// Ambiguous holds every candidate of slots that had more than one.
	Ambiguous map[Slot][]string
}

func newMatch(family string) Match {
	return Match{Family: family, Files: map[Slot]string{}, Ambiguous: map[Slot][]string{}}
}

// Missing lists the slots without a file.
func (m Match) Missing() []Slot {
	var out []Slot
	for _, s := range m.Slots {
		if _, ok := m.Files[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Complete reports whether every expected slot has a file.
func (m Match) Complete() bool {
	return len(m.Slots) > 0 && len(m.Missing()) == 0
}

// Run is one output table built from a right and a left export.
type Run struct {
	ID    string
	Right string
	Left  string
}

// Runs pairs the matched files per frequency in slot order. It is empty unless the match is complete.
func (m Match) Runs() []Run {
	if !m.Complete() {
		return nil
	}
	var runs []Run
	var freqs []string
	seen := map[string]bool{}
	for _, s := range m.Slots {
		if !seen[s.Frequency] {
			seen[s.Frequency] = true
			freqs = append(freqs, s.Frequency)
		}
	}
	for i, f := range freqs {
		runs = append(runs, Run{
			ID:    fmt.Sprintf("%02d", i+1),
			Right: m.Files[Slot{Side: Right, Frequency: f}],
			Left:  m.Files[Slot{Side: Left, Frequency: f}],
		})
	}
	return runs
}

func (m *Match) resolve(slot Slot, candidates []string) {
	m.Slots = append(m.Slots, slot)
	if len(candidates) == 0 {
		return
	}
	// candidates come from a sorted index
	m.Files[slot] = candidates[0]
	if len(candidates) > 1 {
		m.Ambiguous[slot] = candidates
	}
}

// Matcher resolves one export family.
type Matcher interface {
	Name() string
	Applies(s Session) bool
	Match(s Session, idx *Index) Match
}

// Rules are the condition rules shared by all families.
type Rules struct {
	PostScanCondition string
	PostScanMarker    string
	Excluded          []string
}

// RulesFromConfig extracts the shared rules.
func RulesFromConfig(c config.OAE) Rules {
	return Rules{
		PostScanCondition: c.PostScanCondition,
		PostScanMarker:    c.PostScanMarker,
		Excluded:          append([]string(nil), c.ExcludedConditions...),
	}
}

func (r Rules) excluded(condition string) bool {
	for _, c := range r.Excluded {
		if c == condition {
			return true
		}
	}
	return false
}

func (r Rules) hasPostMarker(name string) bool {
	return r.PostScanMarker != "" && strings.Contains(name, r.PostScanMarker)
}

func belongs(name string, s Session) bool {
	return strings.HasPrefix(name, s.Subject) && strings.Contains(name, s.DateKey)
}

// delimitedSubject reports whether the subject id in name is not followed by
// another letter or digit, so S01 does not claim the exports of S010.
func delimitedSubject(name string, s Session) bool {
	rest := strings.TrimPrefix(name, s.Subject)
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// candidates lists the session's exports accepted by keep. Names whose subject
// id ends at a delimiter win over longer ids sharing the prefix.
func candidates(idx *Index, s Session, keep func(name string) bool) []string {
	all := idx.filter(func(n string) bool { return belongs(n, s) && keep(n) })
	var exact []string
	for _, n := range all {
		if delimitedSubject(n, s) {
			exact = append(exact, n)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return all
}

// EarPairMatcher expects one export per ear, told apart by suffix.
type EarPairMatcher struct {
	Family config.EarPair
	Rules  Rules
}

func (m EarPairMatcher) Name() string { return m.Family.Name }

func (m EarPairMatcher) Applies(s Session) bool { return !m.Rules.excluded(s.Condition) }

// Match requires the post-scan marker for the post-scan condition and its absence otherwise.
func (m EarPairMatcher) Match(s Session, idx *Index) Match {
	out := newMatch(m.Family.Name)
	if !m.Applies(s) {
		return out
	}
	post := s.Condition == m.Rules.PostScanCondition
	for _, side := range []Side{Right, Left} {
		suffix := m.Family.RightSuffix
		if side == Left {
			suffix = m.Family.LeftSuffix
		}
		out.resolve(Slot{Side: side}, candidates(idx, s, func(n string) bool {
			return m.Rules.hasPostMarker(n) == post && strings.HasSuffix(n, suffix)
		}))
	}
	return out
}

// GrowthPrePostMatcher expects every frequency for both ears of a pre/post-scan session.
type GrowthPrePostMatcher struct {
	Family config.GrowthFamily
	Rules  Rules
}

func (m GrowthPrePostMatcher) Name() string { return m.Family.Name }

func (m GrowthPrePostMatcher) marker(condition string) (string, bool) {
	for _, p := range m.Family.PrePost {
		if p.Condition == condition {
			return p.Marker, true
		}
	}
	return "", false
}

func (m GrowthPrePostMatcher) Applies(s Session) bool {
	if m.Rules.excluded(s.Condition) {
		return false
	}
	_, ok := m.marker(s.Condition)
	return ok
}

// Match assigns each candidate to the first configured frequency found in its
// name once the date is removed.
func (m GrowthPrePostMatcher) Match(s Session, idx *Index) Match {
	out := newMatch(m.Family.Name)
	if !m.Applies(s) {
		return out
	}
	marker, _ := m.marker(s.Condition)
	frequencyOf := func(name string) string {
		rest := strings.Replace(name, s.DateKey, "", 1)
		for _, f := range m.Family.Frequencies {
			if strings.Contains(rest, f) {
				return f
			}
		}
		return ""
	}
	for _, f := range m.Family.Frequencies {
		for _, side := range []Side{Right, Left} {
			suffix := m.Family.RightSuffix
			if side == Left {
				suffix = m.Family.LeftSuffix
			}
			out.resolve(Slot{Side: side, Frequency: f}, candidates(idx, s, func(n string) bool {
				return strings.Contains(n, marker) &&
					strings.HasSuffix(n, suffix) && frequencyOf(n) == f
			}))
		}
	}
	return out
}

// GrowthSingleMatcher expects one frequency for both ears, never from post-scan exports.
type GrowthSingleMatcher struct {
	Family config.GrowthFamily
	Rules  Rules
}

func (m GrowthSingleMatcher) Name() string { return m.Family.Name }

func (m GrowthSingleMatcher) Applies(s Session) bool {
	if m.Rules.excluded(s.Condition) {
		return false
	}
	for _, c := range m.Family.SingleConditions {
		if c == s.Condition {
			return true
		}
	}
	return false
}

func (m GrowthSingleMatcher) Match(s Session, idx *Index) Match {
	out := newMatch(m.Family.Name)
	if !m.Applies(s) {
		return out
	}
	f := m.Family.SingleFrequency
	for _, side := range []Side{Right, Left} {
		suffix := f + "_" + m.Family.RightSuffix
		if side == Left {
			suffix = f + "_" + m.Family.LeftSuffix
		}
		out.resolve(Slot{Side: side, Frequency: f}, candidates(idx, s, func(n string) bool {
			return !m.Rules.hasPostMarker(n) && strings.HasSuffix(n, suffix)
		}))
	}
	return out
}

// Family couples the matchers of one export family with its output fields.
type Family struct {
	Name     string
	Fields   []config.OAEField
	Matchers []Matcher
}

// FamiliesFromConfig returns the ear-pair families followed by the growth family.
func FamiliesFromConfig(c config.OAE) []Family {
	rules := RulesFromConfig(c)
	var out []Family
	for _, ep := range c.EarPairs {
		out = append(out, Family{
			Name:     ep.Name,
			Fields:   ep.Fields,
			Matchers: []Matcher{EarPairMatcher{Family: ep, Rules: rules}},
		})
	}
	if g := c.Growth; g.Name != "" {
		out = append(out, Family{
			Name:   g.Name,
			Fields: g.Fields,
			Matchers: []Matcher{
				GrowthPrePostMatcher{Family: g, Rules: rules},
				GrowthSingleMatcher{Family: g, Rules: rules},
			},
		})
	}
	return out
}

// Resolve runs the first applicable matcher of the family. ok is false when none applies.
func (f Family) Resolve(s Session, idx *Index) (Match, bool) {
	for _, m := range f.Matchers {
		if m.Applies(s) {
			return m.Match(s, idx), true
		}
	}
	return Match{Family: f.Name}, false
}
