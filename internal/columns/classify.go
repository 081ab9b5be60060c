// Package columns groups wide database columns by instrument and side.
package columns

import (
	"strings"

	"github.com/KaramelBytes/audiobids/internal/config"
)

// Match kinds.
const (
	MatchPrefix = "prefix"
	MatchSuffix = "suffix"
)

// Rule assigns a column to an instrument side when its name carries Pattern.
type Rule struct {
	Match      string
	Pattern    string
	Instrument string
	Side       int // 0 right or first channel, 1 left or second channel
}

func (r Rule) matches(name string) bool {
	switch r.Match {
	case MatchPrefix:
		return strings.HasPrefix(name, r.Pattern)
	case MatchSuffix:
		return strings.HasSuffix(name, r.Pattern)
	}
	return false
}

// RulesFromConfig converts configured rules, keeping their priority order.
func RulesFromConfig(in []config.ColumnRule) []Rule {
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = Rule{Match: r.Match, Pattern: r.Pattern, Instrument: r.Instrument, Side: r.Side}
	}
	return out
}

// Pair holds the columns of one instrument split by side, in database order.
type Pair struct {
	Right []string
	Left  []string
}

// Side returns the columns of side 0 or 1.
func (p Pair) Side(i int) []string {
	if i == 0 {
		return p.Right
	}
	return p.Left
}

// Groups maps instruments to their column pairs.
type Groups struct {
	groups map[string]Pair
	order  []string
}

// Classify assigns each column to the first rule it matches. Unmatched columns are left out.
func Classify(names []string, rules []Rule) Groups {
	g := Groups{groups: map[string]Pair{}}
	for _, name := range names {
		for _, r := range rules {
			if !r.matches(name) {
				continue
			}
			p, seen := g.groups[r.Instrument]
			if !seen {
				g.order = append(g.order, r.Instrument)
			}
			if r.Side == 0 {
				p.Right = append(p.Right, name)
			} else {
				p.Left = append(p.Left, name)
			}
			g.groups[r.Instrument] = p
			break
		}
	}
	return g
}

// Get returns a copy of the instrument's columns.
func (g Groups) Get(instrument string) (Pair, bool) {
	p, ok := g.groups[instrument]
	if !ok {
		return Pair{}, false
	}
	return Pair{Right: append([]string(nil), p.Right...), Left: append([]string(nil), p.Left...)}, true
}

// Instruments lists classified instruments in first-seen column order.
func (g Groups) Instruments() []string {
	return append([]string(nil), g.order...)
}

// Classified reports whether name belongs to any group.
func (g Groups) Classified(name string) bool {
	for _, p := range g.groups {
		for _, c := range p.Right {
			if c == name {
				return true
			}
		}
		for _, c := range p.Left {
			if c == name {
				return true
			}
		}
	}
	return false
}
