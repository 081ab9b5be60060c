// Package subject canonicalises participant identifiers into BIDS labels.
package subject

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmpty is returned when an identifier has nothing left after canonicalisation.
var ErrEmpty = errors.New("subject id is empty after canonicalisation")

// ConflictError reports two distinct original identifiers sharing one canonical label.
type ConflictError struct {
	Canonical string
	First     string
	Second    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("BIDSified ID conflict: %q and %q both map to %q", e.First, e.Second, e.Canonical)
}

// Canonicalize strips whitespace, '-' and '_' and one leading "sub" token in any case.
func Canonicalize(original string) (string, error) {
	s := norm.NFC.String(original)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return r
	}, s)
	if len(s) >= 3 && strings.EqualFold(s[:3], "sub") {
		s = s[3:]
	}
	if s == "" {
		return "", fmt.Errorf("%q: %w", original, ErrEmpty)
	}
	return s, nil
}

// Label returns the BIDS directory label for a canonical id.
func Label(canonical string) string {
	return "sub-" + canonical
}

// Entry pairs an original identifier with its canonical form.
type Entry struct {
	Original  string
	Canonical string
}

// Registry tracks every canonicalised identifier of a run in registration order.
type Registry struct {
	entries []Entry
	owner   map[string]string // canonical -> original
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{owner: map[string]string{}}
}

// Register canonicalises original and records it. Registering the same original twice is a no-op.
func (r *Registry) Register(original string) (string, error) {
	c, err := Canonicalize(original)
	if err != nil {
		return "", err
	}
	if err := r.VerifyNoConflict(original, c); err != nil {
		return "", err
	}
	if _, ok := r.owner[c]; ok {
		return c, nil
	}
	r.owner[c] = original
	r.entries = append(r.entries, Entry{Original: original, Canonical: c})
	return c, nil
}

// VerifyNoConflict fails when canonical is already owned by an identifier other than original.
func (r *Registry) VerifyNoConflict(original, canonical string) error {
	if prev, ok := r.owner[canonical]; ok && prev != original {
		return &ConflictError{Canonical: canonical, First: prev, Second: original}
	}
	return nil
}

// Entries returns the registered pairs in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
