// Package oae links otoacoustic emission exports to database sessions.
//
// Exports live in one flat directory and carry no structured metadata other
// than their filenames, which by convention start with the participant id and
// contain the session date, an optional pre/post-scan marker, a frequency for
// growth tests and an ear-specific suffix. Matching uses substring, prefix and
// suffix tests only; names are never split and validated.
//
// Three families are supported. Ear pairs (TEOAE, DPOAE) expect one file per
// ear. The growth family expects either all six files of a pre/post-scan
// session (three frequencies, two ears) or the two files of a single-frequency
// session. When more than one filename fits a slot, the lexicographically
// first one is used and the match reports the ambiguity so callers can log it.
package oae
