package oae

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Index is the sorted list of export filenames of one directory.
type Index struct {
	Dir   string
	names []string
	// disk maps normalised names back to on-disk names.
	disk map[string]string
}

// ScanDir lists the regular files of dir.
func ScanDir(dir string) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read oae dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	idx := NewIndex(names)
	idx.Dir = dir
	return idx, nil
}

// NewIndex builds an index over names. Names are NFC-normalised for matching.
func NewIndex(names []string) *Index {
	idx := &Index{disk: map[string]string{}}
	for _, n := range names {
		nn := norm.NFC.String(n)
		idx.disk[nn] = n
		idx.names = append(idx.names, nn)
	}
	sort.Strings(idx.names)
	return idx
}

// Names returns the indexed names in sorted order.
func (x *Index) Names() []string {
	return append([]string(nil), x.names...)
}

// Path returns the on-disk path of an indexed name.
func (x *Index) Path(name string) string {
	if n, ok := x.disk[name]; ok {
		name = n
	}
	return filepath.Join(x.Dir, name)
}

// Len returns the number of indexed files.
func (x *Index) Len() int { return len(x.names) }

func (x *Index) filter(keep func(name string) bool) []string {
	var out []string
	for _, n := range x.names {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
