// Package sidecar generates the JSON descriptions that accompany the dataset tables.
package sidecar

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/audiobids/internal/utils"
)

//go:embed sidecars.yaml
var definitionsYAML []byte

// SessionsFile is the name of the sessions table description.
const SessionsFile = "sessions.json"

// Level is one allowed value of a categorical column.
type Level struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Levels keeps its declaration order when rendered as a JSON object.
type Levels []Level

// MarshalJSON renders the levels as an ordered object.
func (l Levels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lv := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(lv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(lv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Column describes one table column.
type Column struct {
	Key         string `yaml:"key" json:"-"`
	LongName    string `yaml:"long_name" json:"LongName,omitempty"`
	Description string `yaml:"description" json:"Description,omitempty"`
	Levels      Levels `yaml:"levels" json:"Levels,omitempty"`
	Units       string `yaml:"units" json:"Units,omitempty"`
}

// Sidecar is the description of one table, keyed by column in column order.
type Sidecar struct {
	Name    string
	Columns []Column
}

// MarshalJSON renders the columns as an ordered object.
func (s Sidecar) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range s.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FileName is the file the sidecar is written to.
func (s Sidecar) FileName() string {
	if s.Name == "sessions" {
		return SessionsFile
	}
	return "task-" + s.Name + "_beh.json"
}

type definitions struct {
	Tasks []struct {
		Name    string   `yaml:"name"`
		Columns []Column `yaml:"columns"`
		Extra   []Column `yaml:"extra"`
	} `yaml:"tasks"`
	Sessions []Column `yaml:"sessions"`
}

// Definitions returns every sidecar, tasks first and the sessions description last.
func Definitions() ([]Sidecar, error) {
	var d definitions
	if err := yaml.Unmarshal(definitionsYAML, &d); err != nil {
		return nil, fmt.Errorf("parse sidecar definitions: %w", err)
	}
	out := make([]Sidecar, 0, len(d.Tasks)+1)
	for _, t := range d.Tasks {
		cols := append(append([]Column(nil), t.Columns...), t.Extra...)
		out = append(out, Sidecar{Name: t.Name, Columns: cols})
	}
	out = append(out, Sidecar{Name: "sessions", Columns: d.Sessions})
	return out, nil
}

// FileNames lists the files Generate writes.
func FileNames() ([]string, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, s := range defs {
		names[i] = s.FileName()
	}
	return names, nil
}

// Generate writes every sidecar into dir.
func Generate(dir string) ([]string, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(defs))
	for _, s := range defs {
		b, err := utils.PrettyJSON(s)
		if err != nil {
			return nil, fmt.Errorf("sidecar %s: %w", s.Name, err)
		}
		p := filepath.Join(dir, s.FileName())
		if err := utils.SafeWriteFile(p, b); err != nil {
			return nil, fmt.Errorf("sidecar %s: %w", s.Name, err)
		}
		written = append(written, p)
	}
	return written, nil
}

// Ensure generates the originals when any of them is missing. It reports whether
// files were written.
func Ensure(dir string) (bool, error) {
	names, err := FileNames()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if !utils.FileExists(filepath.Join(dir, n)) {
			_, err := Generate(dir)
			return err == nil, err
		}
	}
	return false, nil
}

// Install copies the originals into the dataset root.
func Install(originals, datasetRoot string) error {
	names, err := FileNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := utils.CopyFile(filepath.Join(originals, n), filepath.Join(datasetRoot, n)); err != nil {
			return fmt.Errorf("install sidecar: %w", err)
		}
	}
	return nil
}
