package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KaramelBytes/audiobids/internal/utils"
)

// Encode writes header and rows as tab-separated values.
func Encode(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTSV atomically replaces path with the encoded table.
func WriteTSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	if err := Encode(&buf, header, rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// ReadTSV reads a table previously written by WriteTSV.
func ReadTSV(path string) (*Table, error) {
	return ReadFile(path, Options{Delimiter: '\t'})
}
