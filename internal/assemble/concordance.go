package assemble

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"

	"github.com/KaramelBytes/audiobids/internal/subject"
	"github.com/KaramelBytes/audiobids/internal/utils"
)

type concordanceRow struct {
	Original      string `csv:"original_id"`
	ParticipantID string `csv:"participant_id"`
}

// WriteConcordance saves the original-to-dataset identifier table in registration order.
func WriteConcordance(path string, entries []subject.Entry) error {
	rows := make([]concordanceRow, len(entries))
	for i, e := range entries {
		rows[i] = concordanceRow{Original: e.Original, ParticipantID: subject.Label(e.Canonical)}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		return fmt.Errorf("encode concordance: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}
