package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
)

// ExportJSON renders entries as an indented JSON array with full fields,
// hashes included, so an export can be re-verified offline.
func ExportJSON(entries []*Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: export json: %w", err)
	}
	return data, nil
}

// ExportCSV renders a flat summary view. Hashes are omitted; CSV is for
// reading, JSON is for verification.
func ExportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "event_type", "action", "user_id", "success", "description"}); err != nil {
		return nil, fmt.Errorf("audit: export csv: %w", err)
	}
	for _, e := range entries {
		success := "true"
		if !e.Success {
			success = "false"
		}
		if err := w.Write([]string{e.Timestamp, string(e.EventType), e.Action, e.UserID, success, e.Description}); err != nil {
			return nil, fmt.Errorf("audit: export csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: export csv: %w", err)
	}
	return buf.Bytes(), nil
}
