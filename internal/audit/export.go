package audit

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON writes records as an indented JSON array, the input format of
// the calibration report.
func WriteJSON(w io.Writer, records []DecisionRecord) error {
	if records == nil {
		records = []DecisionRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding decisions: %w", err)
	}
	return nil
}
