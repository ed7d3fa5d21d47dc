package tools

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// DefaultMaxResultBytes caps tool results when the tenant sets no global cap.
const DefaultMaxResultBytes = 4096

const truncationOverhead = len(`{"truncated":true,"data":""}`)

// Truncated wraps a result that still exceeded the byte cap after trimming.
type Truncated struct {
	Truncated bool   `json:"truncated"`
	Data      string `json:"data"`
}

// TrimResult applies the tool's trim rule to a decoded JSON result: keep the
// first top_n rows, keep only whitelisted fields of object rows, then enforce
// min(tool max_bytes, global cap). Anything still too large is returned as a
// Truncated prefix of its JSON encoding.
func (r *Registry) TrimResult(tool string, result interface{}) interface{} {
	rule := r.index[tool].Trim
	maxBytes := r.maxBytes(tool)

	trimmed := result
	if rows, ok := trimmed.([]interface{}); ok {
		if rule.TopN > 0 && len(rows) > rule.TopN {
			rows = rows[:rule.TopN]
		}
		if len(rule.FieldWhitelist) > 0 {
			kept := make([]interface{}, 0, len(rows))
			for _, row := range rows {
				obj, ok := row.(map[string]interface{})
				if !ok {
					continue
				}
				filtered := make(map[string]interface{}, len(rule.FieldWhitelist))
				for _, f := range rule.FieldWhitelist {
					if v, ok := obj[f]; ok {
						filtered[f] = v
					}
				}
				kept = append(kept, filtered)
			}
			rows = kept
		}
		trimmed = rows
	}

	payload := encodeJSON(trimmed)
	if len(payload) <= maxBytes {
		return trimmed
	}
	keep := maxBytes - truncationOverhead
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(payload[keep]) {
		keep--
	}
	return Truncated{Truncated: true, Data: string(payload[:keep])}
}

// TrimText applies TrimResult to text holding a JSON result and re-encodes
// it. Any other text is cut to the byte cap on a rune boundary.
func (r *Registry) TrimText(tool, text string) string {
	var decoded interface{}
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return string(encodeJSON(r.TrimResult(tool, decoded)))
	}
	maxBytes := r.maxBytes(tool)
	if len(text) <= maxBytes {
		return text
	}
	keep := maxBytes
	for keep > 0 && !utf8.RuneStart(text[keep]) {
		keep--
	}
	return text[:keep]
}

// maxBytes is min(tool max_bytes, global cap).
func (r *Registry) maxBytes(tool string) int {
	globalCap := r.cfg.Global.MaxResultBytes
	if globalCap <= 0 {
		globalCap = DefaultMaxResultBytes
	}
	if mb := r.index[tool].Trim.MaxBytes; mb > 0 && mb < globalCap {
		return mb
	}
	return globalCap
}

func encodeJSON(v interface{}) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
