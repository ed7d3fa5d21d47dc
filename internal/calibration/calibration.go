// Package calibration recommends a low-confidence escalation threshold from
// reviewed decision records.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dativo-io/nexus/internal/audit"
)

// DefaultThreshold is the escalation threshold used when none is given.
const DefaultThreshold = 0.35

const (
	step         = 0.01
	minThreshold = 0.1
	maxThreshold = 0.9
)

// Sample is one reviewed decision. Empty intents mean "unknown".
type Sample struct {
	ExpectedIntent  string  `json:"expected_intent"`
	PredictedIntent string  `json:"predicted_intent"`
	Escalated       bool    `json:"escalated"`
	Confidence      float64 `json:"confidence"`
}

// UnmarshalJSON accepts "escalated" as a bool, a number, or one of the
// strings "1", "true", "yes" (case-insensitive); null intents are unknown.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw struct {
		ExpectedIntent  *string         `json:"expected_intent"`
		PredictedIntent *string         `json:"predicted_intent"`
		Escalated       json.RawMessage `json:"escalated"`
		Confidence      *float64        `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Sample{}
	if raw.ExpectedIntent != nil {
		s.ExpectedIntent = *raw.ExpectedIntent
	}
	if raw.PredictedIntent != nil {
		s.PredictedIntent = *raw.PredictedIntent
	}
	if raw.Confidence != nil {
		s.Confidence = *raw.Confidence
	}
	s.Escalated = parseFlag(raw.Escalated)
	return nil
}

func parseFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "1", "true", "yes":
			return true
		}
	}
	return false
}

// FromRecord converts a decision record.
func FromRecord(r audit.DecisionRecord) Sample {
	return Sample{
		ExpectedIntent:  r.ExpectedIntent,
		PredictedIntent: r.PredictedIntent,
		Escalated:       r.Escalated,
		Confidence:      r.Confidence,
	}
}

// Report is the result of Analyze.
type Report struct {
	Total                       int     `json:"total"`
	FalseEscalations            int     `json:"false_escalations"`
	FalsePasses                 int     `json:"false_passes"`
	CurrentLowConfThreshold     float64 `json:"current_low_conf_threshold"`
	RecommendedLowConfThreshold float64 `json:"recommended_low_conf_threshold"`
}

// Analyze counts false escalations (escalated although the prediction was
// right and confident) and false passes (not escalated although it was wrong
// and unconfident), then shifts the threshold by 0.01 per unit of
// false_passes - false_escalations, clamped to [0.1, 0.9] and rounded to 3
// decimals. A prediction is wrong only when both intents are known and
// differ.
func Analyze(samples []Sample, threshold float64) Report {
	r := Report{Total: len(samples), CurrentLowConfThreshold: threshold}
	for _, s := range samples {
		wrong := s.ExpectedIntent != "" && s.PredictedIntent != "" && s.ExpectedIntent != s.PredictedIntent
		if s.Escalated && !wrong && s.Confidence >= threshold {
			r.FalseEscalations++
		}
		if !s.Escalated && wrong && s.Confidence < threshold {
			r.FalsePasses++
		}
	}
	rec := threshold + float64(r.FalsePasses-r.FalseEscalations)*step
	rec = math.Max(minThreshold, math.Min(maxThreshold, rec))
	r.RecommendedLowConfThreshold = math.Round(rec*1000) / 1000
	return r
}

// LoadSamples reads a JSON array of decision rows.
func LoadSamples(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading decisions %s: %w", path, err)
	}
	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("input must be a JSON list of decision rows: %w", err)
	}
	return samples, nil
}

// String renders the one-line summary printed by the CLI.
func (r Report) String() string {
	return "False escalations: " + strconv.Itoa(r.FalseEscalations) +
		", false passes: " + strconv.Itoa(r.FalsePasses) +
		", recommended threshold: " + strconv.FormatFloat(r.RecommendedLowConfThreshold, 'f', -1, 64)
}
