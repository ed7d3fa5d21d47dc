package pipeline

import (
	"time"

	"github.com/dativo-io/nexus/internal/calibration"
	"github.com/dativo-io/nexus/internal/llm"
	"github.com/dativo-io/nexus/internal/memory"
)

// Defaults of Options.
const (
	DefaultGroundingRetries = 1
	DefaultRoutingWeight    = 0.7
	DefaultGroundingWeight  = 0.3
	DefaultAlertLatencyMS   = 5000
)

// Options tunes the pipeline. Non-positive sizes, thresholds, timeouts and
// weights select the defaults. GroundingRetries is taken as given: 0 means
// an ungrounded answer is not repaired, negative values count as 0. Start
// from DefaultOptions to keep one repair attempt.
type Options struct {
	MaxTurns               int
	SummaryChars           int
	ContextChars           int
	SnippetTopK            int
	GroundingRetries       int
	LowConfidenceThreshold float64
	RoutingWeight          float64
	GroundingWeight        float64
	CompletionTimeout      time.Duration
	AlertLatencyMS         int64
}

// DefaultOptions returns the built-in tuning.
func DefaultOptions() Options {
	return Options{
		MaxTurns:               memory.DefaultMaxTurns,
		SummaryChars:           memory.DefaultSummaryChars,
		ContextChars:           memory.DefaultContextChars,
		SnippetTopK:            memory.DefaultTopK,
		GroundingRetries:       DefaultGroundingRetries,
		LowConfidenceThreshold: calibration.DefaultThreshold,
		RoutingWeight:          DefaultRoutingWeight,
		GroundingWeight:        DefaultGroundingWeight,
		CompletionTimeout:      llm.TimeoutLLMCall,
		AlertLatencyMS:         DefaultAlertLatencyMS,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTurns <= 0 {
		o.MaxTurns = d.MaxTurns
	}
	if o.SummaryChars <= 0 {
		o.SummaryChars = d.SummaryChars
	}
	if o.ContextChars <= 0 {
		o.ContextChars = d.ContextChars
	}
	if o.SnippetTopK <= 0 {
		o.SnippetTopK = d.SnippetTopK
	}
	if o.GroundingRetries < 0 {
		o.GroundingRetries = 0
	}
	if o.LowConfidenceThreshold <= 0 {
		o.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if o.RoutingWeight <= 0 && o.GroundingWeight <= 0 {
		o.RoutingWeight, o.GroundingWeight = d.RoutingWeight, d.GroundingWeight
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = d.CompletionTimeout
	}
	if o.AlertLatencyMS <= 0 {
		o.AlertLatencyMS = d.AlertLatencyMS
	}
	return o
}
