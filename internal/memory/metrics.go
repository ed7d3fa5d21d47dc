package memory

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/nexus/internal/memory")

var (
	turnWrites      metric.Int64Counter
	snippetSearches metric.Int64Counter
)

func init() {
	var err error
	turnWrites, err = meter.Int64Counter("memory.turns.writes",
		metric.WithDescription("Conversation turns appended"))
	if err != nil {
		turnWrites, _ = meter.Int64Counter("memory.turns.writes.fallback")
	}

	snippetSearches, err = meter.Int64Counter("memory.snippets.searches",
		metric.WithDescription("Snippet index searches"))
	if err != nil {
		snippetSearches, _ = meter.Int64Counter("memory.snippets.searches.fallback")
	}
}
