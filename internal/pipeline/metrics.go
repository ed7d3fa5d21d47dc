package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/nexus/internal/pipeline")

var (
	decisions   metric.Int64Counter
	escalations metric.Int64Counter
)

func init() {
	var err error
	decisions, err = meter.Int64Counter("pipeline.decisions",
		metric.WithDescription("Processed messages by routing source"))
	if err != nil {
		decisions, _ = meter.Int64Counter("pipeline.decisions.fallback")
	}
	escalations, err = meter.Int64Counter("pipeline.escalations",
		metric.WithDescription("Decisions below the low-confidence threshold"))
	if err != nil {
		escalations, _ = meter.Int64Counter("pipeline.escalations.fallback")
	}
}
