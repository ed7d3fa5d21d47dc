package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/nexus/internal/llm"

var (
	costRequestHistogram metric.Float64Histogram
	fallbackCounter      metric.Int64Counter
	metricsOnce          sync.Once
	metricsRegistered    bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	costRequestHistogram, err = meter.Float64Histogram(
		"nexus.llm.cost",
		metric.WithDescription("Cost in USD per completion"),
		metric.WithUnit("usd"),
	)
	if err != nil {
		return
	}
	fallbackCounter, err = meter.Int64Counter(
		"nexus.llm.fallbacks",
		metric.WithDescription("Completions replaced by the canned fallback"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// RecordCostMetrics records the cost of one completion.
func RecordCostMetrics(ctx context.Context, costUSD float64, provider, model string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	costRequestHistogram.Record(ctx, costUSD, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}

func recordFallback(ctx context.Context, reason string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
