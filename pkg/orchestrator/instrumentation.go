package orchestrator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/teslashibe/go-coach/pkg/orchestrator"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	turnsProcessed, _    = meter.Int64Counter("orchestrator.turns.processed")
	recognitionErrors, _ = meter.Int64Counter("orchestrator.recognition.errors")
	retriesScheduled, _  = meter.Int64Counter("orchestrator.retries.scheduled")
)

func metricReason(reason string) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", reason))
}

func metricKind(kind string) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}
