package chat

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-coach/pkg/chat"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	requestFailures, _ = meter.Int64Counter("chat.request.failures")
)
