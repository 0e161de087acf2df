package tts

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/teslashibe/go-coach/pkg/tts"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	synthFailures, _     = meter.Int64Counter("tts.synthesis.failures")
	chunksSynthesized, _ = meter.Int64Counter("tts.chunks.synthesized")
	fallbacks, _         = meter.Int64Counter("tts.chain.fallbacks")
)
