package tools

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-chat/core/tools"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	toolCallsCounter, _ = meter.Int64Counter(
		"ema.tool_calls",
		metric.WithDescription("Tool executions by outcome"),
		metric.WithUnit("{call}"),
	)
	truncationsCounter, _ = meter.Int64Counter(
		"ema.tool_output_truncations",
		metric.WithDescription("Tool outputs cut to the output limit"),
		metric.WithUnit("{call}"),
	)
)
