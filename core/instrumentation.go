package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-chat/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnsCounter, _ = meter.Int64Counter(
		"ema.turns",
		metric.WithDescription("Turns by final state"),
		metric.WithUnit("{turn}"),
	)
	roundsCounter, _ = meter.Int64Counter(
		"ema.rounds",
		metric.WithDescription("Inference rounds started"),
		metric.WithUnit("{round}"),
	)
	imagesDroppedCounter, _ = meter.Int64Counter(
		"ema.images_dropped",
		metric.WithDescription("Images rejected because they could not be decoded"),
		metric.WithUnit("{image}"),
	)
	turnDurationHistogram, _ = meter.Float64Histogram(
		"ema.turn.duration",
		metric.WithDescription("Wall time of a turn from start to its final state"),
		metric.WithUnit("s"),
	)
)
