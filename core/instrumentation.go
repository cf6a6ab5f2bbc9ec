package transcript

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-transcript/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

type sessionMetrics struct {
	recordedExchanges    metric.Int64Counter
	suppressedDuplicates metric.Int64Counter
	rejectedEvents       metric.Int64Counter
	checkpointWrites     metric.Int64Counter
	checkpointFailures   metric.Int64Counter
	checkpointDuration   metric.Float64Histogram
}

func newSessionMetrics() sessionMetrics {
	// Instrument constructors always return a usable instrument, the error
	// only reports an invalid configuration.
	recordedExchanges, _ := meter.Int64Counter("transcript.exchanges.recorded",
		metric.WithDescription("Exchanges appended to the chronological store"))
	suppressedDuplicates, _ := meter.Int64Counter("transcript.exchanges.duplicates",
		metric.WithDescription("Agent exchanges suppressed as exact duplicates"))
	rejectedEvents, _ := meter.Int64Counter("transcript.events.rejected",
		metric.WithDescription("Events dropped as malformed or unrecoverable"))
	checkpointWrites, _ := meter.Int64Counter("transcript.checkpoint.writes",
		metric.WithDescription("Conversation documents written to the store"))
	checkpointFailures, _ := meter.Int64Counter("transcript.checkpoint.failures",
		metric.WithDescription("Conversation document writes that failed"))
	checkpointDuration, _ := meter.Float64Histogram("transcript.checkpoint.duration",
		metric.WithDescription("Time spent writing a conversation document"),
		metric.WithUnit("s"))

	return sessionMetrics{
		recordedExchanges:    recordedExchanges,
		suppressedDuplicates: suppressedDuplicates,
		rejectedEvents:       rejectedEvents,
		checkpointWrites:     checkpointWrites,
		checkpointFailures:   checkpointFailures,
		checkpointDuration:   checkpointDuration,
	}
}
