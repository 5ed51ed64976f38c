package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the package-level, pre-configured zerolog instance used by
// every package in this module.
var Logger zerolog.Logger

func init() {
	// Give callers that never invoke Init a usable logger instead of the
	// zero-value zerolog.Logger (which discards everything).
	Init("zkdistributed")
}

// Init (re)configures the global Logger with a service name field. Call it
// once from a program's main before using anything in this module.
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.TimestampFieldName = "ts"

	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service_name", serviceName).
		Logger()
}

// Ctx returns a sub-logger enriched with the trace/span id of the active
// OpenTelemetry span in ctx, if any. Lock and election operations log
// through this so the acquisition/vote trail can be correlated with traces.
func Ctx(ctx context.Context) *zerolog.Logger {
	log := Logger

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		log = log.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}
	return &log
}
