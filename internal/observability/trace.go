package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/moveatlas/moveatlas-backend"

func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a named span with optional string attributes given as
// alternating key/value pairs. When tracing is disabled the global
// provider hands back a no-op span, so call sites stay unconditional.
func StartSpan(ctx context.Context, name string, kvs ...string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		attrs = append(attrs, attribute.String(kvs[i], kvs[i+1]))
	}
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
