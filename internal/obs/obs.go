// Package obs wires the allocator's ambient observability: structured
// logging and tracing, kept separate from slab so that package can stay
// free of any particular logging/tracing backend beyond the narrow
// Observer interface it accepts.
//
// Grounded on abiolaogu-MinIO's internal/tracing package for the overall
// shape (a small init/get surface around an otel tracer) but without that
// package's Jaeger exporter wiring, since nothing in this module's
// dependency set pulls in a trace backend; callers that want traces
// exported somewhere real construct their own TracerProvider and pass its
// Tracer in via NewObserver.
package obs

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Observer bundles the logger and tracer an Allocator reports through.
// A zero-value Observer is usable: Logger returns zap.NewNop() and Tracer
// returns the otel no-op tracer, so an allocator built without explicit
// observability wiring never has to nil-check before logging.
type Observer struct {
	log    *zap.Logger
	tracer trace.Tracer
}

// NewObserver builds an Observer from an already-configured logger and
// tracer. Either may be nil; nil falls back to a no-op implementation.
func NewObserver(log *zap.Logger, tracer trace.Tracer) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("")
	}
	return &Observer{log: log, tracer: tracer}
}

// Logger returns the wrapped zap logger, never nil.
func (o *Observer) Logger() *zap.Logger {
	if o == nil || o.log == nil {
		return zap.NewNop()
	}
	return o.log
}

// Tracer returns the wrapped otel tracer, never nil.
func (o *Observer) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return trace.NewNoopTracerProvider().Tracer("")
	}
	return o.tracer
}
