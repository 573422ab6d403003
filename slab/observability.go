package slab

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maxcarlson/slabmulti/internal/obs"
)

// defaultMetrics is the Collector every Allocator built without its own
// explicit *obs.Metrics reports through. It is never registered against
// any Registerer by this package; the embedding application decides
// whether and where to register the value Collector returns.
var defaultMetrics = obs.NewMetrics(nil, "default")

var (
	defaultObsMu  sync.RWMutex
	defaultLogger = zap.NewNop()
	defaultTracer = otel.Tracer("slabmulti")
)

// SetLogger replaces the package-level structured logger every Allocator
// built with a nil Observer falls back to. It has no effect on an
// Allocator constructed with its own explicit *obs.Observer. Passing nil
// restores the silent default.
func SetLogger(l *zap.Logger) {
	defaultObsMu.Lock()
	defer defaultObsMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger = l
}

// Tracer replaces the package-level tracer every Allocator built with a
// nil Observer falls back to, the same opt-in point for trace export
// abiolaogu-MinIO's internal/tracing package offers. Passing nil restores
// otel.Tracer("slabmulti"), which resolves to a no-op tracer until the
// embedding application configures a TracerProvider.
func Tracer(t trace.Tracer) {
	defaultObsMu.Lock()
	defer defaultObsMu.Unlock()
	if t == nil {
		t = otel.Tracer("slabmulti")
	}
	defaultTracer = t
}

func defaultObserver() *obs.Observer {
	defaultObsMu.RLock()
	defer defaultObsMu.RUnlock()
	return obs.NewObserver(defaultLogger, defaultTracer)
}

// Collector exposes the package-level metrics bundle as a
// prometheus.Collector. Every Allocator constructed with a nil *obs.Metrics
// reports through this same bundle; an Allocator given its own explicit
// *obs.Metrics reports through that one instead, invisible to this
// Collector.
func Collector() prometheus.Collector {
	return defaultMetrics
}
