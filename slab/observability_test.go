package slab

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestCollectorDescribesAndCollectsWithoutRegistration confirms Collector
// returns a usable prometheus.Collector even though this package never
// registers it itself — the embedding application decides whether and
// where to register it.
func TestCollectorDescribesAndCollectsWithoutRegistration(t *testing.T) {
	c := Collector()
	require.NotNil(t, c)

	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)
	require.NotEmpty(t, descs)

	a := New[concurrencyElem](concurrencyTestConfig(), nil, nil)
	h := a.Bind()
	a.Allocate(h, 1)

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)
	require.NotEmpty(t, metrics, "an Allocator built with a nil *obs.Metrics must report through the package-level Collector")
}

func TestSetLoggerAndTracerReplaceDefaultsWithoutPanicking(t *testing.T) {
	defer SetLogger(nil)
	defer Tracer(nil)

	SetLogger(zap.NewNop())
	Tracer(nil)

	a := New[concurrencyElem](concurrencyTestConfig(), nil, nil)
	h := a.Bind()
	p := a.Allocate(h, 1)
	a.Deallocate(h, p, 1)
}
