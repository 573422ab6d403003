package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors an Allocator reports through.
// Modeled on loki's pkg/util/mempool metrics: a handful of label-less
// counters/gauges registered once against a caller-supplied Registerer,
// rather than this package owning a global registry.
type Metrics struct {
	superblocks      prometheus.Gauge
	allocations      prometheus.Counter
	deallocations    prometheus.Counter
	foreignDeallocs  prometheus.Counter
	outOfMemoryTotal prometheus.Counter
}

// NewMetrics registers and returns a Metrics bundle under namespace name.
// A nil Registerer is valid: every collector is still created but never
// registered, so an Allocator built without a Prometheus registry can
// still call the Metrics methods safely.
func NewMetrics(r prometheus.Registerer, name string) *Metrics {
	m := &Metrics{
		superblocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slab",
			Subsystem: name,
			Name:      "superblocks",
			Help:      "Number of superblocks currently owned by the allocator's dispatcher.",
		}),
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slab",
			Subsystem: name,
			Name:      "allocations_total",
			Help:      "Total number of successful allocations.",
		}),
		deallocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slab",
			Subsystem: name,
			Name:      "deallocations_total",
			Help:      "Total number of successful deallocations, local or foreign.",
		}),
		foreignDeallocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slab",
			Subsystem: name,
			Name:      "foreign_deallocations_total",
			Help:      "Total number of deallocations routed through the foreign-deallocation registry.",
		}),
		outOfMemoryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slab",
			Subsystem: name,
			Name:      "out_of_memory_total",
			Help:      "Total number of allocations that failed because the system allocator refused a superblock.",
		}),
	}
	if r != nil {
		r.MustRegister(m.superblocks, m.allocations, m.deallocations, m.foreignDeallocs, m.outOfMemoryTotal)
	}
	return m
}

func (m *Metrics) SetSuperblocks(n int) {
	if m == nil {
		return
	}
	m.superblocks.Set(float64(n))
}

func (m *Metrics) IncAllocations() {
	if m == nil {
		return
	}
	m.allocations.Inc()
}

func (m *Metrics) IncDeallocations() {
	if m == nil {
		return
	}
	m.deallocations.Inc()
}

func (m *Metrics) IncForeignDeallocs() {
	if m == nil {
		return
	}
	m.foreignDeallocs.Inc()
}

func (m *Metrics) IncOutOfMemory() {
	if m == nil {
		return
	}
	m.outOfMemoryTotal.Inc()
}

// Describe and Collect make *Metrics itself a prometheus.Collector, so it
// can be registered directly against any Registerer the embedding
// application chooses, rather than only the one (if any) passed to
// NewMetrics.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	if m == nil {
		return
	}
	m.superblocks.Describe(ch)
	m.allocations.Describe(ch)
	m.deallocations.Describe(ch)
	m.foreignDeallocs.Describe(ch)
	m.outOfMemoryTotal.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	if m == nil {
		return
	}
	m.superblocks.Collect(ch)
	m.allocations.Collect(ch)
	m.deallocations.Collect(ch)
	m.foreignDeallocs.Collect(ch)
	m.outOfMemoryTotal.Collect(ch)
}
