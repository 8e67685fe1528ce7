package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges a status endpoint or Prometheus
// scrape reads. Every field is safe for concurrent Inc/Set from the
// ingest goroutine while being read by a scrape goroutine; a scrape may
// observe slightly stale values.
type Metrics struct {
	MessagesReceived prometheus.Counter
	OrdersProcessed  prometheus.Counter
	ToleratedDrops   prometheus.Counter
	SessionsFailed   prometheus.Counter
	RingDepth        prometheus.Gauge
}

// NewMetrics constructs and registers the ingest metrics against reg.
// Passing a fresh *prometheus.Registry per process (rather than the
// global default registry) keeps a test's metrics isolated from any
// other test running in the same binary.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mbo_ingest",
			Name:      "messages_received_total",
			Help:      "MBO wire records decoded.",
		}),
		OrdersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mbo_ingest",
			Name:      "orders_processed_total",
			Help:      "Non-TOB Add events applied to a book.",
		}),
		ToleratedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mbo_ingest",
			Name:      "tolerated_drops_total",
			Help:      "Book-inconsistency events discarded without failing the session.",
		}),
		SessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mbo_ingest",
			Name:      "sessions_failed_total",
			Help:      "Sessions that ended in status=error.",
		}),
		RingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mbo_ingest",
			Name:      "ring_buffer_depth",
			Help:      "Current occupancy of the snapshot ring buffer.",
		}),
	}
	reg.MustRegister(m.MessagesReceived, m.OrdersProcessed, m.ToleratedDrops, m.SessionsFailed, m.RingDepth)
	return m
}
