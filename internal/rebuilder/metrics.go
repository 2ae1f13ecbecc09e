package rebuilder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a rebuilder.
type Metrics struct {
	TasksTotal   *prometheus.CounterVec // zblob_rebuild_tasks_total{outcome}
	BytesTotal   prometheus.Counter     // zblob_rebuild_bytes_total
	TaskDuration prometheus.Histogram   // zblob_rebuild_task_duration_seconds
	InFlight     prometheus.Gauge       // zblob_rebuild_tasks_in_flight
}

// NewMetrics registers the rebuilder metrics. A nil registry means the
// default one.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zblob_rebuild_tasks_total",
			Help: "Rebuild tasks processed, by outcome",
		}, []string{"outcome"}),

		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "zblob_rebuild_bytes_total",
			Help: "Bytes written by chunk rebuilds",
		}),

		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zblob_rebuild_task_duration_seconds",
			Help:    "Rebuild task duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zblob_rebuild_tasks_in_flight",
			Help: "Rebuild tasks currently being processed",
		}),
	}
}

func (m *Metrics) observe(r Result) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(r.Outcome).Inc()
	m.BytesTotal.Add(float64(r.Bytes))
	m.TaskDuration.Observe(r.Duration.Seconds())
}
