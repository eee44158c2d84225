// Package metrics holds the engine's Prometheus collectors. Each engine
// instance owns a private registry (see NewRegistry) rather than registering
// against the global default, so tests and multiple Engine instances in the
// same process never collide on metric names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the collectors an Engine run updates. The zero value is
// not usable; construct with NewRegistry.
type Registry struct {
	reg *prometheus.Registry

	AttemptsTotal        *prometheus.CounterVec
	CalibrationRTTMs      prometheus.Histogram
	CalibrationAccuracyMs prometheus.Gauge
	FiringErrorMs         prometheus.Histogram
}

// NewRegistry builds a Registry with all collectors registered against a
// fresh prometheus.Registry, keyed by run ID so a façade embedding several
// concurrent engines (or a test harness running many runs back to back)
// never trips a duplicate-registration panic.
func NewRegistry(runID string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "autoreg",
			Name:        "attempts_total",
			Help:        "Per-CRN status changes observed during registration attempts, partitioned by CRN and status.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"crn", "status"}),
		CalibrationRTTMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "autoreg",
			Name:        "calibration_rtt_ms",
			Help:        "Round-trip time of the best sample in each calibration result, in milliseconds.",
			ConstLabels: prometheus.Labels{"run_id": runID},
			Buckets:     []float64{5, 10, 20, 35, 50, 75, 100, 150, 250, 500},
		}),
		CalibrationAccuracyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "autoreg",
			Name:        "calibration_accuracy_ms",
			Help:        "Estimated accuracy (half the best sample's RTT) of the active clock offset, in milliseconds.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
		FiringErrorMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "autoreg",
			Name:        "firing_error_ms",
			Help:        "Signed difference between the actual and intended firing instant, in milliseconds.",
			ConstLabels: prometheus.Labels{"run_id": runID},
			Buckets:     []float64{-50, -20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20, 50},
		}),
	}

	reg.MustRegister(r.AttemptsTotal, r.CalibrationRTTMs, r.CalibrationAccuracyMs, r.FiringErrorMs)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer so a hosting façade
// can mount it under its own /metrics handler without this package ever
// importing net/http itself.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
