// Package metrics registers the Prometheus instruments the prescription
// lifecycle exposes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	PrescriptionsCreated   prometheus.Counter
	PrescriptionsDispensed prometheus.Counter
	DispenseConflicts      prometheus.Counter
	ArtifactFailures       prometheus.Counter
	RequestDuration        *prometheus.HistogramVec
}

// New creates and registers the metrics on the default registry. Tests use
// NewWith with a fresh registry to avoid double registration.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all metrics on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		PrescriptionsDispensed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_dispensed_total",
			Help: "Total prescriptions dispensed",
		}),
		DispenseConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_dispense_conflicts_total",
			Help: "Dispense attempts rejected because the prescription was already dispensed",
		}),
		ArtifactFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scan_artifact_failures_total",
			Help: "Scan artifact encoding failures",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.PrescriptionsCreated,
		m.PrescriptionsDispensed,
		m.DispenseConflicts,
		m.ArtifactFailures,
		m.RequestDuration,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
