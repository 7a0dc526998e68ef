package censo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/censo/verifier"
)

// Metrics tracks verification outcomes, latency and pool pressure.
type Metrics struct {
	Verifications *prometheus.CounterVec
	Duration      prometheus.Histogram
	CacheHits     prometheus.Counter
	LeasesInUse   prometheus.Gauge
	GuardOpen     prometheus.Gauge
}

// NewMetrics registers the censo metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "censo_verifications_total",
			Help: "Total verifications by outcome kind",
		}, []string{"kind"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "censo_verification_duration_seconds",
			Help:    "Duration of browser-driven verifications",
			Buckets: []float64{0.5, 1, 2.5, 5, 7.5, 10, 15, 20, 30, 45, 60},
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "censo_cache_hits_total",
			Help: "Verifications answered from a recent authoritative record",
		}),
		LeasesInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "censo_leases_in_use",
			Help: "Browser sessions currently leased",
		}),
		GuardOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "censo_site_guard_open",
			Help: "1 while lookups are suspended after repeated blocked or timed-out answers",
		}),
	}
}

// ObserveVerification records one browser-driven verification.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerification(kind verifier.Kind, start time.Time) {
	m.Verifications.WithLabelValues(string(kind)).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}
