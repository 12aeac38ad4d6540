package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger submissions.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	ConfirmationWait prometheus.Histogram
	SignerLockWait   prometheus.Histogram
	BreakerOpen      prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_ledger_submissions_total",
			Help: "Ledger transactions by method and outcome",
		}, []string{"method", "outcome"}),
		ConfirmationWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ekyc_ledger_confirmation_seconds",
			Help:    "Time from broadcast to observed inclusion",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		SignerLockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ekyc_ledger_signer_lock_wait_seconds",
			Help:    "Time spent waiting for the per-key submission lock",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ekyc_ledger_breaker_open",
			Help: "1 while the ledger circuit breaker is open",
		}),
	}
}

func (m *Metrics) observeOutcome(method, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeConfirmation(seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmationWait.Observe(seconds)
}

func (m *Metrics) observeLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.SignerLockWait.Observe(seconds)
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
