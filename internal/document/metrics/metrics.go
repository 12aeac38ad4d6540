package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the document lifecycle.
type Metrics struct {
	DocumentsUploaded   *prometheus.CounterVec
	UploadFailures      *prometheus.CounterVec
	AnchorAdvisories    *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	VerificationRolled  *prometheus.CounterVec
	RollbackFailures    prometheus.Counter
	AnchorsBackfilled   prometheus.Counter
	VerifyReconciled    prometheus.Counter
	NotificationsFailed prometheus.Counter
	VerifyLatency       prometheus.Histogram
}

// New registers and returns document metrics collectors.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers collectors on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsUploaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_documents_uploaded_total",
			Help: "Total number of documents uploaded, labeled by document type",
		}, []string{"document_type"}),
		UploadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_document_upload_failures_total",
			Help: "Total number of uploads that failed before a record was created, labeled by error code",
		}, []string{"code"}),
		AnchorAdvisories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_document_anchor_advisories_total",
			Help: "Uploads that succeeded without a recorded ledger anchor, labeled by advisory",
		}, []string{"advisory"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_document_verifications_total",
			Help: "Total number of verifications anchored on the ledger, labeled by decision",
		}, []string{"decision"}),
		VerificationRolled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_document_verifications_rolled_back_total",
			Help: "Verifications rolled back after a ledger failure, labeled by error code",
		}, []string{"code"}),
		RollbackFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_document_rollback_failures_total",
			Help: "Rollbacks that could not be written to the record store",
		}),
		AnchorsBackfilled: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_document_anchors_backfilled_total",
			Help: "Upload anchors recorded from ledger events after the fact",
		}),
		VerifyReconciled: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_document_verifications_reconciled_total",
			Help: "Provisional verdicts finalized from ledger events after the local write failed",
		}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_document_notifications_failed_total",
			Help: "Owner notifications that could not be published",
		}),
		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ekyc_document_verify_latency_seconds",
			Help:    "End-to-end latency of verify operations including ledger confirmation",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
	}
}

func (m *Metrics) IncUploaded(docType string) {
	if m == nil {
		return
	}
	m.DocumentsUploaded.WithLabelValues(docType).Inc()
}

func (m *Metrics) IncUploadFailure(code string) {
	if m == nil {
		return
	}
	m.UploadFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) IncAdvisory(advisory string) {
	if m == nil {
		return
	}
	m.AnchorAdvisories.WithLabelValues(advisory).Inc()
}

func (m *Metrics) IncVerified(decision string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncRolledBack(code string) {
	if m == nil {
		return
	}
	m.VerificationRolled.WithLabelValues(code).Inc()
}

func (m *Metrics) IncRollbackFailure() {
	if m == nil {
		return
	}
	m.RollbackFailures.Inc()
}

func (m *Metrics) IncBackfilled() {
	if m == nil {
		return
	}
	m.AnchorsBackfilled.Inc()
}

func (m *Metrics) IncVerificationReconciled() {
	if m == nil {
		return
	}
	m.VerifyReconciled.Inc()
}

func (m *Metrics) IncNotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

func (m *Metrics) ObserveVerifyLatency(seconds float64) {
	if m == nil {
		return
	}
	m.VerifyLatency.Observe(seconds)
}
