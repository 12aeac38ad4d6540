package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the wallet authentication counters.
type Metrics struct {
	UsersCreated  prometheus.Counter
	TokenRequests prometheus.Counter
	AuthFailures  *prometheus.CounterVec
}

// New creates and registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_users_created_total",
			Help: "Total number of identities created by first wallet login",
		}),
		TokenRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_token_requests_total",
			Help: "Total number of access tokens issued",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_auth_failures_total",
			Help: "Total number of failed wallet logins by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementUsersCreated() {
	if m != nil {
		m.UsersCreated.Inc()
	}
}

func (m *Metrics) IncrementTokenRequests() {
	if m != nil {
		m.TokenRequests.Inc()
	}
}

func (m *Metrics) IncrementAuthFailures(code string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(code).Inc()
	}
}
