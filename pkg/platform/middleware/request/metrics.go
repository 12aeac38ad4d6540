package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are labelled by route pattern, method and status class ("2xx").
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	labels := []string{"endpoint", "method", "status"}
	return &Metrics{
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ekyc_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, labels),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_http_requests_total",
			Help: "Total number of HTTP requests",
		}, labels),
	}
}

func (m *Metrics) observe(endpoint, method string, status int, seconds float64) {
	class := strconv.Itoa(status/100) + "xx"
	m.EndpointLatency.WithLabelValues(endpoint, method, class).Observe(seconds)
	m.Requests.WithLabelValues(endpoint, method, class).Inc()
}
