package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keycortex_wallet_http_requests_total",
			Help: "Total number of HTTP requests made.",
		},
		[]string{"method", "path", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keycortex_wallet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	challengeIssuedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keycortex_wallet_challenge_issued_total",
			Help: "Total number of auth challenges issued.",
		},
	)

	challengeVerifyCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keycortex_wallet_challenge_verify_total",
			Help: "Total number of auth challenge verifications, by result.",
		},
		[]string{"result"},
	)

	submitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keycortex_wallet_submit_total",
			Help: "Total number of transaction submits, by result.",
		},
		[]string{"result"},
	)
)

// metricsHandler exposes Prometheus metrics for scraping.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NewMetricsHandler returns a standalone handler for a separate metrics
// listener, isolating scrape traffic from application traffic.
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}
