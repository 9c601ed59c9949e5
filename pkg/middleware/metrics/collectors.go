package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "response_time",
			Help:    "http response time.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsFromRole = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_from_role", Help: "http requests from role"},
		[]string{"role"},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_to_uri", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	scriptInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "script_invocations_total", Help: "script callback invocations by kind and outcome"},
		[]string{"kind", "outcome"},
	)

	guardWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "script_guard_wait_seconds",
			Help:    "time spent waiting to enter the script interpreter.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	websocketSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "websocket_sessions_active", Help: "open websocket sessions"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsFromRole,
		totalHttpRequestsToUri,
		totalHttpRequests,
		scriptInvocations,
		guardWait,
		websocketSessions,
	)
}
