// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring a tinkercalc server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// KeyPressesTotal counts keys applied to any calculator, by key kind.
	KeyPressesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinkercalc_key_presses_total",
			Help: "Key presses",
		},
		[]string{"kind"},
	)

	// AlertsTotal counts user-facing alerts such as division by zero.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinkercalc_alerts_total",
			Help: "Alerts raised",
		},
		[]string{"reason"},
	)

	// WSConnections tracks open keypad WebSocket connections.
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tinkercalc_ws_connections_active",
			Help: "Active WebSocket connections",
		},
	)

	// APISessions tracks live REST API calculator sessions.
	APISessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tinkercalc_api_sessions_active",
			Help: "Active API sessions",
		},
	)

	// RateLimitRejectedTotal counts API requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tinkercalc_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)

	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinkercalc_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		KeyPressesTotal,
		AlertsTotal,
		WSConnections,
		APISessions,
		RateLimitRejectedTotal,
		RequestsTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AlertReason maps an alert message to a low-cardinality label value.
func AlertReason(msg string) string {
	if msg == "Cannot divide by zero!" {
		return "divide_by_zero"
	}
	return "other"
}
