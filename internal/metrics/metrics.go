// Package metrics exposes Prometheus instrumentation for the transfer
// workflow and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransfersTotal counts custody transfer attempts by mode (single|bulk)
	// and result (ok|rejected|error).
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vzorec_transfers_total",
		Help: "Custody transfer attempts by mode and result.",
	}, []string{"mode", "result"})

	// NotificationsTotal counts submission notification attempts.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vzorec_notifications_total",
		Help: "Submission notification attempts by result.",
	}, []string{"result"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vzorec_http_request_duration_seconds",
		Help:    "HTTP request duration by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// ObserveHTTP records one handled request.
func ObserveHTTP(method string, status int, d time.Duration) {
	httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
