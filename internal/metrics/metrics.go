// Package metrics exposes Prometheus collectors for the ops server and the
// fetch pipeline. Run-level metrics live in the progress Prometheus sink.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the HTTP and politeness metrics.
type Collectors struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	politenessWaitSeconds      *prometheus.HistogramVec
}

// New registers the collectors against reg. Registering twice on the same
// registry panics, as with promauto.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankings_http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		),
		httpRequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankings_http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		),
		politenessWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankings_politeness_wait_seconds",
				Help:    "Histogram of politeness delay waits before page requests, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		),
	}
}

// Handler returns an http.Handler exposing g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request.
func (c *Collectors) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePolitenessWait records how long a request waited for its host's
// token. Its signature matches ratelimit.Config.Observer.
func (c *Collectors) ObservePolitenessWait(host string, waited time.Duration) {
	c.politenessWaitSeconds.WithLabelValues(host).Observe(waited.Seconds())
}
