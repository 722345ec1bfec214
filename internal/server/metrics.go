package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "speakfootball"

	labelMethod  = "method"
	labelPath    = "path"
	labelStatus  = "status"
	labelOutcome = "outcome"

	loginOutcomeSuccess = "success"
	loginOutcomeLimited = "rate_limited"
	loginOutcomeInvalid = "invalid_request"
	unmatchedRoute      = "unmatched"
)

var httpLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type httpMetrics struct {
	gatherer        prometheus.Gatherer
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
	usersCreated    prometheus.Counter
	streamsOpen     prometheus.Gauge
}

// newHTTPMetrics registers the API collectors on registry. A nil registry gets a private one.
func newHTTPMetrics(registry *prometheus.Registry) (*httpMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := &httpMetrics{
		gatherer: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route and status.",
			},
			[]string{labelMethod, labelPath, labelStatus},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route.",
				Buckets:   httpLatencyBuckets,
			},
			[]string{labelMethod, labelPath},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "google_logins_total",
				Help:      "Google login attempts by outcome.",
			},
			[]string{labelOutcome},
		),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "users_registered_total",
			Help:      "Accounts registered through a provider login.",
		}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "roster_streams_open",
			Help:      "Currently open event roster streams.",
		}),
	}
	collectors := []prometheus.Collector{
		metrics.requestsTotal,
		metrics.requestDuration,
		metrics.loginsTotal,
		metrics.usersCreated,
		metrics.streamsOpen,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (m *httpMetrics) middleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
}

func (m *httpMetrics) recordLogin(outcome string) {
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

func (m *httpMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
