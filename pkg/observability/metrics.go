package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Request state machine
	StateTransitionsTotal *prometheus.CounterVec
	RequestsPending       prometheus.Gauge

	// Queue metrics
	QueuePublishesTotal *prometheus.CounterVec
	QueueConsumesTotal  *prometheus.CounterVec

	// Executor metrics
	JobDuration      *prometheus.HistogramVec
	JobsInFlight     prometheus.Gauge
	PoolRestartsTotal prometheus.Counter

	// Store metrics
	EstimateDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodds_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geodds_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StateTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodds_request_state_transitions_total",
				Help: "Request state machine transitions",
			},
			[]string{"from", "to"},
		),
		RequestsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geodds_requests_pending",
				Help: "Requests currently awaiting admission",
			},
		),
		QueuePublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodds_queue_publishes_total",
				Help: "Messages published to the worker queue",
			},
			[]string{"outcome"},
		),
		QueueConsumesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodds_queue_consumes_total",
				Help: "Messages consumed from the worker queue",
			},
			[]string{"outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geodds_executor_job_duration_seconds",
				Help:    "Compute job duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
			},
			[]string{"outcome"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geodds_executor_jobs_in_flight",
				Help: "Compute jobs currently executing",
			},
		),
		PoolRestartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "geodds_executor_pool_restarts_total",
				Help: "Compute pool restart attempts",
			},
		),
		EstimateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geodds_estimate_duration_seconds",
				Help:    "Catalog size-estimate duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StateTransitionsTotal,
		m.RequestsPending,
		m.QueuePublishesTotal,
		m.QueueConsumesTotal,
		m.JobDuration,
		m.JobsInFlight,
		m.PoolRestartsTotal,
		m.EstimateDuration,
	)
	return m
}

// Handler returns the /metrics handler for the given registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request counting and timing.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
