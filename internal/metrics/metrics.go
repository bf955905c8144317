package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Engine metrics
	backtestsTotal    *prometheus.CounterVec
	backtestDuration  prometheus.Histogram
	tradesSimulated   prometheus.Counter
	gridBatchesTotal  *prometheus.CounterVec
	gridBatchDuration prometheus.Histogram
	gridCombosTotal   prometheus.Counter
	jobsActive        *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Engine metrics
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backgrid_backtests_total",
			Help: "Total number of backtest runs",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backgrid_backtest_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.tradesSimulated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backgrid_trades_simulated_total",
			Help: "Total number of single-trade simulations",
		},
	)
	r.gridBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backgrid_grid_batches_total",
			Help: "Total number of grid batches executed",
		},
		[]string{"status"},
	)
	r.gridBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backgrid_grid_batch_duration_seconds",
			Help:    "Grid batch duration in seconds",
			Buckets: []float64{1, 5, 10, 25, 30, 60, 120},
		},
	)
	r.gridCombosTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backgrid_grid_combos_total",
			Help: "Total number of grid combinations evaluated",
		},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backgrid_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.tradesSimulated)
	reg.MustRegister(r.gridBatchesTotal)
	reg.MustRegister(r.gridBatchDuration)
	reg.MustRegister(r.gridCombosTotal)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	r.httpRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a backtest run completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordTrades records simulated trades.
func (r *Registry) RecordTrades(n int) {
	r.tradesSimulated.Add(float64(n))
}

// RecordBatch records a grid batch completion.
func (r *Registry) RecordBatch(status string, duration float64) {
	r.gridBatchesTotal.WithLabelValues(status).Inc()
	r.gridBatchDuration.Observe(duration)
}

// RecordCombos records evaluated grid combinations.
func (r *Registry) RecordCombos(n int) {
	r.gridCombosTotal.Add(float64(n))
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
