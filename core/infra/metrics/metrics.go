package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics defines counters for the content pipeline.
type PipelineMetrics interface {
	IncFetchAttempt(kind string)
	IncFetchRetry(kind string)
	IncPacksExtracted(kind string)
	IncRunCompleted(status string)
	ObserveRunDuration(durationSeconds float64)
}

// GatewayMetrics captures request metrics for the API gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements PipelineMetrics without emitting anything.
type Noop struct{}

func (Noop) IncFetchAttempt(string)      {}
func (Noop) IncFetchRetry(string)        {}
func (Noop) IncPacksExtracted(string)    {}
func (Noop) IncRunCompleted(string)      {}
func (Noop) ObserveRunDuration(float64)  {}

// Prom implements PipelineMetrics backed by Prometheus collectors.
type Prom struct {
	fetchAttempts  *prometheus.CounterVec
	fetchRetries   *prometheus.CounterVec
	packsExtracted *prometheus.CounterVec
	runsCompleted  *prometheus.CounterVec
	runDuration    prometheus.Histogram
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Archive fetch attempts by content kind",
		}, []string{"kind"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Archive fetch retries by content kind",
		}, []string{"kind"}),
		packsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packs_extracted_total",
			Help:      "Packs extracted by content kind",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Assemble runs completed by status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Assemble run duration seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.fetchAttempts, p.fetchRetries, p.packsExtracted, p.runsCompleted, p.runDuration)
	})
}

func (p *Prom) IncFetchAttempt(kind string) {
	p.fetchAttempts.WithLabelValues(kind).Inc()
}

func (p *Prom) IncFetchRetry(kind string) {
	p.fetchRetries.WithLabelValues(kind).Inc()
}

func (p *Prom) IncPacksExtracted(kind string) {
	p.packsExtracted.WithLabelValues(kind).Inc()
}

func (p *Prom) IncRunCompleted(status string) {
	p.runsCompleted.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveRunDuration(durationSeconds float64) {
	p.runDuration.Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// NoopGateway implements GatewayMetrics without emitting anything.
type NoopGateway struct{}

func (NoopGateway) ObserveRequest(string, string, string, float64) {}
