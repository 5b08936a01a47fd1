package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for editor sessions.
type Metrics interface {
	IncEditorOp(op, result string)
	SetActiveSessions(n int)
}

// GatewayMetrics captures request metrics for the API gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// ConfigMetrics captures saved configuration and preview metrics.
type ConfigMetrics interface {
	IncConfigSaved(applicationID string)
	ObserveSaveDuration(durationSeconds float64)
	IncPreview(status string)
}

// Noop implements Metrics and ConfigMetrics without emitting anything.
type Noop struct{}

func (Noop) IncEditorOp(string, string)  {}
func (Noop) SetActiveSessions(int)       {}
func (Noop) IncConfigSaved(string)       {}
func (Noop) ObserveSaveDuration(float64) {}
func (Noop) IncPreview(string)           {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	editorOps      *prometheus.CounterVec
	activeSessions prometheus.Gauge
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		editorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "editor_operations_total",
			Help:      "Editor operations by op and result",
		}, []string{"op", "result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "editor_sessions_active",
			Help:      "Open editor sessions",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.editorOps, p.activeSessions)
	})
}

func (p *Prom) IncEditorOp(op, result string) {
	p.editorOps.WithLabelValues(op, result).Inc()
}

func (p *Prom) SetActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
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

// --- Saved config metrics ---

type configProm struct {
	saved        *prometheus.CounterVec
	saveDuration prometheus.Histogram
	previews     *prometheus.CounterVec
	once         sync.Once
}

func NewConfigProm(namespace string) ConfigMetrics {
	c := &configProm{
		saved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configs_saved_total",
			Help:      "Workflow configs saved by application",
		}, []string{"application"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "config_save_duration_seconds",
			Help:      "Workflow config save latency",
			Buckets:   prometheus.DefBuckets,
		}),
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "File preview requests by status",
		}, []string{"status"}),
	}
	c.once.Do(func() {
		prometheus.MustRegister(c.saved, c.saveDuration, c.previews)
	})
	return c
}

func (c *configProm) IncConfigSaved(applicationID string) {
	c.saved.WithLabelValues(applicationID).Inc()
}

func (c *configProm) ObserveSaveDuration(durationSeconds float64) {
	c.saveDuration.Observe(durationSeconds)
}

func (c *configProm) IncPreview(status string) {
	c.previews.WithLabelValues(status).Inc()
}
