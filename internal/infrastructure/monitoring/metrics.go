package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Service metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec

	// Build metrics
	BuildsTotal    *prometheus.CounterVec
	BuildDuration  *prometheus.HistogramVec
	BuildsInFlight prometheus.Gauge

	// Resolver metrics
	ResolverLookups *prometheus.CounterVec
	ResolverFetches *prometheus.CounterVec

	// Perimeter metrics
	ProxyRequests    *prometheus.CounterVec
	StoragePatches   *prometheus.CounterVec
	StoragePatchOps  prometheus.Histogram
	PinVerifications *prometheus.CounterVec
	SessionsSwept    prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
}

// NewMetrics registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		ServiceCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_calls_total",
				Help:      "Total number of internal service calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_duration_seconds",
				Help:      "Internal service call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method"},
		),

		BuildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Builds reaching a terminal state",
			},
			[]string{"status", "stage"},
		),
		BuildDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Wall time from queued to terminal state",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		BuildsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "builds_in_flight",
				Help:      "Builds currently executing",
			},
		),

		ResolverLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_lookups_total",
				Help:      "Dependency cache lookups by result",
			},
			[]string{"result"},
		),
		ResolverFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_fetches_total",
				Help:      "CDN fetches by outcome",
			},
			[]string{"outcome"},
		),

		ProxyRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "Proxied egress requests by outcome",
			},
			[]string{"outcome"},
		),
		StoragePatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_patches_total",
				Help:      "Storage patches by outcome",
			},
			[]string{"outcome"},
		),
		StoragePatchOps: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_patch_ops",
				Help:      "Operations per storage patch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		PinVerifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pin_verifications_total",
				Help:      "PIN verification attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionsSwept: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pin_sessions_swept_total",
				Help:      "PIN sessions removed by the sweeper",
			},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordServiceCall records an internal service call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordBuild records a build reaching a terminal state
func (m *Metrics) RecordBuild(status, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status, stage).Inc()
	m.BuildDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// BuildStarted increments the in-flight gauge
func (m *Metrics) BuildStarted() {
	if m == nil {
		return
	}
	m.BuildsInFlight.Inc()
}

// BuildFinished decrements the in-flight gauge
func (m *Metrics) BuildFinished() {
	if m == nil {
		return
	}
	m.BuildsInFlight.Dec()
}

// RecordResolverLookup records a cache hit or miss
func (m *Metrics) RecordResolverLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ResolverLookups.WithLabelValues(result).Inc()
}

// RecordResolverFetch records a CDN fetch outcome
func (m *Metrics) RecordResolverFetch(outcome string) {
	if m == nil {
		return
	}
	m.ResolverFetches.WithLabelValues(outcome).Inc()
}

// RecordProxy records a proxied request outcome
func (m *Metrics) RecordProxy(outcome string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(outcome).Inc()
}

// RecordStoragePatch records a storage patch outcome and its size
func (m *Metrics) RecordStoragePatch(outcome string, ops int) {
	if m == nil {
		return
	}
	m.StoragePatches.WithLabelValues(outcome).Inc()
	m.StoragePatchOps.Observe(float64(ops))
}

// RecordPinVerification records a PIN verification outcome
func (m *Metrics) RecordPinVerification(outcome string) {
	if m == nil {
		return
	}
	m.PinVerifications.WithLabelValues(outcome).Inc()
}

// AddSessionsSwept records sessions removed by a sweep
func (m *Metrics) AddSessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
