package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geotms/server/internal/cache"
)

const namespace = "tms"

// Metrics holds the collectors of one server. Each server owns its
// registry so several can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// requests by handler and status code
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	// time spent in color maps and render callbacks
	renderDuration *prometheus.HistogramVec
}

// NewMetrics creates a registry with request and render collectors. When
// mgr is non-nil its hit and miss counts are exported too.
func NewMetrics(mgr *cache.Manager) *Metrics {
	kib := 1024.0
	mib := kib * kib
	sizeBuckets := []float64{1.0 * kib, 5.0 * kib, 10.0 * kib, 25.0 * kib, 50.0 * kib, 100 * kib, 250 * kib, 500 * kib, 1.0 * mib}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests served by handler and status code",
		}, []string{"handler", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "status"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "Response size in bytes",
			Buckets:   sizeBuckets,
		}, []string{"handler", "status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent turning source tiles into images, by display kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.requests, m.requestDuration, m.responseSize, m.renderDuration)

	if mgr != nil {
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_hits_total",
				Help:      "Rendered tile cache hits",
			}, func() float64 { return float64(mgr.Stats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_misses_total",
				Help:      "Rendered tile cache misses",
			}, func() float64 { return float64(mgr.Stats().Misses) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tile_cache_entries",
				Help:      "Rendered tiles held in the cache",
			}, func() float64 { return float64(mgr.Stats().TileEntries) }),
		)
	}
	return m
}

// ObserveRender records one display call. It matches service.RouteConfig.Observe.
func (m *Metrics) ObserveRender(kind string, d time.Duration) {
	m.renderDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) observeRequest(handler string, status, size int, d time.Duration) {
	labels := []string{handler, strconv.Itoa(status)}
	m.requests.WithLabelValues(labels...).Inc()
	m.requestDuration.WithLabelValues(labels...).Observe(d.Seconds())
	m.responseSize.WithLabelValues(labels...).Observe(float64(size))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
