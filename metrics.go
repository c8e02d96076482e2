package subwire

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline. It is
// safe for concurrent use, and every method is a no-op on a nil receiver.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheUnsatisfiable *prometheus.CounterVec
	cacheSize          *prometheus.GaugeVec
	cacheAnnotations   *prometheus.CounterVec

	offlineRequests *prometheus.CounterVec
	authSchemes     *prometheus.CounterVec
	versionChanges  *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_requests_total",
				Help: "Total number of requests made through the client",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subwire_request_duration_seconds",
				Help:    "Duration of requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subwire_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_cache_hits_total",
				Help: "Total number of responses served from the cache",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_cache_misses_total",
				Help: "Total number of cache lookups that went to the network",
			},
			[]string{"method", "endpoint"},
		),
		cacheUnsatisfiable: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_cache_unsatisfiable_total",
				Help: "Total number of cache-only requests with no usable entry",
			},
			[]string{"endpoint"},
		),
		cacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subwire_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		cacheAnnotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_cache_annotations_total",
				Help: "Total number of network responses whose cache headers were rewritten",
			},
			[]string{"endpoint"},
		),
		offlineRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_offline_requests_total",
				Help: "Total number of requests forced to the cache while offline",
			},
			[]string{"method", "endpoint"},
		),
		authSchemes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_auth_scheme_total",
				Help: "Total number of requests per selected authentication scheme",
			},
			[]string{"scheme"},
		),
		versionChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_protocol_version_changes_total",
				Help: "Total number of accepted protocol version changes",
			},
			[]string{"version"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subwire_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheUnsatisfiable counts cache-only requests that found nothing usable.
func (mc *MetricsCollector) RecordCacheUnsatisfiable(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheUnsatisfiable.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordCacheAnnotation counts rewritten network responses.
func (mc *MetricsCollector) RecordCacheAnnotation(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheAnnotations.WithLabelValues(endpoint).Inc()
}

// RecordOfflineRequest counts requests forced to the cache.
func (mc *MetricsCollector) RecordOfflineRequest(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.offlineRequests.WithLabelValues(method, endpoint).Inc()
}

// RecordAuthScheme counts the scheme chosen for a request.
func (mc *MetricsCollector) RecordAuthScheme(scheme string) {
	if mc == nil {
		return
	}

	mc.authSchemes.WithLabelValues(scheme).Inc()
}

// RecordVersionChange counts accepted protocol version changes.
func (mc *MetricsCollector) RecordVersionChange(version ProtocolVersion) {
	if mc == nil {
		return
	}

	mc.versionChanges.WithLabelValues(version.String()).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
