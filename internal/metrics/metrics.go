// Package metrics exposes Prometheus instrumentation for the analysis service.
//
// A nil *Collector is valid and records nothing, so library callers can skip
// instrumentation entirely.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ringscope"

// Collector owns a private registry and the service metrics.
type Collector struct {
	registry *prometheus.Registry

	analyses          *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	transactions      prometheus.Counter
	detectorDuration  *prometheus.HistogramVec
	detectorFailures  *prometheus.CounterVec
	ringsDetected     *prometheus.CounterVec
	suspiciousFlagged prometheus.Counter
	cacheLookups      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of analyses by outcome",
		}, []string{"outcome"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time taken to analyze one batch",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		transactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_analyzed_total",
			Help:      "Total number of transactions analyzed",
		}),
		detectorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Time taken by each detector",
			Buckets:   prometheus.DefBuckets,
		}, []string{"detector"}),
		detectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Detector runs that failed and contributed no candidates",
		}, []string{"detector"}),
		ringsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rings_detected_total",
			Help:      "Surviving rings by pattern type",
		}, []string{"pattern"}),
		suspiciousFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_accounts_flagged_total",
			Help:      "Total number of accounts flagged as suspicious",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by result",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records one finished analysis.
func (c *Collector) ObserveAnalysis(d time.Duration, transactions, suspicious int, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.analyses.WithLabelValues(outcome).Inc()
	if err != nil {
		return
	}
	c.analysisDuration.Observe(d.Seconds())
	c.transactions.Add(float64(transactions))
	c.suspiciousFlagged.Add(float64(suspicious))
}

// ObserveDetector records the duration of a detector run and whether it failed.
func (c *Collector) ObserveDetector(detector string, d time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.detectorDuration.WithLabelValues(detector).Observe(d.Seconds())
	if failed {
		c.detectorFailures.WithLabelValues(detector).Inc()
	}
}

// RingDetected counts one surviving ring.
func (c *Collector) RingDetected(pattern string) {
	if c == nil {
		return
	}
	c.ringsDetected.WithLabelValues(pattern).Inc()
}

// CacheLookup counts a report cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, StatusClass(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StatusClass buckets an HTTP status code as "2xx", "4xx" and so on.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
