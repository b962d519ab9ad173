package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	paymentsGenerated prometheus.Counter
	paymentsPaid      prometheus.Counter
	paymentsOverdue   prometheus.Counter
	reconcileRuns     *prometheus.CounterVec
	messagesBuilt     *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	paymentsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_generated_total",
		Help: "Payments created by month generation",
	})

	paymentsPaid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_paid_total",
		Help: "Payments marked as paid",
	})

	paymentsOverdue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_overdue_total",
		Help: "Payments transitioned to overdue",
	})

	reconcileRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_reconcile_runs_total",
		Help: "Reconciliation runs by outcome",
	}, []string{"outcome"})

	messagesBuilt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_messages_built_total",
		Help: "WhatsApp messages rendered by kind",
	}, []string{"kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, paymentsGenerated, paymentsPaid, paymentsOverdue,
		reconcileRuns, messagesBuilt, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		paymentsGenerated: paymentsGenerated,
		paymentsPaid:      paymentsPaid,
		paymentsOverdue:   paymentsOverdue,
		reconcileRuns:     reconcileRuns,
		messagesBuilt:     messagesBuilt,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// AddPaymentsGenerated counts new payments produced for a month.
func (m *MetricsService) AddPaymentsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.paymentsGenerated.Add(float64(n))
}

// IncPaymentPaid counts a settled payment.
func (m *MetricsService) IncPaymentPaid() {
	if m == nil {
		return
	}
	m.paymentsPaid.Inc()
}

// AddPaymentsOverdue counts payments moved to overdue.
func (m *MetricsService) AddPaymentsOverdue(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.paymentsOverdue.Add(float64(n))
}

// RecordReconcileRun counts a reconciliation run by outcome.
func (m *MetricsService) RecordReconcileRun(outcome string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
}

// RecordMessageBuilt counts a rendered message by kind.
func (m *MetricsService) RecordMessageBuilt(kind string) {
	if m == nil {
		return
	}
	m.messagesBuilt.WithLabelValues(kind).Inc()
}
