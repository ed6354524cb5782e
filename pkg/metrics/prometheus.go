// Package metrics provides Prometheus metrics for the AgentSkan scanner service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the scanner service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	scoreBuckets     []float64
	storeBuckets     []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scan metrics
	scansTotal           *prometheus.CounterVec
	scanFailures         *prometheus.CounterVec
	scanDuration         prometheus.Histogram
	riskScore            prometheus.Histogram
	contentFlags         *prometheus.CounterVec
	flagAnalysisFailures *prometheus.CounterVec
	persistOutcomes      *prometheus.CounterVec

	// Upstream collaborators (GitHub, classifier, feeds)
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Ledger metrics
	ledgerAppends      *prometheus.CounterVec
	ledgerEvictions    prometheus.Counter
	ledgerCounterFails prometheus.Counter
	ledgerSize         prometheus.Gauge
	ledgerLifetime     prometheus.Gauge
	ledgerQueryLatency prometheus.Histogram

	// Store backend metrics
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	storeKeys       *prometheus.GaugeVec

	// Feed cache metrics
	feedCache *prometheus.CounterVec

	// Persist queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Persist worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error breakdowns
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "agentskan",
		subsystem:        "scanner",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		scoreBuckets:     []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		storeBuckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often gauge style metrics should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// Enabled reports whether recording is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.scansTotal = auto.NewCounterVec(m.counterOpts("scans_total", "Completed scans by risk level"), []string{"risk_level"})
	m.scanFailures = auto.NewCounterVec(m.counterOpts("scan_failures_total", "Scans that failed before scoring, by reason"), []string{"reason"})
	m.scanDuration = auto.NewHistogram(m.histogramOpts("scan_duration_seconds", "End to end scan duration", nil))
	m.riskScore = auto.NewHistogram(m.histogramOpts("risk_score", "Distribution of computed risk scores", m.scoreBuckets))
	m.contentFlags = auto.NewCounterVec(m.counterOpts("content_flags_total", "Content flags applied to scans by severity"), []string{"severity"})
	m.flagAnalysisFailures = auto.NewCounterVec(m.counterOpts("flag_analysis_failures_total", "README analyses that degraded to zero flags"), []string{"reason"})
	m.persistOutcomes = auto.NewCounterVec(m.counterOpts("persist_outcomes_total", "Scan persistence outcomes"), []string{"outcome"})

	m.upstreamRequests = auto.NewCounterVec(m.counterOpts("upstream_requests_total", "Requests to upstream collaborators"), []string{"collaborator", "outcome"})
	m.upstreamLatency = auto.NewHistogramVec(m.histogramOpts("upstream_request_duration_seconds", "Upstream request latency", nil), []string{"collaborator"})

	m.ledgerAppends = auto.NewCounterVec(m.counterOpts("ledger_appends_total", "Ledger appends by outcome"), []string{"outcome"})
	m.ledgerEvictions = auto.NewCounter(m.counterOpts("ledger_evictions_total", "Ledger records evicted by retention"))
	m.ledgerCounterFails = auto.NewCounter(m.counterOpts("ledger_counter_failures_total", "Persisted scans the lifetime counter missed"))
	m.ledgerSize = auto.NewGauge(m.gaugeOpts("ledger_size", "Records currently retained by the ledger"))
	m.ledgerLifetime = auto.NewGauge(m.gaugeOpts("ledger_lifetime_scans", "Lifetime number of recorded scans"))
	m.ledgerQueryLatency = auto.NewHistogram(m.histogramOpts("ledger_query_duration_seconds", "Ledger page query latency", nil))

	m.storeOperations = auto.NewCounterVec(m.counterOpts("store_operations_total", "Store operations by backend, operation and result"), []string{"backend", "op", "result"})
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_operation_duration_seconds", "Store operation latency", m.storeBuckets),
		[]string{"backend", "op"})
	m.storeKeys = auto.NewGaugeVec(m.gaugeOpts("store_keys", "Keys held by a store backend"), []string{"backend"})

	m.feedCache = auto.NewCounterVec(m.counterOpts("feed_cache_total", "Feed cache lookups by result"), []string{"feed", "result"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("persist_queue_size", "Scans waiting in the persist queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("persist_queue_capacity", "Persist queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("persist_queue_utilization_ratio", "Persist queue utilization (0-1)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("persist_queue_enqueued_total", "Scans enqueued for persistence"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("persist_queue_dequeued_total", "Scans dequeued for persistence"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("persist_queue_enqueue_errors_total", "Scans rejected by the persist queue"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("persist_workers", "Configured persist workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("persist_workers_active", "Persist workers currently appending"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("persist_worker_duration_seconds", "Time to append one queued scan", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("persist_worker_errors_total", "Queued scans the workers failed to append"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds", "HTTP request duration", nil),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Scan Metrics Functions.

// RecordScan counts a completed scan and observes its score.
func RecordScan(riskLevel string, score int, duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.scansTotal.WithLabelValues(riskLevel).Inc()
	globalManager.riskScore.Observe(float64(score))
	globalManager.scanDuration.Observe(duration.Seconds())
}

// RecordScanFailure counts a scan that ended before scoring.
func RecordScanFailure(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.scanFailures.WithLabelValues(reason).Inc()
}

// RecordContentFlag counts a flag applied to a scan.
func RecordContentFlag(severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.contentFlags.WithLabelValues(severity).Inc()
}

// RecordFlagAnalysisFailure counts a README analysis that degraded to zero flags.
func RecordFlagAnalysisFailure(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.flagAnalysisFailures.WithLabelValues(reason).Inc()
}

// RecordPersistOutcome counts how a scan result was persisted.
func RecordPersistOutcome(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.persistOutcomes.WithLabelValues(outcome).Inc()
}

// Upstream Metrics Functions.

// RecordUpstreamRequest records one call to an upstream collaborator.
func RecordUpstreamRequest(collaborator, outcome string, duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.upstreamRequests.WithLabelValues(collaborator, outcome).Inc()
	globalManager.upstreamLatency.WithLabelValues(collaborator).Observe(duration.Seconds())
}

// Ledger Metrics Functions.

// RecordLedgerAppend counts a ledger append by outcome.
func RecordLedgerAppend(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.ledgerAppends.WithLabelValues(outcome).Inc()
}

// RecordLedgerEvictions adds n evicted records.
func RecordLedgerEvictions(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.ledgerEvictions.Add(float64(n))
}

// RecordLedgerCounterFailure counts a persisted scan whose lifetime counter
// increment failed.
func RecordLedgerCounterFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.ledgerCounterFails.Inc()
}

// UpdateLedgerSize sets the number of retained records.
func UpdateLedgerSize(size int64) {
	globalManager.ledgerSize.Set(float64(size))
}

// UpdateLedgerLifetime sets the lifetime scan counter.
func UpdateLedgerLifetime(count int64) {
	globalManager.ledgerLifetime.Set(float64(count))
}

// RecordLedgerQueryLatency records a page query latency.
func RecordLedgerQueryLatency(duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.ledgerQueryLatency.Observe(duration.Seconds())
}

// Store Metrics Functions.

// RecordStoreOperation records one store operation.
func RecordStoreOperation(backend, op string, err error, duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	globalManager.storeOperations.WithLabelValues(backend, op, result).Inc()
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// UpdateStoreKeys sets the number of keys a backend holds.
func UpdateStoreKeys(backend string, count int) {
	globalManager.storeKeys.WithLabelValues(backend).Set(float64(count))
}

// Feed Metrics Functions.

// RecordFeedCache records a feed cache lookup result (hit, miss, stale, error).
func RecordFeedCache(feed, result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.feedCache.WithLabelValues(feed, result).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the time to append one queued scan.
func RecordWorkerProcessingLatency(duration time.Duration) {
	globalManager.workerProcessingLatency.Observe(duration.Seconds())
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration) {
	if !globalManager.enabled {
		return
	}
	code := strconv.Itoa(statusCode)
	globalManager.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(duration.Seconds())
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval returns the refresh interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
