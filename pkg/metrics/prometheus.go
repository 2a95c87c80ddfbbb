// Package metrics provides Prometheus metrics for the matchbench runner.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for a benchmark run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	durationBuckets  []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scheduler metrics - what the pool is doing right now
	jobsQueued     prometheus.Counter
	jobsStarted    prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     *prometheus.CounterVec
	poolRunning    prometheus.Gauge
	poolCapacity   prometheus.Gauge
	pollRequeues   prometheus.Counter
	launchRetries  prometheus.Counter
	matchDuration  prometheus.Histogram
	stderrWarnings prometheus.Counter
	chattyMatches  prometheus.Counter

	// Queue metrics - pending matches
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Aggregation metrics
	tensorUpdates    prometheus.Counter
	duplicateResults prometheus.Counter

	// Repository metrics
	repositoryWriteLatency prometheus.Histogram
	repositoryErrors       prometheus.Counter

	// Workspace metrics
	checkoutFiles prometheus.Counter
	buildDuration prometheus.Gauge

	// HTTP status surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "matchbench",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		durationBuckets:  []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.jobsQueued = m.counter("jobs_queued_total", "Total number of match jobs queued for scheduling")
	m.jobsStarted = m.counter("jobs_started_total", "Total number of match processes launched")
	m.jobsCompleted = m.counter("jobs_completed_total", "Total number of matches that produced a winner")
	m.jobsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_failed_total",
		Help:        "Total number of failed match jobs by reason",
		ConstLabels: m.constLabels,
	}, []string{"reason"})
	m.poolRunning = m.gauge("pool_running", "Number of match processes currently occupying a pool slot")
	m.poolCapacity = m.gauge("pool_capacity", "Maximum number of concurrently running match processes")
	m.pollRequeues = m.counter("poll_requeues_total", "Number of times a still-running match was rotated to the back of the running set")
	m.launchRetries = m.counter("launch_retries_total", "Number of match process launch retries")
	m.matchDuration = m.histogram("match_duration_seconds", "Wall-clock duration of finished matches in seconds", m.durationBuckets)
	m.stderrWarnings = m.counter("stderr_warnings_total", "Matches whose error stream exceeded the noise threshold")
	m.chattyMatches = m.counter("chatty_transcripts_total", "Matches whose transcript contained unexpected robot output")

	m.queueSize = m.gauge("queue_size", "Current number of pending match jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of pending match jobs")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueue attempts")

	m.tensorUpdates = m.counter("tensor_updates_total", "Total number of results credited to the win tensor")
	m.duplicateResults = m.counter("duplicate_results_total", "Results dropped because their job was already recorded")

	m.repositoryWriteLatency = m.histogram("repository_write_latency_milliseconds", "Result store write latency in milliseconds", m.histogramBuckets)
	m.repositoryErrors = m.counter("repository_errors_total", "Total number of result store errors")

	m.checkoutFiles = m.counter("checkout_files_total", "Number of source files extracted for reference competitors")
	m.buildDuration = m.gauge("build_duration_seconds", "Duration of the last build step in seconds")

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Errors by component and type",
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// Scheduler Metrics Functions.

// RecordJobQueued increments the queued jobs counter.
func RecordJobQueued() {
	globalManager.jobsQueued.Inc()
}

// RecordJobStarted increments the launched jobs counter.
func RecordJobStarted() {
	globalManager.jobsStarted.Inc()
}

// RecordJobCompleted increments the completed jobs counter and observes its duration.
func RecordJobCompleted(durationSeconds float64) {
	globalManager.jobsCompleted.Inc()
	globalManager.matchDuration.Observe(durationSeconds)
}

// RecordJobFailed increments the failed jobs counter for reason.
func RecordJobFailed(reason string) {
	globalManager.jobsFailed.WithLabelValues(reason).Inc()
}

// UpdatePoolRunning sets the number of occupied pool slots.
func UpdatePoolRunning(count int) {
	globalManager.poolRunning.Set(float64(count))
}

// UpdatePoolCapacity sets the pool slot count.
func UpdatePoolCapacity(capacity int) {
	globalManager.poolCapacity.Set(float64(capacity))
}

// RecordPollRequeue increments the requeue counter.
func RecordPollRequeue() {
	globalManager.pollRequeues.Inc()
}

// RecordLaunchRetry increments the launch retry counter.
func RecordLaunchRetry() {
	globalManager.launchRetries.Inc()
}

// RecordStderrWarning increments the long error stream counter.
func RecordStderrWarning() {
	globalManager.stderrWarnings.Inc()
}

// RecordChattyTranscript increments the chatty transcript counter.
func RecordChattyTranscript() {
	globalManager.chattyMatches.Inc()
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

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Aggregation Metrics Functions.

// RecordTensorUpdate increments the tensor update counter.
func RecordTensorUpdate() {
	globalManager.tensorUpdates.Inc()
}

// RecordDuplicateResult increments the duplicate result counter.
func RecordDuplicateResult() {
	globalManager.duplicateResults.Inc()
}

// Repository Metrics Functions.

// RecordRepositoryWriteLatency records a result store write latency.
func RecordRepositoryWriteLatency(latencyMs float64) {
	globalManager.repositoryWriteLatency.Observe(latencyMs)
}

// RecordRepositoryError increments the result store error counter.
func RecordRepositoryError() {
	globalManager.repositoryErrors.Inc()
}

// Workspace Metrics Functions.

// RecordCheckoutFile increments the extracted file counter.
func RecordCheckoutFile() {
	globalManager.checkoutFiles.Inc()
}

// UpdateBuildDuration sets the duration of the last build.
func UpdateBuildDuration(seconds float64) {
	globalManager.buildDuration.Set(seconds)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Value gathers the registry and returns the summed value of the metric
// family with the given fully-qualified name. Counters and gauges report
// their value; histograms report their sample count.
func Value(name string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGather, err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		return total, nil
	}
	return 0, fmt.Errorf("%w: metric %q not registered", ErrGather, name)
}
