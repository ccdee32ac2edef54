// Package telemetry provides metrics collection and reporting
// for monitoring recommender and encoder performance.
package telemetry

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// maxTimerSamples bounds the number of durations kept per timer.
const maxTimerSamples = 100

// MetricsCollector provides a thread-safe interface for collecting
// application metrics for monitoring and troubleshooting.
type MetricsCollector struct {
	counters   map[string]int64
	gauges     map[string]float64
	timers     map[string][]time.Duration
	latestTime map[string]time.Time
	mu         sync.RWMutex
}

// Recommender metrics
const (
	MetricRecommendRequests  = "recommender.requests"
	MetricRecommendFailures  = "recommender.failures"
	MetricRecommendEmpty     = "recommender.empty_results"
	MetricRecommendSeeds     = "recommender.seeds"
	MetricRecommendResults   = "recommender.results"
	MetricRecommendLatency   = "recommender.latency"
	MetricEncodeLatency      = "recommender.stage.encode"
	MetricSemanticLatency    = "recommender.stage.semantic"
	MetricExpansionLatency   = "recommender.stage.expansion"
	MetricSimilarRequests    = "recommender.similar_items.requests"
	MetricLastRecommendation = "recommender.last_request"
)

// Encoder metrics
const (
	// API call counts are suffixed with the provider name.
	MetricAPICallsPrefix = "encoder.api_calls."

	MetricAPICallsSuccess = "encoder.api_calls.success"
	MetricAPICallsFailure = "encoder.api_calls.failure"

	MetricRetryAttempts = "encoder.retry_attempts"
	MetricRetrySuccess  = "encoder.retry_success"

	MetricFallbackAttempts = "encoder.fallback_attempts"
	MetricFallbackSuccess  = "encoder.fallback_success"

	MetricCacheHits   = "encoder.cache.hits"
	MetricCacheMisses = "encoder.cache.misses"
	MetricCacheSize   = "encoder.cache.size"

	MetricRateLimitWaits = "encoder.rate_limit.waits"

	// Response times and health are suffixed with the provider name.
	MetricResponseTimePrefix   = "encoder.response_time."
	MetricProviderHealthPrefix = "encoder.health."
)

// Store metrics
const (
	MetricStoreLoadLatency = "store.load"
	MetricStoreWrites      = "store.writes"
)

// NewMetricsCollector creates a new MetricsCollector instance
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		timers:     make(map[string][]time.Duration),
		latestTime: make(map[string]time.Time),
	}
}

// IncrementCounter increments a named counter by the specified amount.
// Calling it on a nil collector is a no-op.
func (m *MetricsCollector) IncrementCounter(name string, amount int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name] += amount
}

// SetGauge sets a named gauge to the specified value
func (m *MetricsCollector) SetGauge(name string, value float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gauges[name] = value
}

// RecordTimer records a duration for the specified timer
func (m *MetricsCollector) RecordTimer(name string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append(m.timers[name], duration)
	if len(samples) > maxTimerSamples {
		samples = samples[len(samples)-maxTimerSamples:]
	}
	m.timers[name] = samples
}

// Since records the time elapsed since start under name. It is meant to be
// deferred: defer metrics.Since(name, time.Now()).
func (m *MetricsCollector) Since(name string, start time.Time) {
	m.RecordTimer(name, time.Since(start))
}

// RecordTimestamp records the current time for the specified event
func (m *MetricsCollector) RecordTimestamp(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestTime[name] = time.Now()
}

// GetCounter retrieves the current value of a counter
func (m *MetricsCollector) GetCounter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counters[name]
}

// GetGauge retrieves the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) float64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.gauges[name]
}

// GetTimerCount returns how many samples a timer currently holds.
func (m *MetricsCollector) GetTimerCount(name string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.timers[name])
}

// GetTimerAverage calculates the average duration for a timer
func (m *MetricsCollector) GetTimerAverage(name string) time.Duration {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return average(m.timers[name])
}

// GetTimerP95 calculates the 95th percentile duration for a timer
func (m *MetricsCollector) GetTimerP95(name string) time.Duration {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return p95(m.timers[name])
}

// GetTimeSince calculates the time elapsed since a recorded timestamp
func (m *MetricsCollector) GetTimeSince(name string) time.Duration {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	timestamp, exists := m.latestTime[name]
	if !exists {
		return 0
	}

	return time.Since(timestamp)
}

// Snapshot is a point-in-time copy of all metrics, suitable for JSON output.
type Snapshot struct {
	Counters map[string]int64        `json:"counters"`
	Gauges   map[string]float64      `json:"gauges"`
	Timers   map[string]TimerSummary `json:"timers"`
}

// TimerSummary summarises the samples of one timer.
type TimerSummary struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg_ns"`
	P95   time.Duration `json:"p95_ns"`
}

// Snapshot copies the current metrics.
func (m *MetricsCollector) Snapshot() Snapshot {
	snap := Snapshot{
		Counters: make(map[string]int64),
		Gauges:   make(map[string]float64),
		Timers:   make(map[string]TimerSummary),
	}
	if m == nil {
		return snap
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, v := range m.timers {
		snap.Timers[k] = TimerSummary{Count: len(v), Avg: average(v), P95: p95(v)}
	}
	return snap
}

// GetReport generates a report of all collected metrics, sorted by name.
func (m *MetricsCollector) GetReport() string {
	if m == nil {
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Metrics Report:\n")
	b.WriteString("==============\n\n")

	b.WriteString("Counters:\n")
	for _, name := range sortedKeys(m.counters) {
		fmt.Fprintf(&b, "  %s: %d\n", name, m.counters[name])
	}

	b.WriteString("\nGauges:\n")
	for _, name := range sortedKeys(m.gauges) {
		fmt.Fprintf(&b, "  %s: %.2f\n", name, m.gauges[name])
	}

	b.WriteString("\nTimers (avg):\n")
	for _, name := range sortedKeys(m.timers) {
		samples := m.timers[name]
		fmt.Fprintf(&b, "  %s: avg=%v p95=%v count=%d\n", name, average(samples), p95(samples), len(samples))
	}

	b.WriteString("\nTime Since:\n")
	for _, name := range sortedKeys(m.latestTime) {
		ts := m.latestTime[name]
		fmt.Fprintf(&b, "  %s: %v ago (%s)\n", name, time.Since(ts), ts.Format(time.RFC3339))
	}

	return b.String()
}

// Reset clears all collected metrics
func (m *MetricsCollector) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.timers = make(map[string][]time.Duration)
	m.latestTime = make(map[string]time.Time)
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func p95(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
