package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/localrivet/hybridrec/internal/telemetry"
)

// Version is reported in health reports.
var Version = "dev"

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	// StatusHealthy indicates a component is fully operational
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded indicates a component is operational but with reduced capability
	StatusDegraded HealthStatus = "degraded"

	// StatusUnhealthy indicates a component is not operational
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthReport contains information about the current health of the encoder
type HealthReport struct {
	Status        HealthStatus       `json:"status"`
	Timestamp     time.Time          `json:"timestamp"`
	Components    map[string]string  `json:"components"`
	Providers     map[string]bool    `json:"providers"`
	ResponseTimes map[string]float64 `json:"response_times_ms"`
	CacheStats    map[string]int64   `json:"cache_stats"`
	SuccessRate   float64            `json:"success_rate"`
	TotalRequests int64              `json:"total_requests"`
	Version       string             `json:"version"`
}

// CreateHealthReport checks every provider and summarises the encoder metrics
func CreateHealthReport(ctx context.Context, enc *ResilientEncoder) (*HealthReport, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder is nil")
	}

	m := enc.Metrics()
	if m == nil {
		return nil, fmt.Errorf("metrics collector is nil")
	}

	providerHealth := enc.CheckProviderHealth(ctx)

	status := StatusHealthy
	working := 0
	for _, ok := range providerHealth {
		if ok {
			working++
		}
	}
	if working == 0 {
		status = StatusUnhealthy
	} else if working < len(providerHealth) {
		status = StatusDegraded
	}

	totalSuccess := m.GetCounter(telemetry.MetricAPICallsSuccess)
	totalFailure := m.GetCounter(telemetry.MetricAPICallsFailure)
	totalRequests := totalSuccess + totalFailure

	var successRate float64
	if totalRequests > 0 {
		successRate = float64(totalSuccess) / float64(totalRequests) * 100.0
	}

	responseTimes := make(map[string]float64, len(providerHealth))
	for name := range providerHealth {
		avg := m.GetTimerAverage(telemetry.MetricResponseTimePrefix + name)
		responseTimes[name] = float64(avg) / float64(time.Millisecond)
	}

	cacheStats := map[string]int64{
		"hits":   m.GetCounter(telemetry.MetricCacheHits),
		"misses": m.GetCounter(telemetry.MetricCacheMisses),
		"size":   int64(m.GetGauge(telemetry.MetricCacheSize)),
	}

	components := map[string]string{
		"cache":     string(StatusHealthy),
		"primary":   string(StatusUnhealthy),
		"fallbacks": string(StatusUnhealthy),
	}
	primary := enc.primaryName()
	for name, healthy := range providerHealth {
		if !healthy {
			continue
		}
		if name == primary {
			components["primary"] = string(StatusHealthy)
		} else {
			components["fallbacks"] = string(StatusHealthy)
		}
	}

	return &HealthReport{
		Status:        status,
		Timestamp:     time.Now(),
		Components:    components,
		Providers:     providerHealth,
		ResponseTimes: responseTimes,
		CacheStats:    cacheStats,
		SuccessRate:   successRate,
		TotalRequests: totalRequests,
		Version:       Version,
	}, nil
}

// Health reports the state of every provider in the chain.
func (e *ResilientEncoder) Health(ctx context.Context) (*HealthReport, error) {
	return CreateHealthReport(ctx, e)
}

// CreateHealthReportJSON generates a JSON health report for the encoder
func CreateHealthReportJSON(ctx context.Context, enc *ResilientEncoder) (string, error) {
	report, err := CreateHealthReport(ctx, enc)
	if err != nil {
		return "", err
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal health report: %w", err)
	}

	return string(reportJSON), nil
}
