package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/localrivet/hybridrec/internal/encoder/providers"
	"github.com/localrivet/hybridrec/internal/telemetry"
)

func TestCreateHealthReport(t *testing.T) {
	enc := New(fastConfig(), WithProvider(providers.NewTestProvider("primary", []float32{1}, nil)))

	m := enc.Metrics()
	m.IncrementCounter(telemetry.MetricAPICallsSuccess, 80)
	m.IncrementCounter(telemetry.MetricAPICallsFailure, 20)
	m.IncrementCounter(telemetry.MetricCacheHits, 50)
	m.IncrementCounter(telemetry.MetricCacheMisses, 100)
	m.SetGauge(telemetry.MetricCacheSize, 75)
	m.RecordTimer(telemetry.MetricResponseTimePrefix+"primary", 500*time.Millisecond)

	report, err := CreateHealthReport(context.Background(), enc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if report.Status != StatusHealthy {
		t.Errorf("Expected status to be healthy, got %s", report.Status)
	}
	if report.TotalRequests != 100 {
		t.Errorf("Expected 100 total requests, got %d", report.TotalRequests)
	}
	if report.SuccessRate != 80.0 {
		t.Errorf("Expected 80%% success rate, got %.1f%%", report.SuccessRate)
	}
	if report.CacheStats["hits"] != 50 || report.CacheStats["misses"] != 100 || report.CacheStats["size"] != 75 {
		t.Errorf("Unexpected cache stats %v", report.CacheStats)
	}
	if report.ResponseTimes["primary"] != 500 {
		t.Errorf("Expected 500ms response time, got %v", report.ResponseTimes["primary"])
	}
	if report.Components["primary"] != string(StatusHealthy) {
		t.Errorf("Expected healthy primary, got %s", report.Components["primary"])
	}
	if got := m.GetGauge(telemetry.MetricProviderHealthPrefix + "primary"); got != 1 {
		t.Errorf("health gauge = %v, want 1", got)
	}
}

func TestCreateHealthReportDegraded(t *testing.T) {
	enc := New(fastConfig(),
		WithProvider(providers.NewTestProvider("primary", nil, errors.New("down"))),
		WithFallbacks(providers.NewTestProvider("backup", []float32{1}, nil)))

	report, err := enc.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", report.Status)
	}
	if report.Components["primary"] != string(StatusUnhealthy) || report.Components["fallbacks"] != string(StatusHealthy) {
		t.Errorf("Unexpected components %v", report.Components)
	}
}

func TestCreateHealthReportUnhealthy(t *testing.T) {
	enc := New(fastConfig(), WithProvider(providers.NewTestProvider("primary", nil, errors.New("down"))))

	report, err := CreateHealthReport(context.Background(), enc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", report.Status)
	}
	if report.SuccessRate != 0 {
		t.Errorf("Expected zero success rate without requests, got %v", report.SuccessRate)
	}
}

func TestCreateHealthReportJSON(t *testing.T) {
	enc := New(fastConfig(), WithProvider(providers.NewTestProvider("primary", []float32{1}, nil)))

	out, err := CreateHealthReportJSON(context.Background(), enc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	for _, field := range []string{"status", "providers", "cache_stats", "version"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("Missing field %q", field)
		}
	}

	if _, err := CreateHealthReport(context.Background(), nil); err == nil {
		t.Error("Expected error for nil encoder")
	}
}
