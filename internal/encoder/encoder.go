// Package encoder turns query and item text into embedding vectors using a
// remote provider, with retries, provider fallback, caching and client-side
// rate limiting.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/localrivet/hybridrec/internal/encoder/providers"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/util"
	"github.com/localrivet/hybridrec/internal/vector"
)

const (
	// Default settings
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = 24 * time.Hour

	healthCheckText    = "health check"
	healthCheckTimeout = 5 * time.Second
)

// FallbackConfig names a provider to try when the primary one fails
type FallbackConfig struct {
	Name    string
	ModelID string
	APIKey  string
	BaseURL string
}

// Config holds configuration for the ResilientEncoder
type Config struct {
	Provider   string
	ModelID    string
	APIKey     string
	BaseURL    string
	Dimensions int

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	CacheCapacity int
	CacheTTL      time.Duration

	// RequestsPerSecond limits provider calls. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	Fallbacks []FallbackConfig
}

// ResilientEncoder implements vector.Embedder on top of remote providers.
// It is safe for concurrent use.
type ResilientEncoder struct {
	cfg       Config
	provider  providers.Provider
	fallbacks []providers.Provider
	cache     *embeddingCache
	limiter   *rate.Limiter
	metrics   *telemetry.MetricsCollector
	logger    *slog.Logger

	initialized bool
	mu          sync.RWMutex
}

var _ vector.Embedder = (*ResilientEncoder)(nil)

// Option configures a ResilientEncoder
type Option func(*ResilientEncoder)

// WithProvider sets the primary provider instead of building it from Config
func WithProvider(p providers.Provider) Option {
	return func(e *ResilientEncoder) { e.provider = p }
}

// WithFallbacks sets the fallback chain instead of building it from Config
func WithFallbacks(ps ...providers.Provider) Option {
	return func(e *ResilientEncoder) { e.fallbacks = ps }
}

// WithMetrics shares a metrics collector with other components
func WithMetrics(m *telemetry.MetricsCollector) Option {
	return func(e *ResilientEncoder) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the logger for retry and fallback events
func WithLogger(l *slog.Logger) Option {
	return func(e *ResilientEncoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a ResilientEncoder. Zero settings take their defaults.
func New(cfg Config, opts ...Option) *ResilientEncoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	e := &ResilientEncoder{
		cfg:     cfg,
		cache:   newEmbeddingCache(cfg.CacheCapacity, cfg.CacheTTL),
		limiter: rate.NewLimiter(limit, burst),
		metrics: telemetry.NewMetricsCollector(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize builds the provider chain from Config unless a provider was injected.
func (e *ResilientEncoder) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	if e.provider == nil {
		configs := map[string]providers.Config{
			e.cfg.Provider: {
				APIKey:     e.cfg.APIKey,
				ModelID:    e.cfg.ModelID,
				BaseURL:    e.cfg.BaseURL,
				Dimensions: e.cfg.Dimensions,
				Timeout:    e.cfg.Timeout,
			},
		}
		var order []string
		for _, fb := range e.cfg.Fallbacks {
			if fb.Name == "" || fb.Name == e.cfg.Provider {
				continue
			}
			configs[fb.Name] = providers.Config{
				APIKey:     fb.APIKey,
				ModelID:    fb.ModelID,
				BaseURL:    fb.BaseURL,
				Dimensions: e.cfg.Dimensions,
				Timeout:    e.cfg.Timeout,
			}
			order = append(order, fb.Name)
		}

		factory := providers.NewProviderFactory(configs)
		primary, err := factory.GetProvider(e.cfg.Provider)
		if err != nil {
			return errortypes.InvalidConfigurationError(err, "failed to create primary encoder provider")
		}
		e.provider = primary
		e.fallbacks = factory.GetProviderChain(order, e.cfg.Provider)
	}

	e.initialized = true
	e.logger.Debug("encoder initialized", "provider", e.provider.Name(), "fallbacks", len(e.fallbacks))
	return nil
}

// Dimensions returns the configured vector width, or zero when the provider decides.
func (e *ResilientEncoder) Dimensions() int {
	return e.cfg.Dimensions
}

// Metrics returns the metrics collector for this encoder
func (e *ResilientEncoder) Metrics() *telemetry.MetricsCollector {
	return e.metrics
}

// CreateEmbedding encodes a single text.
func (e *ResilientEncoder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed encodes texts, serving repeated texts from the cache. The result is
// aligned with texts. Any failure is reported as an encoding error.
func (e *ResilientEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ensureInitialized(); err != nil {
		return nil, errortypes.EncodingError(err, "encoder not available")
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := e.cache.get(e.cacheKey(text)); ok {
			e.metrics.IncrementCounter(telemetry.MetricCacheHits, 1)
			out[i] = v
			continue
		}
		e.metrics.IncrementCounter(telemetry.MetricCacheMisses, 1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, fromPrimary, err := e.embedWithFallback(ctx, missTexts)
	if err != nil {
		return nil, errortypes.EncodingError(err, "failed to encode text")
	}

	for j, v := range vecs {
		if e.cfg.Dimensions > 0 && len(v) != e.cfg.Dimensions {
			return nil, errortypes.EncodingError(
				errortypes.DimensionMismatchError(e.cfg.Dimensions, len(v), "provider returned unexpected vector width"),
				"failed to encode text")
		}
		// Cache keys name the primary model, so only its vectors are cached.
		if fromPrimary {
			e.cache.put(e.cacheKey(missTexts[j]), v)
		}
		out[missIdx[j]] = v
	}
	e.metrics.SetGauge(telemetry.MetricCacheSize, float64(e.cache.len()))

	return out, nil
}

// CheckProviderHealth embeds a short fixed text with every provider.
func (e *ResilientEncoder) CheckProviderHealth(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	if err := e.ensureInitialized(); err != nil {
		return results
	}

	for _, p := range e.chain() {
		name := p.Name()
		if _, checked := results[name]; checked {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		_, err := p.Embed(checkCtx, []string{healthCheckText})
		cancel()

		results[name] = err == nil
		e.metrics.SetGauge(telemetry.MetricProviderHealthPrefix+name, boolToFloat64(err == nil))
	}
	return results
}

func (e *ResilientEncoder) ensureInitialized() error {
	e.mu.RLock()
	ready := e.initialized
	e.mu.RUnlock()
	if ready {
		return nil
	}
	return e.Initialize()
}

func (e *ResilientEncoder) chain() []providers.Provider {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]providers.Provider, 0, 1+len(e.fallbacks))
	out = append(out, e.provider)
	return append(out, e.fallbacks...)
}

func (e *ResilientEncoder) primaryName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.provider == nil {
		return ""
	}
	return e.provider.Name()
}

func (e *ResilientEncoder) cacheKey(text string) string {
	return util.HashKey(e.cfg.Provider, e.cfg.ModelID, text)
}

// embedWithFallback tries the primary provider and then each fallback.
// fromPrimary reports whether the primary provider answered.
func (e *ResilientEncoder) embedWithFallback(ctx context.Context, texts []string) (vecs [][]float32, fromPrimary bool, err error) {
	var lastErr error

	for i, p := range e.chain() {
		if i > 0 {
			e.metrics.IncrementCounter(telemetry.MetricFallbackAttempts, 1)
			e.logger.Warn("falling back to next encoder provider", "provider", p.Name(), "error", lastErr)
		}
		e.metrics.IncrementCounter(telemetry.MetricAPICallsPrefix+p.Name(), 1)

		start := time.Now()
		vecs, err = e.embedWithRetries(ctx, p, texts)
		if err == nil {
			e.metrics.IncrementCounter(telemetry.MetricAPICallsSuccess, 1)
			e.metrics.Since(telemetry.MetricResponseTimePrefix+p.Name(), start)
			if i > 0 {
				e.metrics.IncrementCounter(telemetry.MetricFallbackSuccess, 1)
			}
			return vecs, i == 0, nil
		}

		e.metrics.IncrementCounter(telemetry.MetricAPICallsFailure, 1)
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no encoder providers configured")
	}
	return nil, false, lastErr
}

// embedWithRetries calls one provider up to MaxRetries+1 times with a
// linearly growing delay between attempts.
func (e *ResilientEncoder) embedWithRetries(ctx context.Context, p providers.Provider, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			e.metrics.IncrementCounter(telemetry.MetricRetryAttempts, 1)
			if err := sleep(ctx, e.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		if e.limiter.Tokens() < 1 {
			e.metrics.IncrementCounter(telemetry.MetricRateLimitWaits, 1)
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		vecs, err := p.Embed(callCtx, texts)
		cancel()

		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts))
		}
		if err == nil {
			if attempt > 0 {
				e.metrics.IncrementCounter(telemetry.MetricRetrySuccess, 1)
			}
			return vecs, nil
		}

		lastErr = err
		e.logger.Debug("encoder attempt failed", "provider", p.Name(), "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// boolToFloat64 converts a boolean to a float64 (1.0 for true, 0.0 for false)
func boolToFloat64(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
