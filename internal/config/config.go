// Package config loads hybridrec settings from defaults, a JSON config file,
// an optional .env file and HYBRIDREC_ environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/localrivet/configurator"

	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/recommender"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Config represents the hybridrec configuration
type Config struct {
	// Store contains storage-related configuration.
	Store struct {
		// SQLitePath is the path to the SQLite artifact database.
		SQLitePath string `json:"sqlite_path" env:"SQLITE_PATH" validate:"required"`
	} `json:"store"`

	// Encoder contains query encoder configuration.
	Encoder struct {
		// Provider is the primary embedding provider ("openai", "google", "http" or "mock").
		Provider string `json:"provider" env:"ENCODER_PROVIDER" validate:"required"`

		// Model is the provider model ID. Empty uses the provider default.
		Model string `json:"model" env:"ENCODER_MODEL"`

		// ApiKey is the API key for the primary provider.
		ApiKey string `json:"api_key" env:"ENCODER_API_KEY"`

		// BaseURL overrides the provider endpoint.
		BaseURL string `json:"base_url" env:"ENCODER_BASE_URL"`

		// Dimensions is the width of the semantic space.
		Dimensions int `json:"dimensions" env:"ENCODER_DIMENSIONS" validate:"min:1"`

		// Fallbacks is a comma separated list of providers tried in order.
		Fallbacks string `json:"fallbacks" env:"ENCODER_FALLBACKS"`

		TimeoutSeconds    int     `json:"timeout_seconds" env:"ENCODER_TIMEOUT_SECONDS" validate:"min:1"`
		MaxRetries        int     `json:"max_retries" env:"ENCODER_MAX_RETRIES"`
		RetryDelayMillis  int     `json:"retry_delay_ms" env:"ENCODER_RETRY_DELAY_MS"`
		CacheCapacity     int     `json:"cache_capacity" env:"ENCODER_CACHE_CAPACITY"`
		CacheTTLMinutes   int     `json:"cache_ttl_minutes" env:"ENCODER_CACHE_TTL_MINUTES"`
		RequestsPerSecond float64 `json:"requests_per_second" env:"ENCODER_REQUESTS_PER_SECOND"`
		Burst             int     `json:"burst" env:"ENCODER_BURST"`

		// BatchSize is the number of titles encoded per call during import.
		BatchSize int `json:"batch_size" env:"ENCODER_BATCH_SIZE" validate:"min:1"`
	} `json:"encoder"`

	// Recommender holds the default per-request options.
	Recommender struct {
		KUse                int `json:"k_use" env:"K_USE" validate:"min:1"`
		KMF                 int `json:"k_mf" env:"K_MF" validate:"min:1"`
		NToRecommend        int `json:"n_to_recommend" env:"N_TO_RECOMMEND" validate:"min:1"`
		UseBufferMultiplier int `json:"use_buffer_multiplier" env:"USE_BUFFER_MULTIPLIER" validate:"min:1"`
		MFBufferMultiplier  int `json:"mf_buffer_multiplier" env:"MF_BUFFER_MULTIPLIER" validate:"min:1"`
	} `json:"recommender"`

	// Server contains the public surface configuration.
	Server struct {
		// Name is reported to MCP clients.
		Name string `json:"name" env:"SERVER_NAME" validate:"required"`

		// HTTPAddr enables the HTTP API when non-empty.
		HTTPAddr string `json:"http_addr" env:"HTTP_ADDR"`

		// Stdio enables the MCP stdio transport.
		Stdio bool `json:"stdio" env:"STDIO"`
	} `json:"server"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// Internal state (not saved to config file)
	configPath string       `json:"-"`
	mutex      sync.RWMutex `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename = ".hybridrecconfig"
	DefaultEnvFilename    = ".env"
	DefaultSQLitePath     = "hybridrec.db"
	DefaultServerName     = "hybridrec"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	EnvPrefix             = "HYBRIDREC"
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	config := &Config{}
	config.Store.SQLitePath = DefaultSQLitePath

	config.Encoder.Provider = "mock"
	config.Encoder.Dimensions = vector.DefaultEmbeddingDimensions
	config.Encoder.TimeoutSeconds = int(encoder.DefaultTimeout / time.Second)
	config.Encoder.MaxRetries = encoder.DefaultMaxRetries
	config.Encoder.RetryDelayMillis = int(encoder.DefaultRetryDelay / time.Millisecond)
	config.Encoder.CacheCapacity = encoder.DefaultCacheCapacity
	config.Encoder.CacheTTLMinutes = int(encoder.DefaultCacheTTL / time.Minute)
	config.Encoder.BatchSize = vector.DefaultBatchSize

	def := recommender.DefaultOptions()
	config.Recommender.KUse = def.KUse
	config.Recommender.KMF = def.KMF
	config.Recommender.NToRecommend = def.NToRecommend
	config.Recommender.UseBufferMultiplier = def.UseBufferMultiplier
	config.Recommender.MFBufferMultiplier = def.MFBufferMultiplier

	config.Server.Name = DefaultServerName
	config.Server.Stdio = true

	config.Logging.Level = DefaultLogLevel
	config.Logging.Format = DefaultLogFormat
	return config
}

// LoadConfig loads the configuration from the default paths
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename, DefaultEnvFilename)
}

// LoadConfigWithPath loads the configuration from a specific file. envFile,
// when set, is read into the process environment first; a missing file is
// not an error.
func LoadConfigWithPath(configPath, envFile string) (*Config, error) {
	stdLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := NewConfig()

	if configPath == DefaultConfigFilename {
		if foundPath, err := configurator.FindConfigFile(configPath); err == nil {
			configPath = foundPath
			stdLogger.Debug("Found config file at " + foundPath)
		}
	}

	loader := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider())

	if _, err := os.Stat(configPath); err == nil {
		stdLogger.Info("Loading configuration", "path", configPath)
		loader = loader.WithProvider(configurator.NewFileProvider(configPath))
	} else {
		stdLogger.Debug("Config file not found, using defaults and environment", "path", configPath)
	}

	loader = loader.
		WithProvider(configurator.NewEnvProvider(EnvPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	if err := loader.Load(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.configPath = configPath

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path

	return nil
}

// GetConfigPath returns the path of the currently loaded configuration file
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// RecommenderOptions returns the configured default request options.
func (c *Config) RecommenderOptions() recommender.Options {
	return recommender.Options{
		KUse:                c.Recommender.KUse,
		KMF:                 c.Recommender.KMF,
		NToRecommend:        c.Recommender.NToRecommend,
		UseBufferMultiplier: c.Recommender.UseBufferMultiplier,
		MFBufferMultiplier:  c.Recommender.MFBufferMultiplier,
	}
}

// EncoderConfig converts the encoder section. Fallback providers share the
// primary API key and base URL unless they are overridden in the environment
// as HYBRIDREC_<NAME>_API_KEY and HYBRIDREC_<NAME>_BASE_URL.
func (c *Config) EncoderConfig() encoder.Config {
	e := c.Encoder
	cfg := encoder.Config{
		Provider:          e.Provider,
		ModelID:           e.Model,
		APIKey:            e.ApiKey,
		BaseURL:           e.BaseURL,
		Dimensions:        e.Dimensions,
		Timeout:           time.Duration(e.TimeoutSeconds) * time.Second,
		MaxRetries:        e.MaxRetries,
		RetryDelay:        time.Duration(e.RetryDelayMillis) * time.Millisecond,
		CacheCapacity:     e.CacheCapacity,
		CacheTTL:          time.Duration(e.CacheTTLMinutes) * time.Minute,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
	}

	for _, name := range c.FallbackProviders() {
		fb := encoder.FallbackConfig{Name: name, APIKey: e.ApiKey, BaseURL: e.BaseURL}
		upper := strings.ToUpper(name)
		if key := os.Getenv(EnvPrefix + "_" + upper + "_API_KEY"); key != "" {
			fb.APIKey = key
		}
		if url := os.Getenv(EnvPrefix + "_" + upper + "_BASE_URL"); url != "" {
			fb.BaseURL = url
		}
		cfg.Fallbacks = append(cfg.Fallbacks, fb)
	}
	return cfg
}

// FallbackProviders returns the configured fallback provider names.
func (c *Config) FallbackProviders() []string {
	var names []string
	for _, name := range strings.Split(c.Encoder.Fallbacks, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && name != c.Encoder.Provider {
			names = append(names, name)
		}
	}
	return names
}
