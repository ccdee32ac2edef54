// Package hybridrec wires the hybrid recommender together: it loads the
// precomputed artifacts from SQLite, builds the query encoder and serves
// recommendations over MCP and HTTP.
package hybridrec

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/artifactstore"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/config"
	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/recommender"
	"github.com/localrivet/hybridrec/internal/server"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Config represents the configuration for the hybridrec service.
type Config = config.Config

// Options are the per-request recommendation options.
type Options = recommender.Options

// Item is a recommended catalog entry.
type Item = catalog.Item

// ScoredItem is a catalog entry with its collaborative distance.
type ScoredItem = recommender.ScoredItem

// Components are the long-lived dependencies of a Server.
type Components struct {
	Store   artifactstore.Store
	Encoder vector.Embedder
	Metrics *telemetry.MetricsCollector
}

// Server represents the hybridrec service.
type Server struct {
	config      *config.Config
	components  *Components
	recommender *recommender.Recommender
	toolServers []server.ToolServer
	logger      *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	EnvFile    string       // Optional .env file read before the environment provider.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.

	// Encoder replaces the encoder built from configuration.
	Encoder vector.Embedder

	// Bundle replaces the artifacts loaded from the store.
	Bundle *artifacts.Bundle
}

// NewServer creates a new hybridrec Server with the given options. Missing
// artifacts do not prevent start-up: requests fail with a missing artifact
// error until data has been imported and the server restarted.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	switch {
	case opts.Config != nil:
		cfg = opts.Config
		logger.Info("Using provided Config object for server initialization")
	case opts.ConfigPath != "":
		logger.Info("Loading configuration for server initialization", "path", opts.ConfigPath)
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath, opts.EnvFile)
		if err != nil {
			logger.Error("Failed to load configuration from path", "path", opts.ConfigPath, "error", err)
			return nil, errortypes.ConfigError(err, "Failed to load configuration from path: "+opts.ConfigPath)
		}
	default:
		logger.Warn("No Config object or ConfigPath provided, using default configuration")
		cfg = DefaultConfig()
	}

	components, err := createComponents(cfg, logger, opts.Encoder)
	if err != nil {
		return nil, err
	}

	bundle := opts.Bundle
	if bundle == nil {
		bundle, err = components.Store.Load(context.Background())
		switch {
		case errortypes.IsMissingArtifact(err):
			logger.Warn("Artifacts are not loaded; run the import command first", "error", err)
		case err != nil:
			components.Store.Close()
			return nil, err
		default:
			stats := bundle.Stats()
			logger.Info("Artifacts loaded",
				"items", stats.Items,
				"interacted_items", stats.InteractedItems,
				"semantic_dim", stats.SemanticDim,
				"collaborative_dim", stats.CollaborativeDim)
		}
	}

	defaults := cfg.RecommenderOptions()
	if err := defaults.Validate(); err != nil {
		components.Store.Close()
		return nil, err
	}

	rec := recommender.New(bundle, components.Encoder,
		recommender.WithDefaults(defaults),
		recommender.WithMetrics(components.Metrics),
		recommender.WithLogger(logger.With("component", "recommender")))

	s := &Server{
		config:      cfg,
		components:  components,
		recommender: rec,
		logger:      logger,
	}

	if cfg.Server.Stdio {
		s.toolServers = append(s.toolServers, server.NewToolServer(cfg.Server.Name, rec, logger))
	}
	if cfg.Server.HTTPAddr != "" {
		httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, rec, components.Metrics, logger)
		if hr, ok := components.Encoder.(server.HealthReporter); ok {
			httpServer.SetHealthReporter(hr)
		}
		s.toolServers = append(s.toolServers, httpServer)
	}
	for _, ts := range s.toolServers {
		if err := ts.Initialize(); err != nil {
			components.Store.Close()
			return nil, errortypes.ConfigError(err, "Failed to initialize tool server")
		}
	}

	logger.Info("hybridrec server successfully initialized", "transports", len(s.toolServers))
	return s, nil
}

// DefaultConfig returns the default configuration for the hybridrec service.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// Start serves every configured transport and blocks until one of them
// exits. The remaining transports are then stopped.
func (s *Server) Start() error {
	if len(s.toolServers) == 0 {
		return errortypes.ConfigError(errors.New("no transport enabled"), "nothing to serve")
	}

	s.logger.Info("Starting hybridrec service")

	var g errgroup.Group
	var once sync.Once
	for _, ts := range s.toolServers {
		g.Go(func() error {
			err := ts.Start()
			once.Do(func() {
				for _, other := range s.toolServers {
					if other != ts {
						if stopErr := other.Stop(); stopErr != nil {
							s.logger.Error("Error stopping transport", "error", stopErr)
						}
					}
				}
			})
			return err
		})
	}
	return g.Wait()
}

// Stop stops the transports and closes the store.
func (s *Server) Stop() error {
	s.logger.Info("Stopping hybridrec service")

	var errs []error
	for _, ts := range s.toolServers {
		if err := ts.Stop(); err != nil {
			s.logger.Error("Error stopping tool server", "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.Info("Closing store")
	if err := s.components.Store.Close(); err != nil {
		s.logger.Error("Failed to close store", "error", err)
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		s.logger.Info("hybridrec service stopped")
	}
	return errors.Join(errs...)
}

// Recommend returns up to opts.NToRecommend items for a free-text query.
// Zero option fields take the configured defaults.
func (s *Server) Recommend(ctx context.Context, query string, opts Options) ([]Item, error) {
	return s.recommender.Recommend(ctx, query, opts)
}

// SimilarItems returns the k items closest to item in the collaborative space.
func (s *Server) SimilarItems(ctx context.Context, item, k int) ([]ScoredItem, error) {
	return s.recommender.SimilarItems(ctx, item, k)
}

// Stats describes the loaded artifacts.
func (s *Server) Stats() artifacts.Stats {
	return s.recommender.Bundle().Stats()
}

// Metrics returns the metrics shared by the store, encoder and recommender.
func (s *Server) Metrics() *telemetry.MetricsCollector {
	return s.components.Metrics
}

// GetStore returns the artifact store used by the server.
func (s *Server) GetStore() artifactstore.Store {
	return s.components.Store
}

// GetEncoder returns the query encoder used by the server.
func (s *Server) GetEncoder() vector.Embedder {
	return s.components.Encoder
}

// CreateComponents opens the artifact store and builds the query encoder
// described by cfg, without creating a server. The import command uses it
// directly.
func CreateComponents(cfg *Config, logger *slog.Logger) (*Components, error) {
	return createComponents(cfg, logger, nil)
}

func createComponents(cfg *Config, logger *slog.Logger, enc vector.Embedder) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	metrics := telemetry.NewMetricsCollector()

	logger.Info("Initializing SQLite artifact store", "path", cfg.Store.SQLitePath)
	store := artifactstore.NewSQLiteStore(metrics)
	if err := store.Initialize(cfg.Store.SQLitePath); err != nil {
		logger.Error("Failed to initialize SQLite artifact store", "path", cfg.Store.SQLitePath, "error", err)
		return nil, err
	}

	if enc == nil {
		enc = newEncoder(cfg, metrics, logger)
	}

	if err := enc.Initialize(); err != nil {
		logger.Error("Failed to initialize encoder", "error", err)
		store.Close()
		return nil, errortypes.ConfigError(err, "Failed to initialize encoder")
	}

	logger.Info("Components successfully initialized")
	return &Components{Store: store, Encoder: enc, Metrics: metrics}, nil
}

func newEncoder(cfg *Config, metrics *telemetry.MetricsCollector, logger *slog.Logger) vector.Embedder {
	dimensions := cfg.Encoder.Dimensions
	if dimensions <= 0 {
		dimensions = vector.DefaultEmbeddingDimensions
	}

	logger.Info("Initializing encoder", "provider", cfg.Encoder.Provider, "dimensions", dimensions)

	switch cfg.Encoder.Provider {
	case "mock", "":
		return vector.NewMockEmbedder(dimensions)
	default:
		encCfg := cfg.EncoderConfig()
		encCfg.Dimensions = dimensions
		return encoder.New(encCfg,
			encoder.WithMetrics(metrics),
			encoder.WithLogger(logger.With("component", "encoder")))
	}
}
