package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/recommender"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/tools"
)

const (
	maxRequestBody = 1 << 20
	healthTimeout  = 10 * time.Second
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string              `json:"status"`
	Ready    bool                `json:"ready"`
	Error    string              `json:"error,omitempty"`
	Metrics  telemetry.Snapshot  `json:"metrics"`
	Uptime   string              `json:"uptime"`
	Defaults recommender.Options `json:"defaults"`

	// Encoder is set when the encoder reports provider health.
	Encoder *encoder.HealthReport `json:"encoder,omitempty"`
}

// HTTPServer serves the recommender over a JSON HTTP API:
//
//	POST /recommend          body: tools.RecommendRequest
//	GET  /similar/{item}     query: limit
//	GET  /stats
//	GET  /healthz
type HTTPServer struct {
	addr    string
	service RecommendationService
	metrics *telemetry.MetricsCollector
	logger  *slog.Logger
	health  HealthReporter
	timeout time.Duration
	started time.Time
	srv     *http.Server
}

var _ ToolServer = (*HTTPServer)(nil)

// NewHTTPServer creates an HTTP server listening on addr. metrics may be nil.
func NewHTTPServer(addr string, service RecommendationService, metrics *telemetry.MetricsCollector, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		addr:    addr,
		service: service,
		metrics: metrics,
		timeout: DefaultRequestTimeout,
		logger:  logger.With("component", "http"),
	}
}

// SetHealthReporter adds the encoder's provider health to GET /healthz.
func (s *HTTPServer) SetHealthReporter(h HealthReporter) {
	s.health = h
}

// Initialize builds the router.
func (s *HTTPServer) Initialize() error {
	if s.service == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}
	s.started = time.Now()
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler returns the API routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /recommend", s.handleRecommend)
	mux.HandleFunc("GET /similar/{item}", s.handleSimilar)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start serves until Stop is called.
func (s *HTTPServer) Start() error {
	if s.srv == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}
	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting up to five seconds for open requests.
func (s *HTTPServer) Stop() error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req tools.RecommendRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, NewErrorWithStatus(err, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge,
				"Request body is too large"), http.StatusRequestEntityTooLarge)
			return
		}
		HandleBadRequest(w, "Request body must be a JSON object", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	items, err := runRecommend(ctx, s.service, s.logger, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = NewErrorWithStatus(err, http.StatusGatewayTimeout, ErrorCodeTimeout, "Recommendation timed out")
		}
		HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tools.RecommendResponse{Status: tools.StatusSuccess, Items: items})
}

func (s *HTTPServer) handleSimilar(w http.ResponseWriter, r *http.Request) {
	item, err := strconv.Atoi(r.PathValue("item"))
	if err != nil {
		HandleBadRequest(w, "Item must be an integer index", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			HandleBadRequest(w, "Limit must be an integer", err)
			return
		}
	}

	resp := similarItems(r.Context(), s.service, s.logger, tools.SimilarItemsRequest{Item: item, Limit: limit})
	if resp.Status == tools.StatusError {
		writeJSON(w, statusForCode(resp.Code), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := catalogStats(s.service)
	if resp.Status == tools.StatusError {
		writeJSON(w, statusForCode(resp.Code), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Ready:    true,
		Metrics:  s.metrics.Snapshot(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Defaults: s.service.Defaults(),
	}

	status := http.StatusOK
	unavailable := func(msg string) {
		resp.Status = "unavailable"
		resp.Ready = false
		if resp.Error == "" {
			resp.Error = msg
		}
		status = http.StatusServiceUnavailable
	}

	if err := s.service.Bundle().Validate(); err != nil {
		unavailable(err.Error())
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		report, err := s.health.Health(ctx)
		cancel()
		switch {
		case err != nil:
			s.logger.Warn("Encoder health check failed", "error", err)
			unavailable("encoder health check failed: " + err.Error())
		case report.Status == encoder.StatusUnhealthy:
			resp.Encoder = report
			unavailable("no encoder provider is reachable")
		default:
			resp.Encoder = report
			if report.Status == encoder.StatusDegraded && resp.Ready {
				resp.Status = string(encoder.StatusDegraded)
			}
		}
	}
	writeJSON(w, status, resp)
}

// statusForCode maps an in-band error code to the HTTP status HandleError
// would choose for the same kind.
func statusForCode(code string) int {
	switch code {
	case StatusCodeInvalidInput, StatusCodeInvalidConfiguration, StatusCodeEmptyQuery, StatusCodeDimensionMismatch:
		return http.StatusBadRequest
	case StatusCodeMissingArtifact:
		return http.StatusServiceUnavailable
	case StatusCodeEncodingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
