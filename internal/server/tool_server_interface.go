// Package server exposes the recommender over MCP tools and a small HTTP API.
package server

import (
	"context"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/recommender"
)

// ToolServer defines the lifecycle of a transport that serves the
// recommendation tools to clients.
type ToolServer interface {
	// Initialize registers handlers and validates dependencies.
	Initialize() error

	// Start serves requests until the transport closes.
	Start() error

	// Stop gracefully shuts down the transport.
	Stop() error
}

// RecommendationService is what the transports need from the recommender.
// *recommender.Recommender satisfies it.
type RecommendationService interface {
	Recommend(ctx context.Context, query string, opts recommender.Options) ([]catalog.Item, error)
	SimilarItems(ctx context.Context, item int, k int) ([]recommender.ScoredItem, error)
	Defaults() recommender.Options
	Bundle() *artifacts.Bundle
}

var _ RecommendationService = (*recommender.Recommender)(nil)

// HealthReporter reports the state of the query encoder for GET /healthz.
type HealthReporter interface {
	Health(ctx context.Context) (*encoder.HealthReport, error)
}

var _ HealthReporter = (*encoder.ResilientEncoder)(nil)
