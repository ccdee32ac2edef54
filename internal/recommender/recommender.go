// Package recommender blends a semantic embedding space and a collaborative
// embedding space into one recommendation list.
//
// A request runs a fixed pipeline. The query is encoded and its semantic
// neighbours are fetched with an over-fetch buffer. Candidates without
// interaction history are dropped and the first KUse survivors become seeds.
// Each seed is expanded through its collaborative neighbours, skipping items
// already chosen. The accumulated list is truncated to NToRecommend.
package recommender

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/neighbor"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Recommender holds immutable references to loaded artifacts and is safe
// for concurrent use.
type Recommender struct {
	bundle   *artifacts.Bundle
	encoder  vector.Embedder
	defaults Options
	metrics  *telemetry.MetricsCollector
	logger   *slog.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithMetrics records request counts and stage timings on m.
func WithMetrics(m *telemetry.MetricsCollector) Option {
	return func(r *Recommender) { r.metrics = m }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recommender) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDefaults sets the options used to fill zero fields of a request.
func WithDefaults(o Options) Option {
	return func(r *Recommender) { r.defaults = o }
}

// ScoredItem is a catalog item with its distance to a query item.
type ScoredItem struct {
	catalog.Item
	Distance float32 `json:"distance"`
}

// New creates a Recommender over bundle. Missing artifacts are reported by
// each call rather than here, so a server can start before its data exists.
func New(bundle *artifacts.Bundle, encoder vector.Embedder, opts ...Option) *Recommender {
	r := &Recommender{
		bundle:   bundle,
		encoder:  encoder,
		defaults: DefaultOptions(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Defaults returns the options used to fill zero request fields.
func (r *Recommender) Defaults() Options {
	return r.defaults
}

// Bundle returns the artifacts the recommender serves.
func (r *Recommender) Bundle() *artifacts.Bundle {
	return r.bundle
}

// Recommend encodes query and returns the recommended items in generation order.
func (r *Recommender) Recommend(ctx context.Context, query string, opts Options) ([]catalog.Item, error) {
	indices, err := r.RecommendIndices(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return r.bundle.Catalog.Lookup(indices)
}

// RecommendIndices is Recommend returning item indices instead of items.
func (r *Recommender) RecommendIndices(ctx context.Context, query string, opts Options) ([]int, error) {
	start := time.Now()
	r.metrics.IncrementCounter(telemetry.MetricRecommendRequests, 1)
	r.metrics.RecordTimestamp(telemetry.MetricLastRecommendation)

	indices, err := r.recommendText(ctx, query, opts)
	r.finish(start, indices, err)
	return indices, err
}

// RecommendVector runs the pipeline for an already encoded query.
func (r *Recommender) RecommendVector(ctx context.Context, query []float32, opts Options) ([]catalog.Item, error) {
	start := time.Now()
	r.metrics.IncrementCounter(telemetry.MetricRecommendRequests, 1)

	opts = opts.WithDefaults(r.defaults)
	if err := r.precheck(opts); err != nil {
		r.finish(start, nil, err)
		return nil, err
	}
	if len(query) == 0 {
		err := errortypes.EmptyQueryError(errors.New("query vector has zero length"), "empty query")
		r.finish(start, nil, err)
		return nil, err
	}

	indices, err := r.rank(ctx, query, opts)
	r.finish(start, indices, err)
	if err != nil {
		return nil, err
	}
	return r.bundle.Catalog.Lookup(indices)
}

// SimilarItems returns the k nearest items to item in the collaborative
// space, excluding the item itself, with their Euclidean distances.
func (r *Recommender) SimilarItems(ctx context.Context, item int, k int) ([]ScoredItem, error) {
	r.metrics.IncrementCounter(telemetry.MetricSimilarRequests, 1)

	if err := r.bundle.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collab := r.bundle.Collaborative
	if item < 0 || item >= collab.Rows() {
		return nil, errortypes.Newf(errortypes.ErrorTypeInvalidInput, "unknown item",
			"item %d out of range [0, %d)", item, collab.Rows())
	}
	if k <= 0 {
		return nil, errortypes.InvalidConfigurationError(errors.New("k must be positive"), "invalid similar items request")
	}

	neighbors, err := neighbor.FindNearestWithDistances(collab.Row(item), collab, k, item)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredItem, 0, len(neighbors))
	for _, n := range neighbors {
		it, _ := r.bundle.Catalog.Get(n.Index)
		out = append(out, ScoredItem{Item: it, Distance: n.Distance})
	}
	return out, nil
}

func (r *Recommender) recommendText(ctx context.Context, query string, opts Options) ([]int, error) {
	opts = opts.WithDefaults(r.defaults)
	if err := r.precheck(opts); err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, errortypes.EmptyQueryError(errors.New("query text is empty"), "empty query")
	}
	if r.encoder == nil {
		return nil, errortypes.EncodingError(errors.New("no encoder configured"), "failed to encode query")
	}

	encodeStart := time.Now()
	vec, err := r.encoder.CreateEmbedding(ctx, query)
	r.metrics.Since(telemetry.MetricEncodeLatency, encodeStart)
	if err != nil {
		return nil, errortypes.EncodingError(err, "failed to encode query")
	}
	if len(vec) == 0 {
		return nil, errortypes.EmptyQueryError(errors.New("query encoded to a zero-length vector"), "empty query")
	}

	return r.rank(ctx, vec, opts)
}

// precheck validates options and artifacts before any work is done.
func (r *Recommender) precheck(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return r.bundle.Validate()
}

// rank runs the semantic stage, the interaction filter and the collaborative
// expansion for an encoded query.
func (r *Recommender) rank(ctx context.Context, query []float32, opts Options) ([]int, error) {
	b := r.bundle
	if len(query) != b.Semantic.Dim() {
		return nil, errortypes.DimensionMismatchError(b.Semantic.Dim(), len(query),
			"query vector width does not match the semantic embeddings")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	semanticStart := time.Now()
	n := b.Semantic.Rows()
	candidates, err := neighbor.FindNearest(query, b.Semantic, fetchSize(opts.KUse, opts.UseBufferMultiplier, n))
	if err != nil {
		return nil, err
	}

	seeds := b.Interactions.Filter(candidates)
	if len(seeds) > opts.KUse {
		seeds = seeds[:opts.KUse]
	}
	r.metrics.Since(telemetry.MetricSemanticLatency, semanticStart)
	r.metrics.IncrementCounter(telemetry.MetricRecommendSeeds, int64(len(seeds)))
	r.logger.Debug("semantic stage complete", "candidates", len(candidates), "seeds", seeds)

	expansionStart := time.Now()
	defer r.metrics.Since(telemetry.MetricExpansionLatency, expansionStart)

	collab := b.Collaborative
	queries := make([][]float32, len(seeds))
	for i, seed := range seeds {
		queries[i] = collab.Row(seed)
	}
	expanded, err := neighbor.FindNearestBatch(ctx, queries, collab, fetchSize(opts.KMF, opts.MFBufferMultiplier, collab.Rows()))
	if err != nil {
		return nil, err
	}

	limit := min(opts.NToRecommend, collab.Rows())
	recs := make([]int, 0, limit)
	chosen := make(map[int]struct{}, limit)
	for i, neighbours := range expanded {
		// Later seeds only append, so a full list cannot change.
		if len(recs) >= opts.NToRecommend {
			break
		}

		added := 0
		for _, idx := range neighbours {
			if added == opts.KMF {
				break
			}
			if _, dup := chosen[idx]; dup {
				continue
			}
			chosen[idx] = struct{}{}
			recs = append(recs, idx)
			added++
		}
		r.logger.Debug("expanded seed", "seed", seeds[i], "fetched", len(neighbours), "added", added)
	}

	if len(recs) > opts.NToRecommend {
		recs = recs[:opts.NToRecommend]
	}
	return recs, nil
}

func (r *Recommender) finish(start time.Time, indices []int, err error) {
	r.metrics.Since(telemetry.MetricRecommendLatency, start)
	if err != nil {
		r.metrics.IncrementCounter(telemetry.MetricRecommendFailures, 1)
		r.logger.Debug("recommendation failed", "error", err, "type", errortypes.TypeOf(err))
		return
	}
	r.metrics.IncrementCounter(telemetry.MetricRecommendResults, int64(len(indices)))
	if len(indices) == 0 {
		r.metrics.IncrementCounter(telemetry.MetricRecommendEmpty, 1)
	}
}
