package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// BuildSemantic encodes every catalog title with embedder and stacks the
// results into the semantic matrix, row i being item i.
func BuildSemantic(ctx context.Context, embedder vector.Embedder, cat *catalog.Catalog, batchSize int, logger *slog.Logger) (*vector.Matrix, error) {
	if embedder == nil {
		return nil, errortypes.EncodingError(errors.New("no encoder configured"), "cannot build semantic embeddings")
	}
	if cat.Len() == 0 {
		return nil, errortypes.MissingArtifactError(errors.New("catalog is empty"), "cannot build semantic embeddings")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	start := time.Now()
	titles := cat.Titles()

	vecs, err := encoder.EncodeBatches(ctx, embedder, titles, batchSize)
	if err != nil {
		return nil, err
	}

	m, err := vector.NewMatrixFromRows(vecs)
	if err != nil {
		return nil, errortypes.EncodingError(err, "encoder returned inconsistent vectors")
	}

	logger.Info("Encoded item titles",
		"items", m.Rows(),
		"dimensions", m.Dim(),
		"duration", time.Since(start))
	return m, nil
}
