package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/localrivet/hybridrec/internal/artifactstore"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Sources names the input files of an import. Semantic is optional: when
// empty, titles are encoded with the configured embedder.
type Sources struct {
	Items         string
	Interactions  string
	Semantic      string
	Collaborative string
}

// Importer validates CSV sources and writes them to an artifact store.
type Importer struct {
	Store     artifactstore.Store
	Embedder  vector.Embedder
	BatchSize int
	Logger    *slog.Logger
}

// Import reads every source, checks that all artifacts describe the same
// items, and replaces the store contents.
func (im *Importer) Import(ctx context.Context, src Sources) (artifactstore.Stats, error) {
	logger := im.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if im.Store == nil {
		return artifactstore.Stats{}, errortypes.InternalError(errors.New("no store"), "import is not configured")
	}

	items, err := ReadFile(src.Items, ReadItems)
	if err != nil {
		return artifactstore.Stats{}, err
	}
	cat, err := catalog.New(items)
	if err != nil {
		return artifactstore.Stats{}, errortypes.SchemaError(err, "item ids must be 0..N-1").WithField("path", src.Items)
	}
	n := cat.Len()
	logger.Info("Read items", "path", src.Items, "items", n)

	interactions, err := ReadFile(src.Interactions, ReadInteractions)
	if err != nil {
		return artifactstore.Stats{}, err
	}
	for _, row := range interactions {
		if row.Item >= n {
			return artifactstore.Stats{}, errortypes.Newf(errortypes.ErrorTypeSchema, "invalid input file",
				"interaction for user %q references item %d outside catalog of %d", row.User, row.Item, n).
				WithField("path", src.Interactions)
		}
	}
	logger.Info("Read interactions", "path", src.Interactions, "pairs", len(interactions))

	collab, err := ReadFile(src.Collaborative, ReadEmbeddings)
	if err != nil {
		return artifactstore.Stats{}, err
	}
	if err := checkRows(collab, n, src.Collaborative); err != nil {
		return artifactstore.Stats{}, err
	}

	var semantic *vector.Matrix
	if src.Semantic != "" {
		semantic, err = ReadFile(src.Semantic, ReadEmbeddings)
	} else {
		semantic, err = BuildSemantic(ctx, im.Embedder, cat, im.BatchSize, logger)
	}
	if err != nil {
		return artifactstore.Stats{}, err
	}
	if err := checkRows(semantic, n, src.Semantic); err != nil {
		return artifactstore.Stats{}, err
	}

	err = im.Store.PutSnapshot(ctx, artifactstore.Snapshot{
		Items:         cat.Items(),
		Interactions:  interactions,
		Semantic:      semantic,
		Collaborative: collab,
	})
	if err != nil {
		return artifactstore.Stats{}, err
	}

	stats, err := im.Store.Stats(ctx)
	if err != nil {
		return stats, err
	}
	logger.Info("Import complete",
		"items", stats.Items,
		"interactions", stats.Interactions,
		"semantic_dim", semantic.Dim(),
		"collaborative_dim", collab.Dim())
	return stats, nil
}

func checkRows(m *vector.Matrix, n int, path string) error {
	if m.Rows() != n {
		return errortypes.Newf(errortypes.ErrorTypeSchema, "invalid input file",
			"matrix has %d rows, catalog has %d items", m.Rows(), n).WithField("path", path)
	}
	return nil
}
