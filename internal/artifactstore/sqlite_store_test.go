package artifactstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/telemetry"
	"github.com/localrivet/hybridrec/internal/vector"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(telemetry.NewMetricsCollector())
	require.NoError(t, store.Initialize(filepath.Join(t.TempDir(), "artifacts.db")))
	t.Cleanup(func() { store.Close() })
	return store
}

func matrix(t *testing.T, rows ...[]float32) *vector.Matrix {
	t.Helper()
	m, err := vector.NewMatrixFromRows(rows)
	require.NoError(t, err)
	return m
}

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.PutItems(ctx, []catalog.Item{
		{Index: 0, ID: "a", Title: "Alpha"},
		{Index: 1, ID: "b", Title: "Beta"},
		{Index: 2, ID: "c", Title: "Gamma"},
	}))
	require.NoError(t, store.PutInteractions(ctx, []catalog.Interaction{
		{User: "u1", Item: 0, Count: 1},
		{User: "u1", Item: 0, Count: 2},
		{User: "u2", Item: 2, Count: 1},
		{User: "u2", Item: 2, Count: -1},
	}))
	require.NoError(t, store.PutEmbeddings(ctx, artifacts.SpaceSemantic,
		matrix(t, []float32{0.1, 0.2}, []float32{float32(math.Pi), -0}, []float32{1e-30, 3.5})))
	require.NoError(t, store.PutEmbeddings(ctx, artifacts.SpaceCollaborative,
		matrix(t, []float32{1}, []float32{2}, []float32{3})))
}

func TestLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	bundle, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, bundle.Catalog.Len())
	item, ok := bundle.Catalog.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Beta", item.Title)

	// item 2 sums to zero and does not count as interacted
	assert.Equal(t, []int{0}, bundle.Interactions.ToSlice())

	require.Equal(t, 2, bundle.Semantic.Dim())
	assert.Equal(t, []float32{float32(math.Pi), -0}, bundle.Semantic.Row(1))
	assert.Equal(t, []float32{1e-30, 3.5}, bundle.Semantic.Row(2))
	assert.Equal(t, []float32{3}, bundle.Collaborative.Row(2))
}

func TestPutReplacesPreviousData(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.PutEmbeddings(ctx, artifacts.SpaceCollaborative,
		matrix(t, []float32{5, 5}, []float32{6, 6}, []float32{7, 7})))
	require.NoError(t, store.PutInteractions(ctx, []catalog.Interaction{{User: "u3", Item: 1, Count: 4}}))

	bundle, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.Collaborative.Dim())
	assert.Equal(t, []int{1}, bundle.Interactions.ToSlice())
}

func TestLoadMissingArtifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Load(ctx)
		assert.True(t, errortypes.IsMissingArtifact(err), "got %v", err)
	})

	t.Run("no collaborative matrix", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.PutItems(ctx, []catalog.Item{{Index: 0, ID: "a", Title: "A"}}))
		require.NoError(t, store.PutInteractions(ctx, []catalog.Interaction{{User: "u", Item: 0, Count: 1}}))
		require.NoError(t, store.PutEmbeddings(ctx, artifacts.SpaceSemantic, matrix(t, []float32{1})))

		_, err := store.Load(ctx)
		assert.True(t, errortypes.IsMissingArtifact(err), "got %v", err)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store)
		require.NoError(t, store.PutEmbeddings(ctx, artifacts.SpaceSemantic, matrix(t, []float32{1})))

		_, err := store.Load(ctx)
		assert.True(t, errortypes.IsMissingArtifact(err), "got %v", err)
	})
}

func TestPutEmbeddingsRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	err := store.PutEmbeddings(context.Background(), artifacts.SpaceSemantic, nil)
	assert.True(t, errortypes.IsInvalidInput(err))

	err = store.PutEmbeddings(context.Background(), "", matrix(t, []float32{1}))
	assert.True(t, errortypes.IsInvalidInput(err))
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Items)
	assert.Equal(t, 2, stats.Interactions)
	assert.Equal(t, SpaceStats{Rows: 3, Dim: 2}, stats.Spaces[artifacts.SpaceSemantic])
	assert.Equal(t, SpaceStats{Rows: 3, Dim: 1}, stats.Spaces[artifacts.SpaceCollaborative])
	assert.Equal(t, int64(13), store.metrics.GetCounter(telemetry.MetricStoreWrites))
}

func TestUninitializedStore(t *testing.T) {
	store := NewSQLiteStore(nil)
	_, err := store.Load(context.Background())
	assert.True(t, errortypes.IsDatabaseError(err))
	assert.NoError(t, store.Close())
}

func TestCanceledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutSnapshotKeepsPreviousDataOnFailure(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.exec(`
	CREATE TRIGGER fail_semantic BEFORE INSERT ON embeddings
	WHEN NEW.space = 'semantic'
	BEGIN SELECT RAISE(ABORT, 'disk full'); END;`))

	err := store.PutSnapshot(ctx, Snapshot{
		Items: []catalog.Item{
			{Index: 0, ID: "x", Title: "Xi"},
			{Index: 1, ID: "y", Title: "Ypsilon"},
		},
		Interactions:  []catalog.Interaction{{User: "u9", Item: 1, Count: 1}},
		Semantic:      matrix(t, []float32{9, 9}, []float32{8, 8}),
		Collaborative: matrix(t, []float32{9}, []float32{8}),
	})
	require.Error(t, err)
	assert.True(t, errortypes.IsDatabaseError(err), "got %v", err)

	bundle, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, bundle.Catalog.Len())
	item, ok := bundle.Catalog.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Beta", item.Title)
	assert.Equal(t, []int{0}, bundle.Interactions.ToSlice())
	assert.Equal(t, []float32{0.1, 0.2}, bundle.Semantic.Row(0))
	assert.Equal(t, []float32{3}, bundle.Collaborative.Row(2))
}

func TestPutSnapshotReplacesAll(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.PutSnapshot(ctx, Snapshot{
		Items:         []catalog.Item{{Index: 0, ID: "x", Title: "Xi"}},
		Interactions:  []catalog.Interaction{{User: "u9", Item: 0, Count: 1}},
		Semantic:      matrix(t, []float32{9, 9, 9}),
		Collaborative: matrix(t, []float32{8}),
	}))

	bundle, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Catalog.Len())
	assert.Equal(t, 3, bundle.Semantic.Dim())
	assert.Equal(t, []float32{8}, bundle.Collaborative.Row(0))
}

func TestPutSnapshotRejectsEmptyMatrix(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	err := store.PutSnapshot(context.Background(), Snapshot{
		Items:    []catalog.Item{{Index: 0, ID: "x", Title: "Xi"}},
		Semantic: matrix(t, []float32{1}),
	})
	assert.True(t, errortypes.IsInvalidInput(err), "got %v", err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Items)
}
