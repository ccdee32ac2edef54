package neighbor

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

func lineMatrix(t *testing.T, xs ...float32) *vector.Matrix {
	t.Helper()
	rows := make([][]float32, len(xs))
	for i, x := range xs {
		rows[i] = []float32{x}
	}
	m, err := vector.NewMatrixFromRows(rows)
	require.NoError(t, err)
	return m
}

func randomMatrix(t *testing.T, rng *rand.Rand, n, d int) *vector.Matrix {
	t.Helper()
	data := make([]float32, n*d)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	m, err := vector.NewMatrix(data, n, d)
	require.NoError(t, err)
	return m
}

func TestFindNearestOrdersNearestFirst(t *testing.T) {
	// Rows on a line at 10, 0, 3, 7, 1 with the query at 0.
	ref := lineMatrix(t, 10, 0, 3, 7, 1)

	got, err := FindNearest([]float32{0}, ref, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2}, got)

	all, err := FindNearest([]float32{0}, ref, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2, 3, 0}, all)
}

func TestFindNearestStableTies(t *testing.T) {
	// Rows 0, 2 and 4 are all at distance 1 from the query.
	ref := lineMatrix(t, 1, 5, -1, 0, 1)

	got, err := FindNearest([]float32{0}, ref, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 2, 4, 1}, got)
}

func TestFindNearestClampsK(t *testing.T) {
	ref := lineMatrix(t, 1, 2, 3)

	got, err := FindNearest([]float32{0}, ref, 100)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	none, err := FindNearest([]float32{0}, ref, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindNearestProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ref := randomMatrix(t, rng, 200, 16)

	for trial := 0; trial < 20; trial++ {
		query := make([]float32, 16)
		for i := range query {
			query[i] = rng.Float32()*2 - 1
		}
		k := rng.Intn(250)

		got, err := FindNearest(query, ref, k)
		require.NoError(t, err)

		want := k
		if want > ref.Rows() {
			want = ref.Rows()
		}
		require.Len(t, got, want)

		seen := make(map[int]bool, len(got))
		prev := float32(-1)
		for _, idx := range got {
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, ref.Rows())
			require.False(t, seen[idx], "duplicate index %d", idx)
			seen[idx] = true

			d := vector.SquaredL2(query, ref.Row(idx))
			require.GreaterOrEqual(t, d, prev, "result is not nearest-first")
			prev = d
		}
	}
}

func TestFindNearestDoesNotMutateInputs(t *testing.T) {
	ref := lineMatrix(t, 4, 2, 9)
	query := []float32{3}

	_, err := FindNearest(query, ref, 2)
	require.NoError(t, err)

	assert.Equal(t, []float32{3}, query)
	assert.Equal(t, []float32{4}, ref.Row(0))
	assert.Equal(t, []float32{2}, ref.Row(1))
	assert.Equal(t, []float32{9}, ref.Row(2))
}

func TestFindNearestInvalidInput(t *testing.T) {
	ref, err := vector.NewMatrixFromRows([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query []float32
		ref   *vector.Matrix
		k     int
	}{
		{"negative k", []float32{1, 2}, ref, -1},
		{"nil matrix", []float32{1, 2}, nil, 1},
		{"empty query", nil, ref, 1},
		{"width mismatch", []float32{1, 2, 3}, ref, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindNearest(tt.query, tt.ref, tt.k)
			require.Error(t, err)
			assert.True(t, errortypes.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestFindNearestWithDistances(t *testing.T) {
	ref := lineMatrix(t, 0, 3, -4, 1)

	got, err := FindNearestWithDistances([]float32{0}, ref, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 3, got[0].Index)
	assert.InDelta(t, 1.0, got[0].Distance, 1e-6)
	assert.Equal(t, 1, got[1].Index)
	assert.InDelta(t, 3.0, got[1].Distance, 1e-6)
}

func TestFindNearestBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ref := randomMatrix(t, rng, 50, 4)

	queries := make([][]float32, 9)
	for i := range queries {
		queries[i] = ref.RowCopy(i * 5)
	}

	got, err := FindNearestBatch(context.Background(), queries, ref, 4)
	require.NoError(t, err)
	require.Len(t, got, len(queries))

	for i, q := range queries {
		want, err := FindNearest(q, ref, 4)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], "query %d", i)
	}

	queries = append(queries, []float32{1})
	_, err = FindNearestBatch(context.Background(), queries, ref, 4)
	assert.True(t, errortypes.IsInvalidInput(err))
}

func BenchmarkFindNearest(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	data := make([]float32, 10000*512)
	for i := range data {
		data[i] = rng.Float32()
	}
	ref, err := vector.NewMatrix(data, 10000, 512)
	if err != nil {
		b.Fatal(err)
	}
	query := ref.RowCopy(42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := FindNearest(query, ref, 20); err != nil {
			b.Fatal(err)
		}
	}
}
