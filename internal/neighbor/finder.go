// Package neighbor implements exact k-nearest-neighbour lookup over a dense
// embedding matrix using Euclidean distance.
//
// Results are ordered nearest first. Rows at exactly the same distance keep
// their original row order, so the output is fully deterministic.
package neighbor

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Neighbor is a row index together with its Euclidean distance to the query.
type Neighbor struct {
	Index    int
	Distance float32
}

// FindNearest returns the indices of the min(k, N) rows of ref closest to query.
func FindNearest(query []float32, ref *vector.Matrix, k int) ([]int, error) {
	if err := validate(query, ref, k); err != nil {
		return nil, err
	}
	return rank(distances(query, ref), k, -1), nil
}

// FindNearestWithDistances is FindNearest but also reports the Euclidean
// distance of each returned row. When exclude is a valid row index that row
// is left out of the result.
func FindNearestWithDistances(query []float32, ref *vector.Matrix, k int, exclude int) ([]Neighbor, error) {
	if err := validate(query, ref, k); err != nil {
		return nil, err
	}

	dists := distances(query, ref)
	order := rank(dists, k, exclude)

	out := make([]Neighbor, len(order))
	for i, idx := range order {
		out[i] = Neighbor{Index: idx, Distance: sqrt32(dists[idx])}
	}
	return out, nil
}

// FindNearestBatch runs FindNearest for every query concurrently. The result
// slice is aligned with queries. The first failing query aborts the batch.
func FindNearestBatch(ctx context.Context, queries [][]float32, ref *vector.Matrix, k int) ([][]int, error) {
	results := make([][]int, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for qi := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			idx, err := FindNearest(queries[qi], ref, k)
			if err != nil {
				return err
			}
			results[qi] = idx
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func validate(query []float32, ref *vector.Matrix, k int) error {
	switch {
	case k < 0:
		return errortypes.Newf(errortypes.ErrorTypeInvalidInput, "invalid nearest neighbour input", "k must not be negative, got %d", k)
	case ref.Empty():
		return errortypes.InvalidInputError(errors.New("reference matrix is empty"), "invalid nearest neighbour input")
	case len(query) == 0:
		return errortypes.InvalidInputError(errors.New("query vector is empty"), "invalid nearest neighbour input")
	case len(query) != ref.Dim():
		return errortypes.InvalidInputError(
			errortypes.DimensionMismatchError(ref.Dim(), len(query), "query width does not match reference matrix"),
			"invalid nearest neighbour input")
	}
	return nil
}

// distances computes the squared L2 distance from query to every row of ref.
// Squared distance preserves the ordering of the Euclidean distance.
func distances(query []float32, ref *vector.Matrix) []float32 {
	n := ref.Rows()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = vector.SquaredL2(query, ref.Row(i))
	}
	return out
}

// rank orders row indices by ascending distance and returns the first k.
// A non-negative exclude drops that row before truncation.
func rank(dists []float32, k int, exclude int) []int {
	order := make([]int, 0, len(dists))
	for i := range dists {
		if i != exclude {
			order = append(order, i)
		}
	}

	// SliceStable keeps equidistant rows in index order.
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	if k < len(order) {
		order = order[:k]
	}
	return order
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
