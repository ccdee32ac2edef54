package encoder

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// DefaultConcurrency bounds the number of batches encoded at once.
const DefaultConcurrency = 4

// BatchEmbedder is implemented by encoders that embed many texts per call.
type BatchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batch splits items into consecutive chunks of at most size elements.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = vector.DefaultBatchSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// EncodeBatches encodes texts in batches of batchSize, running up to
// DefaultConcurrency batches concurrently. The result is aligned with texts.
// Encoders implementing BatchEmbedder get one call per batch.
func EncodeBatches(ctx context.Context, embedder vector.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = vector.DefaultBatchSize
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)

	for bi, chunk := range Batch(texts, batchSize) {
		offset := bi * batchSize
		g.Go(func() error {
			vecs, err := encodeChunk(gctx, embedder, chunk)
			if err != nil {
				if errortypes.TypeOf(err) == "" {
					err = errortypes.EncodingError(err, "failed to encode batch")
				}
				return err
			}
			copy(out[offset:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeChunk(ctx context.Context, embedder vector.Embedder, chunk []string) ([][]float32, error) {
	if be, ok := embedder.(BatchEmbedder); ok {
		return be.Embed(ctx, chunk)
	}

	vecs := make([][]float32, len(chunk))
	for i, text := range chunk {
		v, err := embedder.CreateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}
