package vector

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
)

// MockEmbedder is a simple implementation of the Embedder interface.
// It creates deterministic but simplistic embeddings for testing purposes.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a new MockEmbedder with the specified dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &MockEmbedder{
		dimensions: dimensions,
	}
}

// Initialize sets up the embedder with any required configuration.
func (e *MockEmbedder) Initialize() error {
	return nil
}

// Dimensions returns the configured embedding width.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// CreateEmbedding generates a mock embedding for the given text.
// The same text always produces the same unit-length vector.
func (e *MockEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, e.dimensions)
	hash := md5.Sum([]byte(text))

	for i := 0; i < e.dimensions; i++ {
		// Wrap around the 16 byte hash and mix in the dimension so that
		// embeddings wider than the hash do not simply repeat.
		hashIdx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[hashIdx:], hash[:4]...))
		seed ^= uint32(i) * 2654435761

		embedding[i] = float32(seed%1000)/500.0 - 1.0
	}

	normalize(embedding)
	return embedding, nil
}

// normalize scales v to unit length in place. Zero vectors are left untouched.
func normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}

	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
