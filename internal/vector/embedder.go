// Package vector provides the embedding matrix type, distance kernels and the
// text embedding interface used by the recommender.
package vector

import "context"

const (
	// DefaultEmbeddingDimensions is the width of the universal sentence
	// encoder output that the semantic space is usually built from.
	DefaultEmbeddingDimensions = 512

	// DefaultBatchSize defines how many texts are sent to an encoder in one call.
	DefaultBatchSize = 32
)

// Embedder defines the interface for creating vector embeddings from text.
type Embedder interface {
	// CreateEmbedding converts text into a vector representation.
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the width of the vectors this embedder produces,
	// or 0 when it is not known before the first call.
	Dimensions() int

	// Initialize sets up the embedder with any required configuration.
	Initialize() error
}
