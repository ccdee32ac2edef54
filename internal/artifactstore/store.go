// Package artifactstore persists the precomputed recommender artifacts
// (item catalog, interactions and both embedding matrices) and loads them
// back as a validated bundle.
package artifactstore

import (
	"context"

	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Store defines the interface for writing and loading artifacts.
type Store interface {
	// Initialize opens the store at the given path and creates its schema.
	Initialize(dbPath string) error

	// Close closes the store and releases any resources.
	Close() error

	// PutItems replaces the item catalog.
	PutItems(ctx context.Context, items []catalog.Item) error

	// PutInteractions replaces the interaction table. Rows for the same
	// (user, item) pair are summed.
	PutInteractions(ctx context.Context, rows []catalog.Interaction) error

	// PutEmbeddings replaces the matrix stored under space.
	PutEmbeddings(ctx context.Context, space string, m *vector.Matrix) error

	// PutSnapshot replaces every artifact at once. Either all four are
	// written or the store is left unchanged.
	PutSnapshot(ctx context.Context, snap Snapshot) error

	// Load reads every artifact and returns a validated bundle.
	Load(ctx context.Context) (*artifacts.Bundle, error)

	// Stats reports row counts per table.
	Stats(ctx context.Context) (Stats, error)
}

// Snapshot is a complete set of artifacts sharing one item index space.
type Snapshot struct {
	Items         []catalog.Item
	Interactions  []catalog.Interaction
	Semantic      *vector.Matrix
	Collaborative *vector.Matrix
}

// Stats reports how much data the store holds.
type Stats struct {
	Items        int                   `json:"items"`
	Interactions int                   `json:"interactions"`
	Spaces       map[string]SpaceStats `json:"spaces"`
}

// SpaceStats describes one stored embedding matrix.
type SpaceStats struct {
	Rows int `json:"rows"`
	Dim  int `json:"dim"`
}
