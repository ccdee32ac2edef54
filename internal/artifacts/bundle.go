// Package artifacts groups the precomputed, read-only inputs of the
// recommender into one value that is validated once at load time.
package artifacts

import (
	"errors"
	"fmt"

	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

// Embedding space names, used as keys by the artifact store.
const (
	SpaceSemantic      = "semantic"
	SpaceCollaborative = "collaborative"
)

// Bundle holds the semantic matrix, the collaborative matrix, the interacted
// item set and the catalog. All four share one item index space.
type Bundle struct {
	Semantic      *vector.Matrix
	Collaborative *vector.Matrix
	Interactions  *catalog.InteractionSet
	Catalog       *catalog.Catalog
}

// Validate checks that every artifact is present and that the row counts of
// both matrices and the catalog agree.
func (b *Bundle) Validate() error {
	if b == nil {
		return errortypes.MissingArtifactError(errors.New("bundle is nil"), "artifacts not loaded")
	}

	var missing []string
	if b.Semantic.Empty() {
		missing = append(missing, SpaceSemantic+" embeddings")
	}
	if b.Collaborative.Empty() {
		missing = append(missing, SpaceCollaborative+" embeddings")
	}
	if b.Interactions == nil {
		missing = append(missing, "interaction set")
	}
	if b.Catalog == nil || b.Catalog.Len() == 0 {
		missing = append(missing, "item catalog")
	}
	if len(missing) > 0 {
		return errortypes.MissingArtifactError(fmt.Errorf("missing %v", missing), "artifacts not loaded").
			WithField("missing", missing)
	}

	n := b.Semantic.Rows()
	if b.Collaborative.Rows() != n || b.Catalog.Len() != n {
		return errortypes.Newf(errortypes.ErrorTypeMissingArtifact, "artifacts are not aligned",
			"semantic rows %d, collaborative rows %d, catalog items %d",
			n, b.Collaborative.Rows(), b.Catalog.Len())
	}
	if last := b.Interactions.Max(); last >= n {
		return errortypes.Newf(errortypes.ErrorTypeMissingArtifact, "artifacts are not aligned",
			"interaction set references item %d, catalog has %d items", last, n)
	}
	return nil
}

// Stats summarises a bundle for health and stats endpoints.
type Stats struct {
	Items            int `json:"items"`
	InteractedItems  int `json:"interacted_items"`
	SemanticDim      int `json:"semantic_dim"`
	CollaborativeDim int `json:"collaborative_dim"`
}

// Stats reports the sizes of the loaded artifacts. Absent artifacts count as zero.
func (b *Bundle) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		Items:            b.Catalog.Len(),
		InteractedItems:  b.Interactions.Len(),
		SemanticDim:      b.Semantic.Dim(),
		CollaborativeDim: b.Collaborative.Dim(),
	}
}
