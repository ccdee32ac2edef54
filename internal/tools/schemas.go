// Package tools defines the request and response schemas of the hybridrec
// MCP tools and HTTP API.
package tools

import (
	"github.com/localrivet/hybridrec/internal/artifacts"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/recommender"
)

const (
	// ToolRecommend is the name of the recommend MCP tool
	ToolRecommend = "recommend"

	// ToolSimilarItems is the name of the similar_items MCP tool
	ToolSimilarItems = "similar_items"

	// ToolCatalogStats is the name of the catalog_stats MCP tool
	ToolCatalogStats = "catalog_stats"

	// DefaultSimilarLimit is the number of neighbours returned when a
	// similar_items request does not set a limit
	DefaultSimilarLimit = 5

	// StatusSuccess and StatusError are the values of every response's Status field
	StatusSuccess = "success"
	StatusError   = "error"
)

// RecommendRequest defines the input schema for the recommend tool. Zero
// option fields take the server defaults.
type RecommendRequest struct {
	// Query is the free-text description of what the user wants
	Query string `json:"query"`

	KUse                int `json:"k_use,omitempty"`
	KMF                 int `json:"k_mf,omitempty"`
	NToRecommend        int `json:"n_to_recommend,omitempty"`
	UseBufferMultiplier int `json:"use_buffer_multiplier,omitempty"`
	MFBufferMultiplier  int `json:"mf_buffer_multiplier,omitempty"`
}

// Options returns the per-request recommender options.
func (r RecommendRequest) Options() recommender.Options {
	return recommender.Options{
		KUse:                r.KUse,
		KMF:                 r.KMF,
		NToRecommend:        r.NToRecommend,
		UseBufferMultiplier: r.UseBufferMultiplier,
		MFBufferMultiplier:  r.MFBufferMultiplier,
	}
}

// RecommendResponse defines the output schema for the recommend tool
type RecommendResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Items are the recommendations in generation order
	Items []catalog.Item `json:"items"`

	// Code classifies the failure if Status is "error"
	Code string `json:"code,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// SimilarItemsRequest defines the input schema for the similar_items tool
type SimilarItemsRequest struct {
	// Item is the index of the item to find neighbours for
	Item int `json:"item"`

	// Limit is the maximum number of neighbours to return
	Limit int `json:"limit,omitempty"`
}

// SimilarItem is one neighbour in the collaborative space.
type SimilarItem struct {
	catalog.Item
	Distance float32 `json:"distance"`
}

// SimilarItemsResponse defines the output schema for the similar_items tool
type SimilarItemsResponse struct {
	Status string        `json:"status"`
	Items  []SimilarItem `json:"items"`
	Code   string        `json:"code,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// CatalogStatsRequest defines the input schema for the catalog_stats tool
type CatalogStatsRequest struct{}

// CatalogStatsResponse defines the output schema for the catalog_stats tool
type CatalogStatsResponse struct {
	Status   string              `json:"status"`
	Stats    artifacts.Stats     `json:"stats"`
	Defaults recommender.Options `json:"defaults"`
	Code     string              `json:"code,omitempty"`
	Error    string              `json:"error,omitempty"`
}
