package tools

import (
	"encoding/json"
	"testing"

	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/recommender"
)

func TestRecommendRequestDecoding(t *testing.T) {
	data := []byte(`{"query":"space opera","k_use":3,"n_to_recommend":7}`)

	var req RecommendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("Failed to unmarshal RecommendRequest: %v", err)
	}
	if req.Query != "space opera" {
		t.Errorf("Expected query 'space opera', got '%s'", req.Query)
	}

	opts := req.Options()
	want := recommender.Options{KUse: 3, NToRecommend: 7}
	if opts != want {
		t.Errorf("Options() = %+v, want %+v", opts, want)
	}

	filled := opts.WithDefaults(recommender.DefaultOptions())
	if filled.KUse != 3 || filled.KMF != 5 || filled.NToRecommend != 7 || filled.MFBufferMultiplier != 10 {
		t.Errorf("Unexpected options after defaults: %+v", filled)
	}
}

func TestSimilarItemsResponseShape(t *testing.T) {
	resp := SimilarItemsResponse{
		Status: StatusSuccess,
		Items: []SimilarItem{
			{Item: catalog.Item{Index: 4, ID: "m4", Title: "Alien"}, Distance: 1.5},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal SimilarItemsResponse: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON into map: %v", err)
	}
	if _, ok := jsonMap["error"]; ok {
		t.Error("Expected error to be omitted on success")
	}

	items, ok := jsonMap["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("Expected one item, got %v", jsonMap["items"])
	}
	item := items[0].(map[string]interface{})
	if item["index"] != float64(4) || item["title"] != "Alien" || item["distance"] != 1.5 {
		t.Errorf("Expected embedded item fields to be flattened, got %v", item)
	}
}
