package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	srv := MockServer(t, MockResponseConfig{
		StatusCode: http.StatusOK,
		ResponseBody: map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-3-small",
			// Out of order on purpose; the provider must use the index field.
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		},
		OnRequest: func(r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
		},
	})

	p := NewOpenAIProvider(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Dimensions: 2})
	if p.Name() != ProviderOpenAI {
		t.Errorf("Name() = %q", p.Name())
	}

	vecs, err := p.Embed(context.Background(), []string{"desk", "lamp"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if gotPath != "/v1/embeddings" {
		t.Errorf("path = %q, want /v1/embeddings", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != defaultOpenAIModel {
		t.Errorf("model = %v, want %s", gotBody["model"], defaultOpenAIModel)
	}
	if gotBody["dimensions"] != float64(2) {
		t.Errorf("dimensions = %v, want 2", gotBody["dimensions"])
	}

	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors %v", vecs)
	}
}

func TestOpenAIProviderErrors(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}).Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error without API key")
	}

	srv := MockServer(t, MockResponseConfig{
		StatusCode:   http.StatusUnauthorized,
		ResponseBody: `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
	})
	p := NewOpenAIProvider(Config{APIKey: "sk-bad", BaseURL: srv.URL + "/v1/"})
	if _, err := p.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for 401 response")
	}

	big := make([]string, DefaultMaxBatch+1)
	if _, err := p.Embed(context.Background(), big); err == nil {
		t.Error("expected error for oversized batch")
	}
}

func TestGoogleProviderEmbed(t *testing.T) {
	var gotPath, gotKey string
	var gotBody GoogleBatchRequest

	srv := MockServer(t, MockResponseConfig{
		StatusCode: http.StatusOK,
		ResponseBody: map[string]interface{}{
			"embeddings": []map[string]interface{}{
				{"values": []float32{0.5, 0.5}},
				{"values": []float32{1, 2}},
			},
		},
		OnRequest: func(r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.URL.Query().Get("key")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
		},
	})

	p := NewGoogleProvider(Config{APIKey: "g-key", BaseURL: srv.URL})
	vecs, err := p.Embed(context.Background(), []string{"desk", "lamp"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if gotPath != "/"+defaultGoogleModel+":batchEmbedContents" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("key = %q", gotKey)
	}
	if len(gotBody.Requests) != 2 || gotBody.Requests[1].Content.Parts[0].Text != "lamp" {
		t.Errorf("unexpected request body %+v", gotBody)
	}
	if gotBody.Requests[0].Model != "models/"+defaultGoogleModel {
		t.Errorf("model = %q", gotBody.Requests[0].Model)
	}
	if len(vecs) != 2 || vecs[1][1] != 2 {
		t.Errorf("unexpected vectors %v", vecs)
	}
}

func TestGoogleProviderAPIError(t *testing.T) {
	srv := MockServer(t, MockResponseConfig{
		StatusCode: http.StatusBadRequest,
		ResponseBody: map[string]interface{}{
			"error": map[string]interface{}{"code": 400, "message": "bad model", "status": "INVALID_ARGUMENT"},
		},
	})

	p := NewGoogleProvider(Config{APIKey: "g-key", BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "INVALID_ARGUMENT") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestHTTPProvider(t *testing.T) {
	var got HTTPRequest
	srv := MockServer(t, MockResponseConfig{
		StatusCode:   http.StatusOK,
		ResponseBody: HTTPResponse{Embeddings: [][]float32{{1, 2, 3}}},
		OnRequest: func(r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
		},
	})

	p := NewHTTPProvider(Config{BaseURL: srv.URL, ModelID: "use-large"})
	vecs, err := p.Embed(context.Background(), []string{"desk"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 3 {
		t.Errorf("unexpected vectors %v", vecs)
	}
	if len(got.Texts) != 1 || got.Texts[0] != "desk" || got.Model != "use-large" {
		t.Errorf("unexpected request %+v", got)
	}

	mismatch := MockServer(t, MockResponseConfig{
		StatusCode:   http.StatusOK,
		ResponseBody: HTTPResponse{Embeddings: [][]float32{{1}, {2}}},
	})
	if _, err := NewHTTPProvider(Config{BaseURL: mismatch.URL}).Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error for count mismatch")
	}

	failing := MockServer(t, MockResponseConfig{StatusCode: http.StatusServiceUnavailable, ResponseBody: "overloaded"})
	if _, err := NewHTTPProvider(Config{BaseURL: failing.URL}).Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error for 503")
	}

	if _, err := NewHTTPProvider(Config{}).Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error without URL")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", DefaultMaxInputLength+10)
	if got := []rune(truncate(long)); len(got) != DefaultMaxInputLength {
		t.Errorf("truncate length = %d, want %d", len(got), DefaultMaxInputLength)
	}
	if truncate("short") != "short" {
		t.Error("short text should be unchanged")
	}
}

func TestProviderFactory(t *testing.T) {
	factory := NewProviderFactory(map[string]Config{
		ProviderOpenAI: {APIKey: "sk"},
		ProviderGoogle: {APIKey: ""},
		ProviderHTTP:   {BaseURL: "http://localhost:9000/embed"},
		"unknown":      {APIKey: "x"},
	})

	p, err := factory.GetProvider(ProviderOpenAI)
	if err != nil || p.Name() != ProviderOpenAI {
		t.Fatalf("GetProvider(openai) = %v, %v", p, err)
	}
	if _, err := factory.GetProvider("missing"); err == nil {
		t.Error("expected error for missing provider")
	}
	if _, err := factory.GetProvider("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}

	chain := factory.GetProviderChain([]string{ProviderHTTP, ProviderGoogle})
	var names []string
	for _, p := range chain {
		names = append(names, p.Name())
	}
	// google has no key and unknown cannot be built.
	if strings.Join(names, ",") != "http,openai" {
		t.Errorf("chain = %v, want [http openai]", names)
	}

	chain = factory.GetProviderChain(nil, ProviderOpenAI)
	if len(chain) != 1 || chain[0].Name() != ProviderHTTP {
		t.Errorf("chain with skip = %v", chain)
	}
}

func TestFlakyProvider(t *testing.T) {
	p := &FlakyProvider{TestProvider: NewTestProvider("flaky", []float32{1}, nil), Failures: 2, Err: errors.New("boom")}

	for i := 0; i < 2; i++ {
		if _, err := p.Embed(context.Background(), []string{"a"}); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if p.Calls() != 3 {
		t.Errorf("calls = %d, want 3", p.Calls())
	}
}
