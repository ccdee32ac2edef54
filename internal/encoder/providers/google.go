package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	googleAPIURL       = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGoogleModel = "text-embedding-004"
)

// GoogleProvider implements the Provider interface for Gemini embedding models
type GoogleProvider struct {
	Config
	httpClient *http.Client
}

// GooglePart is one text part of a Gemini content block
type GooglePart struct {
	Text string `json:"text"`
}

// GoogleEmbedRequest is a single entry of a batchEmbedContents call
type GoogleEmbedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []GooglePart `json:"parts"`
	} `json:"content"`
	OutputDimensionality int `json:"outputDimensionality,omitempty"`
}

// GoogleBatchRequest represents a request to Gemini's batchEmbedContents
type GoogleBatchRequest struct {
	Requests []GoogleEmbedRequest `json:"requests"`
}

// GoogleBatchResponse represents a response from batchEmbedContents
type GoogleBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGoogleProvider creates a new instance of the Google provider
func NewGoogleProvider(config Config) *GoogleProvider {
	return &GoogleProvider{
		Config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

// Embed implements the Provider interface for Google
func (p *GoogleProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("Google API key not provided")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > DefaultMaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d", len(texts), DefaultMaxBatch)
	}

	model := p.ModelID
	if model == "" {
		model = defaultGoogleModel
	}

	var reqBody GoogleBatchRequest
	for _, t := range texts {
		r := GoogleEmbedRequest{Model: "models/" + model, OutputDimensionality: p.Dimensions}
		r.Content.Parts = []GooglePart{{Text: truncate(t)}}
		reqBody.Requests = append(reqBody.Requests, r)
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	base := p.BaseURL
	if base == "" {
		base = googleAPIURL
	}
	apiURL := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", base, model, url.QueryEscape(p.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request to Google API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var googleResponse GoogleBatchResponse
	if err := json.Unmarshal(respBody, &googleResponse); err != nil {
		return nil, fmt.Errorf("error unmarshaling response (status %d): %w", resp.StatusCode, err)
	}

	if googleResponse.Error != nil {
		return nil, fmt.Errorf("Google API error: %s: %s",
			googleResponse.Error.Status, googleResponse.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google API returned status %d", resp.StatusCode)
	}

	if len(googleResponse.Embeddings) != len(texts) {
		return nil, fmt.Errorf("Google returned %d embeddings for %d inputs",
			len(googleResponse.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range googleResponse.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding %d from Google API", i)
		}
		out[i] = e.Values
	}
	return out, nil
}
