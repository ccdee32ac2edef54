package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPProvider talks to a self-hosted sentence encoder that accepts
// {"texts": [...]} and answers {"embeddings": [[...], ...]}.
type HTTPProvider struct {
	Config
	httpClient *http.Client
}

// HTTPRequest is the body sent to the encoder service
type HTTPRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// HTTPResponse is the body returned by the encoder service
type HTTPResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewHTTPProvider creates a provider for the encoder service at config.BaseURL
func NewHTTPProvider(config Config) *HTTPProvider {
	return &HTTPProvider{
		Config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
	}
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return ProviderHTTP
}

// Embed implements the Provider interface for the generic encoder service
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("encoder service URL not provided")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t)
	}

	reqJSON, err := json.Marshal(HTTPRequest{Texts: input, Model: p.ModelID})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request to encoder service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("encoder service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out HTTPResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("encoder service error: %s", out.Error)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("encoder service returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}
