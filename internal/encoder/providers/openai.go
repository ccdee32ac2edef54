package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIProvider implements the Provider interface for OpenAI's embedding models
type OpenAIProvider struct {
	Config
	client openai.Client
}

// NewOpenAIProvider creates a new instance of the OpenAI provider. The client
// does not retry on its own; retries belong to the calling encoder.
func NewOpenAIProvider(config Config) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: config.timeout()}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIProvider{
		Config: config,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

// Embed implements the Provider interface for OpenAI
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > DefaultMaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d", len(texts), DefaultMaxBatch)
	}

	model := p.ModelID
	if model == "" {
		model = defaultOpenAIModel
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
	}
	if p.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.Dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI embeddings API: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// The API tags each vector with its input position.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("OpenAI response is missing embedding %d", i)
		}
	}

	return out, nil
}
