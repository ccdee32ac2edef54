// Package providers contains clients for remote text embedding services.
package providers

import (
	"context"
	"time"
)

const (
	// Provider names
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderHTTP   = "http"

	// Default settings
	DefaultTimeout        = 30 * time.Second
	DefaultMaxInputLength = 8000
	DefaultMaxBatch       = 100
)

// Provider turns a batch of texts into embedding vectors. The result is
// aligned with texts.
type Provider interface {
	// Embed returns one vector per input text
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name
	Name() string
}

// Config holds common configuration for embedding providers
type Config struct {
	APIKey  string
	ModelID string
	// BaseURL overrides the service endpoint. It is required by the http provider.
	BaseURL string
	// Dimensions requests a specific output width when the service supports it.
	Dimensions int
	Timeout    time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// truncate cuts text to DefaultMaxInputLength runes.
func truncate(text string) string {
	if len(text) <= DefaultMaxInputLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= DefaultMaxInputLength {
		return text
	}
	return string(runes[:DefaultMaxInputLength])
}
