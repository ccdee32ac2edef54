package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockResponseConfig holds configuration for mock API responses
type MockResponseConfig struct {
	StatusCode   int
	ResponseBody interface{}
	Headers      map[string]string
	// OnRequest, when set, receives every request before the response is written.
	OnRequest func(r *http.Request)
}

// MockServer creates a test server that returns the configured response
func MockServer(t *testing.T, config MockResponseConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.OnRequest != nil {
			config.OnRequest(r)
		}

		for k, v := range config.Headers {
			w.Header().Set(k, v)
		}
		if _, exists := config.Headers["Content-Type"]; !exists {
			w.Header().Set("Content-Type", "application/json")
		}

		w.WriteHeader(config.StatusCode)

		if config.ResponseBody == nil {
			return
		}

		var respBytes []byte
		switch body := config.ResponseBody.(type) {
		case string:
			respBytes = []byte(body)
		case []byte:
			respBytes = body
		default:
			var err error
			respBytes, err = json.Marshal(body)
			if err != nil {
				t.Errorf("Failed to marshal mock response: %v", err)
				return
			}
		}

		if _, err := w.Write(respBytes); err != nil {
			t.Errorf("Failed to write response body: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestProvider is a Provider that returns a constant vector per text, or an
// error, and counts its calls.
type TestProvider struct {
	name        string
	vector      []float32
	returnError error

	mu    sync.Mutex
	calls int
	texts []string
}

// NewTestProvider creates a new TestProvider
func NewTestProvider(name string, vector []float32, returnError error) *TestProvider {
	return &TestProvider{
		name:        name,
		vector:      vector,
		returnError: returnError,
	}
}

// Name returns the provider name
func (p *TestProvider) Name() string {
	return p.name
}

// Embed records the texts and returns the configured vector or error
func (p *TestProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.texts = append(p.texts, texts...)
	p.mu.Unlock()

	if p.returnError != nil {
		return nil, p.returnError
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), p.vector...)
	}
	return out, nil
}

// Calls returns how many times Embed was called
func (p *TestProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Texts returns every text passed to Embed, in call order
func (p *TestProvider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// FlakyProvider fails its first Failures calls and then behaves like TestProvider.
type FlakyProvider struct {
	*TestProvider
	Failures int
	Err      error
}

// Embed fails until Failures calls have been made
func (p *FlakyProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	failing := p.Failures > 0
	if failing {
		p.Failures--
		p.calls++
	}
	p.mu.Unlock()

	if failing {
		return nil, p.Err
	}
	return p.TestProvider.Embed(ctx, texts)
}
