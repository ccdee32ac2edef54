package providers

import (
	"fmt"
	"slices"
)

// ProviderFactory creates and returns embedding providers
type ProviderFactory struct {
	// ProviderConfigs stores configuration for each provider
	ProviderConfigs map[string]Config
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(configs map[string]Config) *ProviderFactory {
	return &ProviderFactory{
		ProviderConfigs: configs,
	}
}

// GetProvider returns an initialized provider instance for the specified provider name
func (f *ProviderFactory) GetProvider(providerName string) (Provider, error) {
	config, exists := f.ProviderConfigs[providerName]
	if !exists {
		return nil, fmt.Errorf("configuration for provider '%s' not found", providerName)
	}

	switch providerName {
	case ProviderOpenAI:
		return NewOpenAIProvider(config), nil
	case ProviderGoogle:
		return NewGoogleProvider(config), nil
	case ProviderHTTP:
		return NewHTTPProvider(config), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

// usable reports whether a provider has the credentials or endpoint it needs.
func usable(name string, config Config) bool {
	if name == ProviderHTTP {
		return config.BaseURL != ""
	}
	return config.APIKey != ""
}

// GetProviderChain returns the usable providers in preference order, followed
// by any remaining usable providers sorted by name. Names in skip are left out.
func (f *ProviderFactory) GetProviderChain(preferenceOrder []string, skip ...string) []Provider {
	var chain []Provider
	added := make(map[string]bool)
	for _, name := range skip {
		added[name] = true
	}

	add := func(name string) {
		if added[name] {
			return
		}
		config, exists := f.ProviderConfigs[name]
		if !exists || !usable(name, config) {
			return
		}
		if provider, err := f.GetProvider(name); err == nil {
			chain = append(chain, provider)
			added[name] = true
		}
	}

	for _, name := range preferenceOrder {
		add(name)
	}

	remaining := make([]string, 0, len(f.ProviderConfigs))
	for name := range f.ProviderConfigs {
		remaining = append(remaining, name)
	}
	slices.Sort(remaining)
	for _, name := range remaining {
		add(name)
	}

	return chain
}
