package ai

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) (Runtime, error)

// RuntimeConfig carries the knobs shared by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	Retry       Backoff
	// APIKey is required by hosted providers.
	APIKey string
	// Host overrides the endpoint (Ollama host, or a base URL for hosted providers).
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[strings.ToLower(name)] = f }

// GetRuntime creates the Runtime registered under name.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	if name == "" {
		name = DefaultProvider
	}
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(Providers(), ", "))
	}
	return f(cfg)
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	gemini := func(c RuntimeConfig) (Runtime, error) {
		return NewGeminiClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.Retry, c.Host), nil
	}
	RegisterRuntime(ProviderGemini, gemini)
	RegisterRuntime(ProviderGoogle, gemini)
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) (Runtime, error) {
		return NewOpenRouterClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.Retry, c.Host), nil
	})
	ollama := func(c RuntimeConfig) (Runtime, error) {
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.Retry), nil
	}
	RegisterRuntime(ProviderOllama, ollama)
	RegisterRuntime(ProviderLocal, ollama)
}
