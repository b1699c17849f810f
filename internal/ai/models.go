package ai

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// ModelInfo is catalog metadata used for context-window warnings and cost estimates.
// Prices are indicative only.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var (
	catalogMu sync.RWMutex
	models    = map[string]ModelInfo{
		"gemini-2.0-flash":      {Name: "gemini-2.0-flash", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004},
		"gemini-2.0-flash-lite": {Name: "gemini-2.0-flash-lite", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.000075, OutputPerK: 0.0003},
		"gemini-2.5-flash":      {Name: "gemini-2.5-flash", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.0003, OutputPerK: 0.0025},
		"gemini-2.5-pro":        {Name: "gemini-2.5-pro", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.00125, OutputPerK: 0.01},

		"google/gemini-2.0-flash-001":       {Name: "google/gemini-2.0-flash-001", Provider: ProviderOpenRouter, ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004},
		"openai/gpt-4o-mini":                {Name: "openai/gpt-4o-mini", Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
		"anthropic/claude-3.5-sonnet":       {Name: "anthropic/claude-3.5-sonnet", Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
		"meta-llama/llama-3.1-70b-instruct": {Name: "meta-llama/llama-3.1-70b-instruct", Provider: ProviderOpenRouter, ContextTokens: 131072},
		"deepseek/deepseek-r1:free":         {Name: "deepseek/deepseek-r1:free", Provider: ProviderOpenRouter, ContextTokens: 128000},

		"llama3.1:8b":         {Name: "llama3.1:8b", Provider: ProviderOllama, ContextTokens: 8192},
		"qwen2.5-coder:7b":    {Name: "qwen2.5-coder:7b", Provider: ProviderOllama, ContextTokens: 32768},
		"mistral:7b-instruct": {Name: "mistral:7b-instruct", Provider: ProviderOllama, ContextTokens: 8192},
	}
)

// LookupModel returns catalog metadata for name.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// DefaultModelFor returns the model used for provider when none is configured.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "google/gemini-2.0-flash-001"
	case ProviderOllama, ProviderLocal:
		return "llama3.1:8b"
	}
	return DefaultGeminiModel
}

// EstimateCostUSD estimates the USD cost of a call. ok is false for unknown models.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	in := (float64(promptTokens) / 1000.0) * mi.InputPerK
	out := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return in + out, true
}

// ReadCatalog decodes a JSON object of name -> ModelInfo.
func ReadCatalog(r io.Reader) (map[string]ModelInfo, error) {
	var m map[string]ModelInfo
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return m, nil
}

// LoadCatalogFromJSON reads a catalog file, e.g.
// {"gemini-2.0-flash": {"Name": "gemini-2.0-flash", "ContextTokens": 1048576}}
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

// OverrideCatalog replaces the in-memory catalog.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	models = m
}

// MergeCatalog adds or replaces entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a copy of the current catalog.
func Catalog() map[string]ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
