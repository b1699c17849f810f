package ai

import "testing"

func TestGetRuntimeKnownProviders(t *testing.T) {
	cases := map[string]any{
		"":           &GeminiClient{},
		"gemini":     &GeminiClient{},
		"Google":     &GeminiClient{},
		"openrouter": &OpenRouterClient{},
		"ollama":     &OllamaClient{},
		"local":      &OllamaClient{},
	}
	for name, want := range cases {
		rt, err := GetRuntime(name, RuntimeConfig{APIKey: "k"})
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		switch want.(type) {
		case *GeminiClient:
			if _, ok := rt.(*GeminiClient); !ok {
				t.Errorf("%q: got %T", name, rt)
			}
		case *OpenRouterClient:
			if _, ok := rt.(*OpenRouterClient); !ok {
				t.Errorf("%q: got %T", name, rt)
			}
		case *OllamaClient:
			if _, ok := rt.(*OllamaClient); !ok {
				t.Errorf("%q: got %T", name, rt)
			}
		}
	}
}

func TestGetRuntimeUnknown(t *testing.T) {
	if _, err := GetRuntime("watson", RuntimeConfig{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCatalogDefaults(t *testing.T) {
	for _, p := range []string{ProviderGemini, ProviderOpenRouter, ProviderOllama} {
		name := DefaultModelFor(p)
		mi, ok := LookupModel(name)
		if !ok || mi.ContextTokens == 0 {
			t.Errorf("default model %q for %s missing from catalog", name, p)
		}
	}
	if _, ok := EstimateCostUSD("unknown-model", 10, 10); ok {
		t.Error("unknown model should not have a cost")
	}
}
