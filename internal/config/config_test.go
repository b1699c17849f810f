package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultProvider != "gemini" || c.DefaultModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected provider defaults: %q %q", c.DefaultProvider, c.DefaultModel)
	}
	if c.RetryMaxAttempts != 1 {
		t.Fatalf("expected single attempt by default, got %d", c.RetryMaxAttempts)
	}
	if c.ExecMode != "trusted" {
		t.Fatalf("expected trusted exec mode, got %q", c.ExecMode)
	}
	if c.PreviewRows != 5 {
		t.Fatalf("expected 5 preview rows, got %d", c.PreviewRows)
	}
}

func TestLoadEnvOverridesAndProviderKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIZLOOM_EXEC_MODE", "Sandboxed")
	t.Setenv("VIZLOOM_PREVIEW_ROWS", "12")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ExecMode != "sandboxed" {
		t.Fatalf("expected normalized sandboxed, got %q", c.ExecMode)
	}
	if c.PreviewRows != 12 {
		t.Fatalf("expected env preview rows, got %d", c.PreviewRows)
	}
	if c.APIKey != "gem-key" {
		t.Fatalf("expected api key from GEMINI_API_KEY, got %q", c.APIKey)
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	c.DefaultModel = "openai/gpt-4o-mini"
	c.DefaultProvider = "openrouter"
	c.ChartWidth = 640
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.DefaultModel != "openai/gpt-4o-mini" || got.DefaultProvider != "openrouter" || got.ChartWidth != 640 {
		t.Fatalf("round trip lost values: %+v", got)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_tokens: [1, 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
