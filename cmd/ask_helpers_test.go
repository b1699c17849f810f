package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
)

func TestSelectModelPrecedence(t *testing.T) {
	cfg := &cfgpkg.Global{DefaultModel: "cfg-model"}

	if got := selectModel(cfg, ai.ProviderGemini, "cli-model"); got != "cli-model" {
		t.Fatalf("expected CLI model, got %q", got)
	}
	if got := selectModel(cfg, ai.ProviderGemini, ""); got != "cfg-model" {
		t.Fatalf("expected config model, got %q", got)
	}
	// a configured Gemini model is not sent to Ollama
	cfg.DefaultModel = "gemini-2.0-flash"
	if got := selectModel(cfg, ai.ProviderOllama, ""); got != "llama3.1:8b" {
		t.Fatalf("expected ollama default, got %q", got)
	}
	cfg.DefaultModel = ""
	if got := selectModel(cfg, ai.ProviderOpenRouter, ""); got != "google/gemini-2.0-flash-001" {
		t.Fatalf("expected fallback model, got %q", got)
	}
	if got := selectModel(nil, ai.ProviderGemini, ""); got != ai.DefaultGeminiModel {
		t.Fatalf("expected gemini default, got %q", got)
	}
}

func TestResolveProviderAliases(t *testing.T) {
	cases := map[string]string{
		"":           ai.ProviderGemini,
		"google":     ai.ProviderGemini,
		"Local":      ai.ProviderOllama,
		"openrouter": ai.ProviderOpenRouter,
	}
	for in, want := range cases {
		if got := resolveProvider(nil, in); got != want {
			t.Errorf("resolveProvider(%q) = %q, want %q", in, got, want)
		}
	}
	cfg := &cfgpkg.Global{DefaultProvider: "ollama"}
	if got := resolveProvider(cfg, ""); got != ai.ProviderOllama {
		t.Fatalf("expected config provider, got %q", got)
	}
	if got := resolveProvider(cfg, "gemini"); got != ai.ProviderGemini {
		t.Fatalf("flag should win over config, got %q", got)
	}
}

func TestAPIKeyForPrecedence(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "or-env")
	cfg := &cfgpkg.Global{APIKey: "cfg-key"}

	if got := apiKeyFor(cfg, ai.ProviderGemini, " flag-key "); got != "flag-key" {
		t.Fatalf("expected flag key, got %q", got)
	}
	if got := apiKeyFor(cfg, ai.ProviderOpenRouter, ""); got != "or-env" {
		t.Fatalf("expected env key, got %q", got)
	}
	if got := apiKeyFor(cfg, ai.ProviderGemini, ""); got != "cfg-key" {
		t.Fatalf("expected config key, got %q", got)
	}
	t.Setenv("GOOGLE_API_KEY", "g-env")
	if got := apiKeyFor(cfg, ai.ProviderGemini, ""); got != "g-env" {
		t.Fatalf("expected GOOGLE_API_KEY, got %q", got)
	}
}

func TestBuildRuntimeLocalAlias(t *testing.T) {
	rt, provider, err := buildRuntime(&cfgpkg.Global{}, runtimeOptions{ProviderFlag: "local"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != ai.ProviderOllama {
		t.Fatalf("expected ollama provider, got %q", provider)
	}
	if _, ok := rt.(*ai.OllamaClient); !ok {
		t.Fatalf("expected *ai.OllamaClient, got %T", rt)
	}
	if _, _, err := buildRuntime(nil, runtimeOptions{ProviderFlag: "nope"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRuntimeConfigOllamaHost(t *testing.T) {
	cfg := &cfgpkg.Global{OllamaHost: "http://cfg:11434", OllamaTimeoutSec: 7, HTTPTimeoutSec: 30}
	rc := runtimeConfig(cfg, ai.ProviderOllama, runtimeOptions{})
	if rc.Host != "http://cfg:11434" {
		t.Fatalf("expected config host, got %q", rc.Host)
	}
	if rc.HTTPTimeout.Seconds() != 7 {
		t.Fatalf("expected ollama timeout, got %v", rc.HTTPTimeout)
	}
	rc = runtimeConfig(cfg, ai.ProviderOllama, runtimeOptions{OllamaHost: "http://flag:1"})
	if rc.Host != "http://flag:1" {
		t.Fatalf("expected flag host, got %q", rc.Host)
	}
	rc = runtimeConfig(cfg, ai.ProviderGemini, runtimeOptions{})
	if rc.Host != "" || rc.HTTPTimeout.Seconds() != 30 {
		t.Fatalf("unexpected gemini config: %+v", rc)
	}
}

func TestParseDelimiter(t *testing.T) {
	cases := map[string]rune{"": 0, ",": ',', "tab": '\t', "\t": '\t', ";": ';', "pipe": '|', "|": '|'}
	for in, want := range cases {
		got, err := parseDelimiter(in)
		if err != nil || got != want {
			t.Errorf("parseDelimiter(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseDelimiter("::"); err == nil {
		t.Fatal("expected error for unsupported delimiter")
	}
}

func TestNewExecutorMode(t *testing.T) {
	ex, err := newExecutor(&cfgpkg.Global{ExecMode: "sandboxed"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Mode() != executor.ModeSandboxed {
		t.Fatalf("expected sandboxed from config, got %s", ex.Mode())
	}
	ex, err = newExecutor(&cfgpkg.Global{ExecMode: "sandboxed"}, "trusted")
	if err != nil || ex.Mode() != executor.ModeTrusted {
		t.Fatalf("flag should win: %v %v", ex, err)
	}
	if _, err := newExecutor(nil, "docker"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestExplainErrorHints(t *testing.T) {
	unreach := &pipeline.StageError{Stage: pipeline.StageModel, Err: &ai.UnreachableError{Host: "http://127.0.0.1:11434", Err: errors.New("refused")}}
	err := explainError(unreach, ai.ProviderOllama, "llama3.1:8b")
	if !strings.Contains(err.Error(), "Ollama not reachable at http://127.0.0.1:11434") {
		t.Fatalf("missing ollama hint: %v", err)
	}
	var ue *ai.UnreachableError
	if !errors.As(err, &ue) {
		t.Fatal("hint should wrap the original error")
	}

	auth := &pipeline.StageError{Stage: pipeline.StageModel, Err: &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "bad key"}}}
	if err := explainError(auth, ai.ProviderGemini, "gemini-2.0-flash"); !strings.Contains(err.Error(), "--api-key") {
		t.Fatalf("missing auth hint: %v", err)
	}

	noCode := &pipeline.StageError{Stage: pipeline.StageExtract, Err: ai.ErrNoCodeBlock}
	if err := explainError(noCode, ai.ProviderGemini, "m"); !strings.Contains(err.Error(), "nothing was executed") {
		t.Fatalf("expected user message, got %v", err)
	}
}

func TestWriteResultText(t *testing.T) {
	res := &executor.Result{
		Output: "start",
		Table:  &executor.Table{Columns: []string{"Pclass", "Fare"}, Rows: [][]string{{"1", "90"}}},
		Chart:  &executor.Chart{Kind: executor.ChartBar, Title: "Fare", Labels: []string{"1"}, Y: []float64{90}},
		Notes:  []string{"first chart kept"},
	}
	it := &pipeline.Interaction{Query: "q", Code: "print('start')"}
	buf := &bytes.Buffer{}
	if err := writeResult(it, res, nil, outputOptions{Writer: buf}); err != nil {
		t.Fatalf("writeResult: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"=== Generated code ===\nprint('start')\n",
		"=== Output ===\nstart\n",
		"=== Result ===\nPclass  Fare\n",
		`Chart: bar "Fare" (use --chart-out to save it as PNG)`,
		"note: first chart kept",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResultSavesChart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charts", "fare.png")
	res := &executor.Result{Chart: &executor.Chart{Kind: executor.ChartBar, Labels: []string{"a", "b"}, Y: []float64{1, 2}}}
	buf := &bytes.Buffer{}
	if err := writeResult(nil, res, nil, outputOptions{Writer: buf, ChartOut: path}); err != nil {
		t.Fatalf("writeResult: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("chart not written: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatal("chart file is not a PNG")
	}
	if !strings.Contains(buf.String(), "✓ Saved bar chart to "+path) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestWriteResultJSONIncludesError(t *testing.T) {
	runErr := &pipeline.StageError{Stage: pipeline.StageExecute, Err: &executor.RuntimeError{Message: "attempt to index a nil value", Output: "partial\n"}}
	it := &pipeline.Interaction{Query: "q", Code: "x.y = 1", Err: runErr}
	buf := &bytes.Buffer{}
	if err := writeResult(it, nil, runErr, outputOptions{Writer: buf, JSON: true}); err != nil {
		t.Fatalf("writeResult: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got["error_stage"] != "execute" {
		t.Fatalf("expected execute stage, got %v", got["error_stage"])
	}
	if got["output"] != "partial\n" {
		t.Fatalf("expected partial output to be kept, got %v", got["output"])
	}
	if !strings.Contains(got["error"].(string), "attempt to index a nil value") {
		t.Fatalf("unexpected error text: %v", got["error"])
	}
}

func TestSetConfigValue(t *testing.T) {
	c := &cfgpkg.Global{}
	if err := setConfigValue(c, "exec_mode", "Sandboxed"); err != nil || c.ExecMode != "sandboxed" {
		t.Fatalf("exec_mode: %v %q", err, c.ExecMode)
	}
	if err := setConfigValue(c, "default_provider", "OpenRouter"); err != nil || c.DefaultProvider != "openrouter" {
		t.Fatalf("default_provider: %v %q", err, c.DefaultProvider)
	}
	if err := setConfigValue(c, "allowed_origins", "http://a, ,http://b"); err != nil || len(c.AllowedOrigins) != 2 {
		t.Fatalf("allowed_origins: %v %v", err, c.AllowedOrigins)
	}
	if err := setConfigValue(c, "max_history", "20"); err != nil || c.MaxHistory != 20 {
		t.Fatalf("max_history: %v %d", err, c.MaxHistory)
	}
	for _, kv := range [][2]string{
		{"default_provider", "acme"},
		{"exec_mode", "docker"},
		{"max_tokens", "-1"},
		{"temperature", "warm"},
		{"log_format", "xml"},
		{"nope", "1"},
	} {
		if err := setConfigValue(c, kv[0], kv[1]); err == nil {
			t.Errorf("expected error for %s=%s", kv[0], kv[1])
		}
	}
}

func TestMask(t *testing.T) {
	if mask("") != "" || mask("abc") != "******" || mask("sk-1234567890") != "sk-****890" {
		t.Fatalf("unexpected masks: %q %q %q", mask(""), mask("abc"), mask("sk-1234567890"))
	}
}

func TestWriteResultNotesNotRepeated(t *testing.T) {
	res := &executor.Result{Text: "42", Notes: []string{"first chart kept", "row limit hit"}}
	it := &pipeline.Interaction{Query: "q", Code: "result = 42", Notes: []string{"first chart kept"}}
	buf := &bytes.Buffer{}
	if err := writeResult(it, res, nil, outputOptions{Writer: buf}); err != nil {
		t.Fatalf("writeResult: %v", err)
	}
	out := buf.String()
	if n := strings.Count(out, "note: first chart kept"); n != 1 {
		t.Fatalf("expected the note once, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "note: row limit hit") {
		t.Fatalf("missing result note:\n%s", out)
	}
	if len(it.Notes) != 1 {
		t.Fatalf("interaction notes modified: %v", it.Notes)
	}
}
