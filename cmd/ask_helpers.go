package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
	"github.com/KaramelBytes/vizloom/internal/render"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

type runtimeOptions struct {
	ProviderFlag string
	APIKeyFlag   string
	OllamaHost   string
}

// resolveProvider normalizes the provider name: flag, then config, then default.
func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	p := strings.ToLower(strings.TrimSpace(flag))
	if p == "" && cfg != nil {
		p = strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	}
	switch p {
	case "":
		return ai.DefaultProvider
	case ai.ProviderGoogle:
		return ai.ProviderGemini
	case ai.ProviderLocal:
		return ai.ProviderOllama
	}
	return p
}

// apiKeyFor picks the key for provider: flag, provider-specific environment
// variables, then the configured api_key.
func apiKeyFor(cfg *cfgpkg.Global, provider, flag string) string {
	if k := strings.TrimSpace(flag); k != "" {
		return k
	}
	var envs []string
	switch provider {
	case ai.ProviderGemini:
		envs = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ai.ProviderOpenRouter:
		envs = []string{"OPENROUTER_API_KEY"}
	}
	for _, e := range envs {
		if v := strings.TrimSpace(os.Getenv(e)); v != "" {
			return v
		}
	}
	if cfg != nil {
		return cfg.APIKey
	}
	return ""
}

func runtimeConfig(cfg *cfgpkg.Global, provider string, opts runtimeOptions) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{HTTPTimeout: 60 * time.Second}
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		rc.Retry = ai.Backoff{
			Attempts:  cfg.RetryMaxAttempts,
			BaseDelay: time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:  time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		}
	}
	if provider == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = ai.DefaultOllamaHost
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}
	return rc
}

// buildRuntime returns the model runtime and the resolved provider name.
func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	provider := resolveProvider(cfg, opts.ProviderFlag)
	rc := runtimeConfig(cfg, provider, opts)
	rc.APIKey = apiKeyFor(cfg, provider, opts.APIKeyFlag)
	rt, err := ai.GetRuntime(provider, rc)
	if err != nil {
		return nil, provider, err
	}
	return rt, provider, nil
}

// selectModel picks the model: flag, then config when it belongs to the
// provider, then the provider default.
func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		if mi, ok := ai.LookupModel(cfg.DefaultModel); !ok || mi.Provider == provider {
			return cfg.DefaultModel
		}
	}
	return ai.DefaultModelFor(provider)
}

func newExecutor(cfg *cfgpkg.Global, modeFlag string) (*executor.LuaExecutor, error) {
	mode := modeFlag
	if mode == "" && cfg != nil {
		mode = cfg.ExecMode
	}
	m, err := executor.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	opt := executor.Options{Mode: m, Logger: log}
	if cfg != nil && cfg.ExecTimeoutSec > 0 {
		opt.Timeout = time.Duration(cfg.ExecTimeoutSec) * time.Second
	}
	return executor.New(opt), nil
}

func pipelineOptions(cfg *cfgpkg.Global, model string) pipeline.Options {
	opt := pipeline.Options{Model: model, MaxTokens: 2048, Temperature: 0.2, SampleRows: 3}
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			opt.MaxTokens = cfg.MaxTokens
		}
		opt.Temperature = cfg.Temperature
		opt.SampleRows = cfg.PromptSampleRows
		opt.TokenLimit = cfg.PromptTokenLimit
		if cfg.RequestTimeoutSec > 0 {
			opt.RequestTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
		}
	}
	return opt
}

// parseDelimiter maps a --delimiter value to a rune; "" means auto.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s", s)
}

func datasetOptions(cfg *cfgpkg.Global, delimiter string) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	if cfg != nil {
		opt.MaxRows = cfg.MaxRows
		if cfg.PreviewRows > 0 {
			opt.SampleRows = cfg.PreviewRows
		}
	}
	d, err := parseDelimiter(delimiter)
	if err != nil {
		return opt, err
	}
	opt.Delimiter = d
	return opt, nil
}

func loadDatasetFile(path string, opt dataset.Options) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return pipeline.LoadDataset(filepath.Base(path), f, opt)
}

// explainError adds provider-specific hints to a pipeline error.
func explainError(err error, provider, model string) error {
	var (
		authErr *ai.AuthError
		nfErr   *ai.ModelNotFoundError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &unreach) && provider == ai.ProviderOllama:
		return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (config 'ollama_host' or --ollama-host): %w", unreach.Host, err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: pass --api-key, set GEMINI_API_KEY/OPENROUTER_API_KEY, or add api_key in ~/.vizloom/config.yaml: %w", err)
	case errors.As(err, &nfErr) && provider == ai.ProviderOllama:
		return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
	case errors.As(err, &nfErr):
		return fmt.Errorf("model not found (%s). Check 'vizloom models show': %w", model, err)
	}
	return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
}

type resultJSON struct {
	Query        string          `json:"query,omitempty"`
	Model        string          `json:"model,omitempty"`
	PromptTokens int             `json:"prompt_tokens,omitempty"`
	Code         string          `json:"code,omitempty"`
	Output       string          `json:"output,omitempty"`
	Text         string          `json:"text,omitempty"`
	Table        *executor.Table `json:"table,omitempty"`
	Chart        *chartJSON      `json:"chart,omitempty"`
	ChartFile    string          `json:"chart_file,omitempty"`
	Notes        []string        `json:"notes,omitempty"`
	Stage        string          `json:"error_stage,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type chartJSON struct {
	Kind   executor.ChartKind `json:"kind"`
	Title  string             `json:"title,omitempty"`
	Labels []string           `json:"labels,omitempty"`
	X      []float64          `json:"x,omitempty"`
	Y      []float64          `json:"y"`
}

type outputOptions struct {
	JSON      bool
	ChartOut  string
	ChartW    int
	ChartH    int
	TableRows int
	Writer    io.Writer
}

// writeResult prints an execution result, saving the chart when requested.
// it may be nil for local script runs.
func writeResult(it *pipeline.Interaction, res *executor.Result, runErr error, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	out := resultJSON{}
	if it != nil {
		out.Query, out.Model, out.PromptTokens, out.Code, out.Notes = it.Query, it.Model, it.Tokens, it.Code, it.Notes
		out.Stage = it.Stage()
	}
	if res != nil {
		out.Output, out.Text, out.Table = res.Output, res.Text, res.Table
		out.Notes = mergeNotes(out.Notes, res.Notes)
		if c := res.Chart; c != nil {
			out.Chart = &chartJSON{Kind: c.Kind, Title: c.Title, Labels: c.Labels, X: c.X, Y: c.Y}
		}
	}
	var rerr *executor.RuntimeError
	if errors.As(runErr, &rerr) {
		out.Output = rerr.Output
	}
	if runErr != nil {
		out.Error = pipeline.UserMessage(runErr)
	}
	if out.Chart != nil && opts.ChartOut != "" {
		png, err := render.ChartPNG(res.Chart, opts.ChartW, opts.ChartH)
		if err != nil {
			out.Notes = append(out.Notes, "chart could not be drawn: "+err.Error())
		} else if err := utils.SafeWriteFile(opts.ChartOut, png); err != nil {
			return fmt.Errorf("write chart: %w", err)
		} else {
			out.ChartFile = opts.ChartOut
		}
	}

	if opts.JSON {
		b, err := utils.PrettyJSON(out)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(w, string(b))
		return nil
	}

	if out.Code != "" {
		fmt.Fprintln(w, "=== Generated code ===")
		fmt.Fprintln(w, out.Code)
	}
	if out.Output != "" {
		fmt.Fprintln(w, "=== Output ===")
		fmt.Fprint(w, out.Output)
		if !strings.HasSuffix(out.Output, "\n") {
			fmt.Fprintln(w)
		}
	}
	if out.Table != nil || out.Text != "" {
		fmt.Fprintln(w, "=== Result ===")
		if out.Table != nil {
			fmt.Fprint(w, render.TableText(out.Table, opts.TableRows))
		}
		if out.Text != "" {
			fmt.Fprintln(w, out.Text)
		}
	}
	if out.Chart != nil {
		switch {
		case out.ChartFile != "":
			fmt.Fprintf(w, "✓ Saved %s chart to %s\n", out.Chart.Kind, out.ChartFile)
		default:
			fmt.Fprintf(w, "Chart: %s %q (use --chart-out to save it as PNG)\n", out.Chart.Kind, out.Chart.Title)
		}
	}
	for _, n := range out.Notes {
		fmt.Fprintf(w, "note: %s\n", n)
	}
	return nil
}

// mergeNotes returns a new slice with base followed by the entries of extra
// not already in base.
func mergeNotes(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, n := range extra {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
