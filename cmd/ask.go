package cmd

import (
	"context"
	"crypto/sha1"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
)

var (
	askAPIKey      string
	askProvider    string
	askModel       string
	askMaxTokens   int
	askTemp        float64
	askExecMode    string
	askPrintPrompt bool
	askDryRun      bool
	askChartOut    string
	askJSON        bool
	askTimeoutSec  int
	askOllamaHost  string
	askDelimiter   string
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Ask one question about a dataset and run the generated analysis",
	Example: `  vizloom ask titanic.csv "average fare by Pclass" --chart-out fares.png
  vizloom ask titanic.csv "survival rate by sex" --provider openrouter --model google/gemini-2.0-flash-001
  vizloom ask sales.tsv "monthly revenue trend" --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, question := args[0], args[1]

		dopt, err := datasetOptions(cfg, askDelimiter)
		if err != nil {
			return err
		}
		ds, err := loadDatasetFile(path, dopt)
		if err != nil {
			return err
		}

		provider := resolveProvider(cfg, askProvider)
		model := selectModel(cfg, provider, askModel)
		popt := pipelineOptions(cfg, model)
		if askMaxTokens > 0 {
			popt.MaxTokens = askMaxTokens
		}
		if cmd.Flags().Changed("temp") {
			popt.Temperature = askTemp
		}

		ex, err := newExecutor(cfg, askExecMode)
		if err != nil {
			return err
		}

		if askDryRun {
			p := pipeline.New(nil, ex, popt, pipeline.WithLogger(log))
			pr, err := p.BuildPrompt(ds, question)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			b := pr.Breakdown()
			fmt.Fprintf(out, "Tokens: total≈%d (instructions≈%d, schema≈%d, samples≈%d, question≈%d)\n",
				pr.Tokens, b["instructions"], b["schema"], b["samples"], b["question"])
			if mi, ok := ai.LookupModel(model); ok {
				if cost, ok := ai.EstimateCostUSD(model, pr.Tokens, popt.MaxTokens); ok {
					fmt.Fprintf(out, "Estimated max cost: ~$%.4f (in %.4f/out %.4f per 1K tokens)\n", cost, mi.InputPerK, mi.OutputPerK)
				}
			}
			sum := sha1.Sum([]byte(pr.Text))
			fmt.Fprintln(out, "\n--dry-run: no API call will be made. Prompt preview below --")
			fmt.Fprintf(out, "Request ID (dry-run): sim_%x\n", sum[:6])
			fmt.Fprintln(out, pr.Text)
			return nil
		}

		rt, provider, err := buildRuntime(cfg, runtimeOptions{
			ProviderFlag: askProvider,
			APIKeyFlag:   askAPIKey,
			OllamaHost:   askOllamaHost,
		})
		if err != nil {
			return err
		}
		p := pipeline.New(rt, ex, popt, pipeline.WithLogger(log))

		if askPrintPrompt && !askJSON {
			pr, err := p.BuildPrompt(ds, question)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "--print-prompt: sending the following prompt --")
			fmt.Fprintln(cmd.OutOrStdout(), pr.Text)
		}

		timeout := time.Duration(askTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if !askJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "⚙ Asking %s (%s) about %s (%d rows) ...\n", model, provider, ds.Name, ds.NumRows())
		}
		it, askErr := p.Ask(ctx, ds, question)
		log.Debug("ask finished", zap.String("id", it.ID), zap.String("stage", it.Stage()))

		if err := writeResult(it, it.Result, askErr, outputOptions{
			JSON:     askJSON,
			ChartOut: askChartOut,
			ChartW:   chartWidth(),
			ChartH:   chartHeight(),
			Writer:   cmd.OutOrStdout(),
		}); err != nil {
			return err
		}
		if askErr != nil {
			return explainError(askErr, provider, model)
		}
		return nil
	},
}

func chartWidth() int {
	if cfg != nil {
		return cfg.ChartWidth
	}
	return 0
}

func chartHeight() int {
	if cfg != nil {
		return cfg.ChartHeight
	}
	return 0
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askAPIKey, "api-key", "", "API key for the provider (overrides env and config)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "model provider: gemini|openrouter|ollama")
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (default depends on provider)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max tokens for the response")
	askCmd.Flags().Float64Var(&askTemp, "temp", 0, "sampling temperature")
	askCmd.Flags().StringVar(&askExecMode, "exec-mode", "", "how to run generated code: trusted|sandboxed")
	askCmd.Flags().BoolVar(&askPrintPrompt, "print-prompt", false, "print the prompt being sent")
	askCmd.Flags().BoolVar(&askDryRun, "dry-run", false, "build the prompt and print it without calling the API")
	askCmd.Flags().StringVar(&askChartOut, "chart-out", "", "write the chart to this PNG file")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the result as JSON")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 180, "request timeout in seconds")
	askCmd.Flags().StringVar(&askOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	askCmd.Flags().StringVar(&askDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (auto if omitted)")
}
