package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/metrics"
	"github.com/KaramelBytes/vizloom/internal/session"
	"github.com/KaramelBytes/vizloom/internal/web"
)

var (
	serveAddr       string
	serveExecMode   string
	serveProvider   string
	serveModel      string
	serveOllamaHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser dashboard",
	Long: `Serve starts the dashboard: enter an API key, upload a CSV, ask questions and
see generated code, output, tables and charts for each answer.

Generated code runs on this machine. Keep the default loopback address unless
everyone who can reach the port is trusted, or use --exec-mode sandboxed.`,
	Example: `  vizloom serve
  vizloom serve --addr 127.0.0.1:9000 --exec-mode sandboxed
  vizloom serve --provider ollama --model qwen2.5-coder:7b`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if c == nil {
			loaded, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			c = loaded
		}
		addr := serveAddr
		if addr == "" {
			addr = c.ListenAddr
		}

		ex, err := newExecutor(c, serveExecMode)
		if err != nil {
			return err
		}
		provider := resolveProvider(c, serveProvider)
		if _, err := ai.GetRuntime(provider, ai.RuntimeConfig{}); err != nil {
			return err
		}
		model := selectModel(c, provider, serveModel)

		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}
		rec := metrics.New()
		store := session.NewStore(session.Options{
			TTL:        time.Duration(c.SessionTTLMin) * time.Minute,
			MaxHistory: c.MaxHistory,
			Logger:     log,
			OnChange:   rec.SetSessions,
		})

		factory := func(apiKey string) (ai.Runtime, error) {
			rt, _, err := buildRuntime(c, runtimeOptions{
				ProviderFlag: provider,
				APIKeyFlag:   apiKey,
				OllamaHost:   serveOllamaHost,
			})
			return rt, err
		}

		dopt, err := datasetOptions(c, "")
		if err != nil {
			return err
		}
		srv, err := web.New(web.Options{
			Addr:           addr,
			SessionSecret:  []byte(c.SessionSecret),
			SessionTTL:     time.Duration(c.SessionTTLMin) * time.Minute,
			AllowedOrigins: c.AllowedOrigins,
			MaxUploadBytes: int64(c.MaxUploadMB) << 20,
			PreviewRows:    c.PreviewRows,
			ChartWidth:     c.ChartWidth,
			ChartHeight:    c.ChartHeight,
			Provider:       provider,
			Dataset:        dopt,
			Pipeline:       pipelineOptions(c, model),
		}, factory, ex, store, rec, log)
		if err != nil {
			return err
		}

		if !isLoopback(addr) {
			fmt.Fprintf(os.Stderr, "⚠ Warning: listening on %s; anyone who can reach it can run code on this machine (exec mode %s)\n", addr, ex.Mode())
		}
		if c.SessionSecret == "" {
			log.Info("no session_secret configured; sessions will not survive a restart")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard on http://%s (provider %s, model %s)\n", addr, provider, model)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Error("dashboard stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func isLoopback(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8501)")
	serveCmd.Flags().StringVar(&serveExecMode, "exec-mode", "", "how to run generated code: trusted|sandboxed")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "model provider: gemini|openrouter|ollama")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "model name (default depends on provider)")
	serveCmd.Flags().StringVar(&serveOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
}
