package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/executor"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set vizloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		printConfig(os.Stdout, cfg)
		return nil
	},
}

func printConfig(w io.Writer, c *cfgpkg.Global) {
	fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
	fmt.Fprintf(w, "default_provider: %s\n", c.DefaultProvider)
	fmt.Fprintf(w, "default_model: %s\n", c.DefaultModel)
	fmt.Fprintf(w, "max_tokens: %d\n", c.MaxTokens)
	fmt.Fprintf(w, "temperature: %.3f\n", c.Temperature)
	fmt.Fprintf(w, "exec_mode: %s\n", c.ExecMode)
	if c.ExecTimeoutSec > 0 {
		fmt.Fprintf(w, "exec_timeout_sec: %d\n", c.ExecTimeoutSec)
	}
	fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
	fmt.Fprintf(w, "request_timeout_sec: %d\n", c.RequestTimeoutSec)
	fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
	fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
	fmt.Fprintf(w, "preview_rows: %d\n", c.PreviewRows)
	fmt.Fprintf(w, "prompt_sample_rows: %d\n", c.PromptSampleRows)
	if c.PromptTokenLimit > 0 {
		fmt.Fprintf(w, "prompt_token_limit: %d\n", c.PromptTokenLimit)
	}
	if c.MaxRows > 0 {
		fmt.Fprintf(w, "max_rows: %d\n", c.MaxRows)
	}
	fmt.Fprintf(w, "max_upload_mb: %d\n", c.MaxUploadMB)
	fmt.Fprintf(w, "listen_addr: %s\n", c.ListenAddr)
	fmt.Fprintf(w, "session_secret: %s\n", mask(c.SessionSecret))
	fmt.Fprintf(w, "session_ttl_min: %d\n", c.SessionTTLMin)
	fmt.Fprintf(w, "max_history: %d\n", c.MaxHistory)
	if len(c.AllowedOrigins) > 0 {
		fmt.Fprintf(w, "allowed_origins: %s\n", strings.Join(c.AllowedOrigins, ","))
	}
	fmt.Fprintf(w, "log_level: %s\n", c.LogLevel)
	fmt.Fprintf(w, "log_format: %s\n", c.LogFormat)
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p := strings.ToLower(strings.TrimSpace(val))
		if _, gerr := ai.GetRuntime(p, ai.RuntimeConfig{}); gerr != nil {
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), "|"))
		}
		c.DefaultProvider = p
	case "exec_mode":
		m, perr := executor.ParseMode(val)
		if perr != nil {
			return perr
		}
		c.ExecMode = string(m)
	case "exec_timeout_sec":
		c.ExecTimeoutSec, err = atoi()
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		f, ferr := strconv.ParseFloat(val, 64)
		if ferr != nil {
			return fmt.Errorf("invalid float for temperature: %w", ferr)
		}
		c.Temperature = f
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "request_timeout_sec":
		c.RequestTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "ollama_host":
		c.OllamaHost = val
	case "preview_rows":
		c.PreviewRows, err = atoi()
	case "prompt_sample_rows":
		c.PromptSampleRows, err = atoi()
	case "prompt_token_limit":
		c.PromptTokenLimit, err = atoi()
	case "max_rows":
		c.MaxRows, err = atoi()
	case "max_upload_mb":
		c.MaxUploadMB, err = atoi()
	case "listen_addr":
		c.ListenAddr = val
	case "session_secret":
		c.SessionSecret = val
	case "session_ttl_min":
		c.SessionTTLMin, err = atoi()
	case "max_history":
		c.MaxHistory, err = atoi()
	case "allowed_origins":
		c.AllowedOrigins = nil
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	case "models_catalog_url":
		c.ModelsCatalogURL = val
	case "log_level":
		c.LogLevel = val
	case "log_format":
		if val != "console" && val != "json" {
			return fmt.Errorf("invalid log_format: %s (use console|json)", val)
		}
		c.LogFormat = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
