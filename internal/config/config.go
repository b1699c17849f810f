package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec    int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	RetryMaxAttempts  int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs   int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Dataset and prompt
	PreviewRows      int `mapstructure:"preview_rows" yaml:"preview_rows"`
	PromptSampleRows int `mapstructure:"prompt_sample_rows" yaml:"prompt_sample_rows"`
	PromptTokenLimit int `mapstructure:"prompt_token_limit" yaml:"prompt_token_limit"`
	MaxRows          int `mapstructure:"max_rows" yaml:"max_rows"`
	MaxUploadMB      int `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	// Code execution trust boundary: trusted|sandboxed
	ExecMode       string `mapstructure:"exec_mode" yaml:"exec_mode"`
	ExecTimeoutSec int    `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`

	// Dashboard
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	SessionSecret  string   `mapstructure:"session_secret" yaml:"session_secret"`
	SessionTTLMin  int      `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	MaxHistory     int      `mapstructure:"max_history" yaml:"max_history"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ChartWidth     int      `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight    int      `mapstructure:"chart_height" yaml:"chart_height"`

	// Model catalog sync at startup
	ModelsCatalogURL string `mapstructure:"models_catalog_url" yaml:"models_catalog_url"`
	ModelsMerge      bool   `mapstructure:"models_merge" yaml:"models_merge"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// providerKeyEnv lists well-known provider variables consulted when api_key is unset.
var providerKeyEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENROUTER_API_KEY"}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.vizloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
// A .env file in the working directory is loaded first when present.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VIZLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api_key", "")
	v.SetDefault("default_model", "gemini-2.0-flash")
	v.SetDefault("default_provider", "gemini")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.2)
	// HTTP/retry defaults: one attempt, errors surface immediately
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)
	// Dataset/prompt defaults
	v.SetDefault("preview_rows", 5)
	v.SetDefault("prompt_sample_rows", 3)
	v.SetDefault("prompt_token_limit", 0)
	v.SetDefault("max_rows", 0)
	v.SetDefault("max_upload_mb", 10)
	// Execution defaults
	v.SetDefault("exec_mode", "trusted")
	v.SetDefault("exec_timeout_sec", 0)
	// Dashboard defaults
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_ttl_min", 60)
	v.SetDefault("max_history", 50)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("chart_width", 800)
	v.SetDefault("chart_height", 480)
	// Catalog defaults
	v.SetDefault("models_catalog_url", "")
	v.SetDefault("models_merge", true)
	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; a malformed file is an error, a missing one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.APIKey == "" {
		c.APIKey = EnvAPIKey()
	}
	c.ExecMode = strings.ToLower(strings.TrimSpace(c.ExecMode))
	return &c, nil
}

// EnvAPIKey returns the first provider key found in the environment.
func EnvAPIKey() string {
	for _, k := range providerKeyEnv {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".vizloom"), nil
}
