package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
)

// EnvPrefix namespaces environment overrides, e.g. SURVEYLOOM_MODEL.
const EnvPrefix = "SURVEYLOOM"

// Global configuration structure.
type Global struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`

	// Text analysis
	SampleLimit       int    `mapstructure:"sample_limit" yaml:"sample_limit"`
	PromptContext     string `mapstructure:"prompt_context" yaml:"prompt_context"`
	Workers           int    `mapstructure:"workers" yaml:"workers"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	CallTimeoutSec    int    `mapstructure:"call_timeout_sec" yaml:"call_timeout_sec"`

	// Classification thresholds
	OpenEndedMeanLength float64 `mapstructure:"open_ended_mean_length" yaml:"open_ended_mean_length"`
	ClosedFormMaxUnique int     `mapstructure:"closed_form_max_unique" yaml:"closed_form_max_unique"`
	ClosedFormMaxLength int     `mapstructure:"closed_form_max_length" yaml:"closed_form_max_length"`

	// Charts and outputs
	ChartFormat string `mapstructure:"chart_format" yaml:"chart_format"`
	ChartWidth  int    `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height" yaml:"chart_height"`
	ChartsDir   string `mapstructure:"charts_dir" yaml:"charts_dir"`
	ResultsDir  string `mapstructure:"results_dir" yaml:"results_dir"`

	// Models catalog
	ModelsCatalogURL string `mapstructure:"models_catalog_url" yaml:"models_catalog_url"`
	ModelsMerge      bool   `mapstructure:"models_merge" yaml:"models_merge"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists every configuration key in file order.
func Keys() []string {
	return []string{
		"api_key", "provider", "model", "temperature", "max_tokens", "base_url",
		"sample_limit", "prompt_context", "workers", "requests_per_minute", "call_timeout_sec",
		"open_ended_mean_length", "closed_form_max_unique", "closed_form_max_length",
		"chart_format", "chart_width", "chart_height", "charts_dir", "results_dir",
		"models_catalog_url", "models_merge",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
		"ollama_host",
		"log_level", "log_file", "log_format",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("provider", ai.ProviderOpenAI)
	v.SetDefault("model", "gpt-3.5-turbo")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_tokens", 0)
	v.SetDefault("base_url", "")
	v.SetDefault("sample_limit", 50)
	v.SetDefault("prompt_context", "a bank survey")
	v.SetDefault("workers", 1)
	v.SetDefault("requests_per_minute", 0)
	v.SetDefault("call_timeout_sec", 60)
	v.SetDefault("open_ended_mean_length", 20.0)
	v.SetDefault("closed_form_max_unique", 15)
	v.SetDefault("closed_form_max_length", 50)
	v.SetDefault("chart_format", "png")
	v.SetDefault("chart_width", 1000)
	v.SetDefault("chart_height", 600)
	v.SetDefault("charts_dir", filepath.Join("results", "plots"))
	v.SetDefault("results_dir", "results")
	v.SetDefault("models_catalog_url", "")
	v.SetDefault("models_merge", true)
	// HTTP/retry defaults; a single attempt unless configured otherwise
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_format", "text")
}

// DefaultPath returns ~/.surveyloom/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".surveyloom", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.surveyloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// The file may hold a credential.
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A .env file in the working
// directory is read first; a missing one is ignored.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	// The credential also honors the conventional OpenAI variable.
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = ai.NormalizeProvider(c.Provider)
	return &c, nil
}

// Validate reports the first invalid setting.
func (c *Global) Validate() error {
	if _, ok := ai.GetRuntime(c.Provider, ai.RuntimeConfig{}); !ok {
		return fmt.Errorf("unknown provider %q (available: %s)", c.Provider, strings.Join(ai.Providers(), ", "))
	}
	switch {
	case c.OpenEndedMeanLength <= 0:
		return fmt.Errorf("open_ended_mean_length must be positive")
	case c.ClosedFormMaxUnique <= 0:
		return fmt.Errorf("closed_form_max_unique must be positive")
	case c.ClosedFormMaxLength <= 0:
		return fmt.Errorf("closed_form_max_length must be positive")
	case c.SampleLimit <= 0:
		return fmt.Errorf("sample_limit must be positive")
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative")
	case c.RequestsPerMinute < 0:
		return fmt.Errorf("requests_per_minute must not be negative")
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2")
	case c.RetryMaxAttempts < 0:
		return fmt.Errorf("retry_max_attempts must not be negative")
	}
	switch strings.ToLower(c.ChartFormat) {
	case "png", "svg":
	default:
		return fmt.Errorf("chart_format must be png or svg")
	}
	return nil
}

// Set assigns a single key from its string form, as used by `config set`.
func (c *Global) Set(key, value string) error {
	v := viper.New()
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(b))); err != nil {
		return err
	}
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown config key %q", key)
	}
	v.Set(key, value)
	var out Global
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	*c = out
	return nil
}

// RuntimeConfig maps the HTTP, retry and credential settings onto the
// runtime factory configuration.
func (c *Global) RuntimeConfig() ai.RuntimeConfig {
	return ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Host:        c.OllamaHost,
	}
}
