package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/surveyloom-cli/internal/config"
	"github.com/KaramelBytes/surveyloom-cli/internal/logging"
)

var (
	// Global flags
	cfgFile   string
	debug     bool
	logLevel  string
	logFile   string
	logFormat string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
	// logger is rebuilt from configuration before each command runs.
	logger    = slog.New(slog.DiscardHandler)
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "surveyloom",
	Short: "SurveyLoom CLI: chart and summarize survey exports",
	Long: `SurveyLoom reads a survey export (CSV or Excel), tags each column as
closed-form or open-ended, renders a bar chart per closed-form column and asks
a language model to summarize each open-ended response.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
			logCloser = nil
		}
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.surveyloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "stderr log format: text|json")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts per language-model call on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	setupLogging()

	// Optional: apply a model catalog at startup
	if cfg.ModelsCatalogURL != "" {
		if err := fetchAndApplyCatalog(cfg.ModelsCatalogURL, cfg.ModelsMerge); err != nil {
			logger.Warn("models catalog sync failed", "url", cfg.ModelsCatalogURL, "error", err)
		}
	}
}

func setupLogging() {
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok && cfg.LogLevel != "" {
		fmt.Fprintf(os.Stderr, "⚠ Warning: unknown log level %q, using %s\n", cfg.LogLevel, logging.DefaultLevel)
	}
	l, closer, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: logging setup failed: %v\n", err)
		return
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
	logger, logCloser = l, closer
	slog.SetDefault(logger)
}

// fetchCatalog downloads a JSON model catalog.
func fetchCatalog(url string) (map[string]ai.ModelInfo, error) {
	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	dec := json.NewDecoder(resp.Body)
	var m map[string]ai.ModelInfo
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return m, nil
}

// fetchAndApplyCatalog downloads a JSON catalog and applies it in-memory.
func fetchAndApplyCatalog(url string, merge bool) error {
	m, err := fetchCatalog(url)
	if err != nil {
		return err
	}
	applyCatalog(m, merge)
	return nil
}

func applyCatalog(m map[string]ai.ModelInfo, merge bool) {
	if merge {
		ai.MergeCatalog(m)
	} else {
		ai.OverrideCatalog(m)
	}
}

// requireConfig returns the loaded configuration or loads it on demand.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}
