package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/chart"
	"github.com/KaramelBytes/surveyloom-cli/internal/classify"
	cfgpkg "github.com/KaramelBytes/surveyloom-cli/internal/config"
	"github.com/KaramelBytes/surveyloom-cli/internal/pipeline"
)

// runFlags are the per-run overrides shared by analyze and analyze-batch.
type runFlags struct {
	chartsDir     string
	resultsDir    string
	provider      string
	model         string
	temperature   float64
	sampleLimit   int
	workers       int
	rpm           int
	callTimeout   int
	promptContext string
	chartFormat   string
	delimiter     string
	sheetName     string
	sheetIndex    int
	maxRows       int
	dryRun        bool
	noManifest    bool
	metricsFile   string
	budgetLimit   float64
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.chartsDir, "charts-dir", "", "directory for chart images, cleared on every run (default from config)")
	fl.StringVar(&f.resultsDir, "results-dir", "", "directory for result files (default from config)")
	fl.StringVar(&f.provider, "provider", "", "language-model provider: openai|openrouter|ollama")
	fl.StringVar(&f.model, "model", "", "model used for open-ended analysis")
	fl.Float64Var(&f.temperature, "temperature", 0, "sampling temperature (default from config)")
	fl.IntVar(&f.sampleLimit, "sample-limit", 0, "responses analyzed per open-ended column")
	fl.IntVar(&f.workers, "workers", 0, "concurrent language-model calls and chart renders")
	fl.IntVar(&f.rpm, "rpm", 0, "max language-model requests per minute (0 = unlimited)")
	fl.IntVar(&f.callTimeout, "call-timeout", 0, "per-call timeout in seconds")
	fl.StringVar(&f.promptContext, "prompt-context", "", "where the feedback comes from, e.g. \"a bank survey\"")
	fl.StringVar(&f.chartFormat, "chart-format", "", "chart image format: png|svg")
	fl.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	fl.StringVar(&f.sheetName, "sheet-name", "", "Excel: sheet name to read")
	fl.IntVar(&f.sheetIndex, "sheet-index", 1, "Excel: 1-based sheet index (used if --sheet-name not provided)")
	fl.IntVar(&f.maxRows, "max-rows", 0, "maximum rows to read (0 = unlimited)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "classify and estimate analysis cost without calling the model or writing files")
	fl.BoolVar(&f.noManifest, "no-manifest", false, "do not write <result>.manifest.json")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	fl.Float64Var(&f.budgetLimit, "budget-limit", 0, "abort before any model call if the estimated cost in USD exceeds this (0 = no limit)")
}

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
	default:
		return 0, fmt.Errorf("unsupported --delimiter: %s", s)
	}
}

// defaultResultPath mirrors the input name: survey.xlsx -> analyzed_survey.csv.
func defaultResultPath(resultsDir, input string) string {
	base := filepath.Base(input)
	return filepath.Join(resultsDir, "analyzed_"+strings.TrimSuffix(base, filepath.Ext(base))+".csv")
}

// pipelineOptions merges configuration and flags into run options and
// returns the effective configuration. The input and result paths are left
// for the caller to fill in.
func pipelineOptions(cmd *cobra.Command, base *cfgpkg.Global, f *runFlags) (pipeline.Options, *cfgpkg.Global, error) {
	eff := *base
	c := &eff
	fl := cmd.Flags()
	if fl.Changed("provider") {
		c.Provider = ai.NormalizeProvider(f.provider)
	}
	explicit := ""
	if fl.Changed("model") {
		explicit = f.model
	}
	c.Model = selectModel(c, explicit)
	if fl.Changed("temperature") {
		c.Temperature = f.temperature
	}
	if fl.Changed("sample-limit") {
		c.SampleLimit = f.sampleLimit
	}
	if fl.Changed("workers") {
		c.Workers = f.workers
	}
	if fl.Changed("rpm") {
		c.RequestsPerMinute = f.rpm
	}
	if fl.Changed("call-timeout") {
		c.CallTimeoutSec = f.callTimeout
	}
	if f.promptContext != "" {
		c.PromptContext = f.promptContext
	}
	if f.chartFormat != "" {
		c.ChartFormat = f.chartFormat
	}
	if f.chartsDir != "" {
		c.ChartsDir = f.chartsDir
	}
	if f.resultsDir != "" {
		c.ResultsDir = f.resultsDir
	}
	if err := c.Validate(); err != nil {
		return pipeline.Options{}, nil, err
	}

	opts := pipeline.DefaultOptions()
	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		return opts, nil, err
	}
	opts.Load.Delimiter = delim
	opts.Load.SheetName = f.sheetName
	opts.Load.SheetIndex = f.sheetIndex
	opts.Load.MaxRows = f.maxRows

	opts.Thresholds = classify.Thresholds{
		OpenEndedMeanLength: c.OpenEndedMeanLength,
		ClosedFormMaxUnique: c.ClosedFormMaxUnique,
		ClosedFormMaxLength: c.ClosedFormMaxLength,
	}

	format, err := chart.ParseFormat(c.ChartFormat)
	if err != nil {
		return opts, nil, err
	}
	opts.Charts.Format = format
	opts.Charts.Width = c.ChartWidth
	opts.Charts.Height = c.ChartHeight
	opts.Charts.Workers = c.Workers

	opts.Insight.Model = c.Model
	opts.Insight.Temperature = c.Temperature
	opts.Insight.MaxTokens = c.MaxTokens
	opts.Insight.SampleLimit = c.SampleLimit
	opts.Insight.PromptContext = c.PromptContext
	opts.Insight.Workers = c.Workers
	opts.Insight.RequestsPerMinute = c.RequestsPerMinute
	opts.Insight.CallTimeout = time.Duration(c.CallTimeoutSec) * time.Second

	opts.DryRun = f.dryRun
	opts.NoManifest = f.noManifest
	opts.ChartsDir = c.ChartsDir
	return opts, c, nil
}

// newRuntime builds the configured language-model runtime.
func newRuntime(c *cfgpkg.Global) (ai.Runtime, error) {
	rt, ok := ai.GetRuntime(c.Provider, c.RuntimeConfig())
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", c.Provider, strings.Join(ai.Providers(), ", "))
	}
	return rt, nil
}

// selectModel picks the analysis model: an explicit flag, else the
// configured model unless the catalog places it under another provider,
// else the provider's default.
func selectModel(c *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c.Model != "" {
		if mi, ok := ai.LookupModel(c.Model); !ok || mi.Provider == "" || mi.Provider == c.Provider {
			return c.Model
		}
	}
	return ai.DefaultModel(c.Provider)
}

func enforceBudget(est *pipeline.Estimate, limit float64) error {
	if limit <= 0 || est == nil {
		return nil
	}
	if !est.CostKnown {
		return fmt.Errorf("✗ No pricing for model %s; cannot enforce budget limit ~$%.4f", est.Model, limit)
	}
	if est.CostUSD > limit {
		return fmt.Errorf("✗ Estimated cost ~$%.4f exceeds budget limit ~$%.4f", est.CostUSD, limit)
	}
	return nil
}

// checkBudget estimates a real run and fails if it would exceed limit.
func checkBudget(ctx context.Context, opts pipeline.Options, limit float64) error {
	if opts.DryRun || limit <= 0 {
		return nil
	}
	opts.DryRun = true
	res, err := pipeline.New(nil, logger, nil).Run(ctx, opts)
	if err != nil {
		return err
	}
	return enforceBudget(res.Estimate, limit)
}

func needsAPIKey(provider string) bool {
	return ai.NormalizeProvider(provider) != ai.ProviderOllama
}
