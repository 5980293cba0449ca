// Package pipeline sequences a survey analysis run: load, classify, chart
// closed-form columns, analyze open-ended columns, and write the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/chart"
	"github.com/KaramelBytes/surveyloom-cli/internal/classify"
	"github.com/KaramelBytes/surveyloom-cli/internal/insight"
	"github.com/KaramelBytes/surveyloom-cli/internal/metrics"
	"github.com/KaramelBytes/surveyloom-cli/internal/table"
)

// Stage names the step of a run that failed.
type Stage string

const (
	StageLoad     Stage = "load"
	StageClassify Stage = "classify"
	StageCharts   Stage = "charts"
	StageAnalyze  Stage = "analyze"
	StageWrite    Stage = "write"
)

// AnalysisError aborts a run. It wraps the underlying stage error, so
// errors.As can still reach a *table.LoadError and the like.
type AnalysisError struct {
	Stage Stage
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s stage: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &AnalysisError{Stage: stage, Err: err}
}

// ErrNoRuntime is returned when open-ended columns exist but no
// language-model runtime was supplied.
var ErrNoRuntime = errors.New("no language-model runtime configured")

// Options describe one run.
type Options struct {
	InputPath  string
	ResultPath string
	ChartsDir  string

	Load       table.Options
	Thresholds classify.Thresholds
	Charts     chart.Options
	Insight    insight.Options

	// DryRun loads and classifies, then estimates the analysis cost
	// without touching the charts directory or writing any file.
	DryRun bool
	// NoManifest skips writing <result>.manifest.json.
	NoManifest bool
}

// DefaultOptions returns a run configuration with every component default.
func DefaultOptions() Options {
	return Options{
		Load:       table.DefaultOptions(),
		Thresholds: classify.DefaultThresholds(),
		Charts:     chart.DefaultOptions(),
		Insight:    insight.DefaultOptions(),
	}
}

// Result is the outcome of a successful run.
type Result struct {
	RunID          string
	Rows           int
	Classification *classify.Result
	// Charts are chart file base names in column order.
	Charts        []string
	ChartFailures []*chart.RenderError
	Reports       []*insight.ColumnReport
	ResultPath    string
	ManifestPath  string
	Estimate      *Estimate
	Duration      time.Duration
}

// Pipeline runs survey analyses against a language-model runtime.
type Pipeline struct {
	rt      ai.Runtime
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// New returns a Pipeline. rt may be nil when no open-ended column is
// expected or for dry runs; logger and rec may be nil.
func New(rt ai.Runtime, logger *slog.Logger, rec *metrics.Recorder) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{rt: rt, logger: logger, metrics: rec}
}

// Run executes the pipeline. Per-column chart failures and per-response
// call failures are reported in the Result; any other failure aborts the
// run with an *AnalysisError.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.InputPath == "" {
		return nil, fail(StageLoad, errors.New("input path is required"))
	}
	if !opts.DryRun {
		if opts.ResultPath == "" {
			return nil, fail(StageWrite, errors.New("result path is required"))
		}
		if opts.ChartsDir == "" {
			return nil, fail(StageCharts, errors.New("charts directory is required"))
		}
	}
	res := &Result{RunID: uuid.NewString()}
	log := p.logger.With("run_id", res.RunID)

	// Load
	t, err := table.LoadFile(opts.InputPath, opts.Load)
	if err != nil {
		return nil, fail(StageLoad, err)
	}
	res.Rows = t.Rows()
	p.metrics.ObserveRows(t.Rows())
	log.Info("survey loaded", "file", opts.InputPath, "rows", t.Rows(), "columns", len(t.Columns()))

	// Classify; an empty table has nothing to classify.
	res.Classification = &classify.Result{}
	if t.Rows() > 0 && len(t.Columns()) > 0 {
		cr, err := classify.Classify(t, opts.Thresholds)
		if err != nil {
			return nil, fail(StageClassify, err)
		}
		res.Classification = cr
	} else {
		log.Warn("survey has no data rows; skipping classification")
	}
	for _, k := range []classify.Kind{classify.ClosedForm, classify.OpenEnded, classify.Skipped} {
		p.metrics.ObserveColumns(string(k), res.Classification.Count(k))
	}
	closed := res.Classification.Names(classify.ClosedForm)
	open := res.Classification.Names(classify.OpenEnded)
	log.Info("columns classified", "closed_form", len(closed), "open_ended", len(open),
		"skipped", res.Classification.Count(classify.Skipped))

	if opts.DryRun {
		res.Estimate = p.estimate(t, open, opts.Insight)
		res.Duration = time.Since(start)
		return res, nil
	}

	// Charts: the directory is cleared even when no column qualifies.
	cres, err := chart.NewRenderer(opts.Charts, log).Render(ctx, t, closed, opts.ChartsDir)
	if err != nil {
		return nil, fail(StageCharts, err)
	}
	res.Charts = cres.Files
	res.ChartFailures = cres.Failures
	p.metrics.ObserveCharts(len(cres.Files), len(cres.Failures))

	// Text analysis
	if len(open) > 0 {
		if p.rt == nil {
			return nil, fail(StageAnalyze, ErrNoRuntime)
		}
		iopts := opts.Insight
		userHook := iopts.OnCall
		iopts.OnCall = func(column string, d time.Duration, err error) {
			p.metrics.ObserveCall(d, err)
			if userHook != nil {
				userHook(column, d, err)
			}
		}
		reports, err := insight.New(p.rt, iopts, log).Analyze(ctx, t, open)
		if err != nil {
			return nil, fail(StageAnalyze, err)
		}
		res.Reports = reports
	}

	// Serialize
	if err := table.WriteFile(t, opts.ResultPath); err != nil {
		return nil, fail(StageWrite, err)
	}
	res.ResultPath = opts.ResultPath
	res.Duration = time.Since(start)
	if !opts.NoManifest {
		path, err := writeManifest(res, opts)
		if err != nil {
			return nil, fail(StageWrite, err)
		}
		res.ManifestPath = path
	}
	p.metrics.ObserveRun(res.Duration)
	log.Info("analysis complete", "result", opts.ResultPath, "charts", len(res.Charts),
		"chart_failures", len(res.ChartFailures), "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// analyzeProvider is the runtime Analyze authenticates against.
var analyzeProvider = ai.ProviderOpenAI

// Analyze runs the pipeline with default settings against the OpenAI
// runtime authenticated by credential, and returns the chart file names.
func Analyze(ctx context.Context, filePath, credential, resultPath, chartsDir string) ([]string, error) {
	rt, ok := ai.GetRuntime(analyzeProvider, ai.RuntimeConfig{APIKey: credential})
	if !ok {
		return nil, fail(StageAnalyze, fmt.Errorf("runtime %q is not registered", analyzeProvider))
	}
	opts := DefaultOptions()
	opts.InputPath = filePath
	opts.ResultPath = resultPath
	opts.ChartsDir = chartsDir
	res, err := New(rt, nil, nil).Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return res.Charts, nil
}
