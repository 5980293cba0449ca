// Package insight produces per-response qualitative summaries for
// open-ended survey columns using a language-model runtime.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/table"
	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

const (
	// ColumnSuffix is appended to a source column name to name its analysis column.
	ColumnSuffix = "_Analysis"
	// ErrorMarkerPrefix starts the cell text of a response whose call failed.
	ErrorMarkerPrefix = "Analysis error: "
	// NotAnalyzed fills rows that were eligible but fell beyond the sample limit.
	NotAnalyzed = "[not analyzed: sample limit reached]"
)

// Options configure an Analyzer.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// SampleLimit caps the number of responses analyzed per column.
	SampleLimit int
	// PromptContext describes where the feedback comes from, e.g. "a bank survey".
	PromptContext string
	Workers       int
	// RequestsPerMinute paces calls across all workers; 0 disables pacing.
	RequestsPerMinute int
	CallTimeout       time.Duration
	// MaxResponseTokens truncates very long responses before prompting; 0 keeps them whole.
	MaxResponseTokens int
	// OnCall, when set, observes every completed call.
	OnCall func(column string, d time.Duration, err error)
}

// DefaultOptions analyzes the first 50 responses of a column with
// gpt-3.5-turbo at temperature 0.3, one call at a time.
func DefaultOptions() Options {
	return Options{
		Model:         "gpt-3.5-turbo",
		Temperature:   0.3,
		SampleLimit:   50,
		PromptContext: "a bank survey",
		Workers:       1,
		CallTimeout:   60 * time.Second,
	}
}

// ServiceCallError is a failed call for one response. It is recorded in the
// output, never returned from Analyze.
type ServiceCallError struct {
	Column string
	Row    int
	Err    error
}

func (e *ServiceCallError) Error() string {
	return fmt.Sprintf("analyze %q row %d: %v", e.Column, e.Row, e.Err)
}

func (e *ServiceCallError) Unwrap() error { return e.Err }

// Marker renders the in-band error cell text.
func (e *ServiceCallError) Marker() string {
	return ErrorMarkerPrefix + e.Err.Error()
}

// ColumnReport summarizes the analysis of one column.
type ColumnReport struct {
	Column      string
	Output      string
	Analyzed    int
	Failed      int
	Blank       int
	NotAnalyzed int
	Failures    []*ServiceCallError
}

// Plan describes the calls an analysis of one column would make.
type Plan struct {
	Column       string
	Rows         []int
	Blank        int
	NotAnalyzed  int
	PromptTokens int
}

// Analyzer runs one language-model call per selected response.
type Analyzer struct {
	rt      ai.Runtime
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New returns an Analyzer; zero option fields take defaults.
func New(rt ai.Runtime, opts Options, logger *slog.Logger) *Analyzer {
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = def.SampleLimit
	}
	if opts.PromptContext == "" {
		opts.PromptContext = def.PromptContext
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Analyzer{rt: rt, opts: opts, logger: logger}
	if opts.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return a
}

// Model returns the model name requests are sent with.
func (a *Analyzer) Model() string { return a.opts.Model }

// BuildPrompt renders the fixed analysis prompt for one response.
func BuildPrompt(promptContext, response string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this customer feedback from %s:\n", promptContext)
	fmt.Fprintf(&b, "\"%s\"\n\n", response)
	b.WriteString("Provide output in this format:\n")
	b.WriteString("- Summary: [concise summary]\n")
	b.WriteString("- Positive: [any positive aspects]\n")
	b.WriteString("- Negative: [any negative aspects]\n")
	b.WriteString("- Department: [relevant department to handle this]\n")
	return b.String()
}

func (a *Analyzer) prompt(response string) string {
	if a.opts.MaxResponseTokens > 0 {
		response = utils.TruncateToTokenLimit(response, a.opts.MaxResponseTokens)
	}
	return BuildPrompt(a.opts.PromptContext, response)
}

// PlanColumn selects the rows that would be analyzed: the first SampleLimit
// cells that are neither missing nor blank, in row order.
func (a *Analyzer) PlanColumn(col *table.Column) Plan {
	p := Plan{Column: col.Name}
	for i, c := range col.Cells {
		if c.Blank() {
			p.Blank++
			continue
		}
		if len(p.Rows) >= a.opts.SampleLimit {
			p.NotAnalyzed++
			continue
		}
		p.Rows = append(p.Rows, i)
		p.PromptTokens += utils.CountTokens(a.prompt(c.Text))
	}
	return p
}

// AnalyzeColumn analyzes col and returns one cell per source row:
// the model's text, an error marker, NotAnalyzed, or missing for blank rows.
// Only cancellation of ctx is returned as an error.
func (a *Analyzer) AnalyzeColumn(ctx context.Context, col *table.Column) ([]table.Cell, *ColumnReport, error) {
	plan := a.PlanColumn(col)
	cells := make([]table.Cell, len(col.Cells))
	for i, c := range col.Cells {
		if !c.Blank() {
			cells[i] = table.Value(NotAnalyzed)
		}
	}

	errs := make([]*ServiceCallError, len(plan.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for k, row := range plan.Rows {
		g.Go(func() error {
			text, err := a.call(gctx, col.Name, col.Cells[row].Text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				sce := &ServiceCallError{Column: col.Name, Row: row, Err: err}
				a.logger.Warn("analysis call failed", "column", col.Name, "row", row, "error", err)
				errs[k] = sce
				cells[row] = table.Value(sce.Marker())
				return nil
			}
			cells[row] = table.Value(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rep := &ColumnReport{Column: col.Name, Blank: plan.Blank, NotAnalyzed: plan.NotAnalyzed}
	for _, e := range errs {
		if e != nil {
			rep.Failures = append(rep.Failures, e)
		}
	}
	rep.Failed = len(rep.Failures)
	rep.Analyzed = len(plan.Rows) - rep.Failed
	return cells, rep, nil
}

func (a *Analyzer) call(ctx context.Context, column, response string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	cctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	text, err := a.generate(cctx, response)
	if a.opts.OnCall != nil {
		a.opts.OnCall(column, time.Since(start), err)
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("call timed out after %s", a.opts.CallTimeout)
	}
	return text, err
}

func (a *Analyzer) generate(ctx context.Context, response string) (string, error) {
	resp, err := a.rt.Generate(ctx, ai.GenerateRequest{
		Model:       a.opts.Model,
		Messages:    []ai.Message{{Role: "user", Content: a.prompt(response)}},
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	text, err := resp.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Analyze runs AnalyzeColumn for each named column in order and appends a
// "<column>_Analysis" column to t for each. Reports are returned in the same
// order.
func (a *Analyzer) Analyze(ctx context.Context, t *table.Table, columns []string) ([]*ColumnReport, error) {
	reports := make([]*ColumnReport, 0, len(columns))
	for _, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			return reports, fmt.Errorf("column %q not found", name)
		}
		a.logger.Info("analyzing open-ended column", "column", name)
		cells, rep, err := a.AnalyzeColumn(ctx, col)
		if err != nil {
			return reports, err
		}
		rep.Output = OutputName(t, name)
		if err := t.AddColumn(rep.Output, cells); err != nil {
			return reports, err
		}
		a.logger.Info("column analyzed", "column", name, "analyzed", rep.Analyzed, "failed", rep.Failed, "not_analyzed", rep.NotAnalyzed)
		reports = append(reports, rep)
	}
	return reports, nil
}

// OutputName returns "<column>_Analysis", suffixed with .1, .2, ... if that
// name is already taken in t.
func OutputName(t *table.Table, column string) string {
	base := column + ColumnSuffix
	name := base
	for i := 1; ; i++ {
		if _, taken := t.Column(name); !taken {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, i)
	}
}
