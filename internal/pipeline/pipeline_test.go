package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/metrics"
	"github.com/KaramelBytes/surveyloom-cli/internal/table"
)

const surveyCSV = `Channel,Feedback,Unused,Satisfied
Branch,The staff at the branch were friendly and quick,,Yes
App,The mobile app crashes every time I open statements,,No
Branch,Waiting times at the branch were far too long today,,No
Web,Online banking works well but the login is confusing,,Yes
App,Transfers through the app are fast and easy to use,,Yes
`

// stubRuntime echoes a fixed summary and fails for prompts containing any
// of the configured substrings.
type stubRuntime struct {
	mu    sync.Mutex
	calls int
	fail  []string
}

func (s *stubRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	prompt := req.Messages[0].Content
	for _, f := range s.fail {
		if strings.Contains(prompt, f) {
			return nil, errors.New("service unavailable")
		}
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{
		Role:    "assistant",
		Content: "- Summary: ok\n- Positive: n/a\n- Negative: n/a\n- Department: Support",
	}}}}, nil
}

func writeSurvey(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func runOptions(dir, input string) Options {
	opts := DefaultOptions()
	opts.InputPath = input
	opts.ResultPath = filepath.Join(dir, "results", "result.csv")
	opts.ChartsDir = filepath.Join(dir, "results", "plots")
	return opts
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunProducesChartsAnalysisAndResult(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	rt := &stubRuntime{}
	rec := metrics.New()

	res, err := New(rt, nil, rec).Run(context.Background(), runOptions(dir, input))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, []string{"Channel", "Satisfied"}, res.Classification.Names("closed-form"))
	assert.Equal(t, []string{"Feedback"}, res.Classification.Names("open-ended"))
	assert.Equal(t, []string{"Unused"}, res.Classification.Names("skipped"))
	require.Len(t, res.Charts, 2)
	assert.True(t, strings.HasPrefix(res.Charts[0], "Channel_"))
	assert.True(t, strings.HasPrefix(res.Charts[1], "Satisfied_"))
	assert.Equal(t, 5, rt.calls)

	out, err := table.LoadFile(res.ResultPath, table.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Channel", "Feedback", "Unused", "Satisfied", "Feedback_Analysis"}, out.Header())
	col, ok := out.Column("Feedback_Analysis")
	require.True(t, ok)
	for _, c := range col.Cells {
		assert.True(t, strings.HasPrefix(c.Text, "- Summary: ok"))
	}

	m, err := ReadManifest(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, res.Charts, m.Charts)
	require.Len(t, m.Analysis, 1)
	assert.Equal(t, 5, m.Analysis[0].Analyzed)
	assert.Equal(t, "gpt-3.5-turbo", m.Model)
}

func TestRoundTripPreservesValues(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	res, err := New(&stubRuntime{}, nil, nil).Run(context.Background(), runOptions(dir, input))
	require.NoError(t, err)

	src, err := table.LoadFile(input, table.DefaultOptions())
	require.NoError(t, err)
	out, err := table.LoadFile(res.ResultPath, table.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, src.Rows(), out.Rows())
	for _, c := range src.Columns() {
		got, ok := out.Column(c.Name)
		require.True(t, ok, c.Name)
		assert.Equal(t, c.Cells, got.Cells, c.Name)
	}
}

func TestSecondRunReplacesCharts(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	opts := runOptions(dir, input)
	p := New(&stubRuntime{}, nil, nil)

	first, err := p.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), opts)
	require.NoError(t, err)

	want := append([]string{}, second.Charts...)
	sort.Strings(want)
	assert.Equal(t, want, listDir(t, opts.ChartsDir))
	for _, f := range first.Charts {
		assert.NotContains(t, listDir(t, opts.ChartsDir), f)
	}
}

func TestOneFailedCallDoesNotAbortRun(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	rt := &stubRuntime{fail: []string{"crashes every time"}}

	res, err := New(rt, nil, nil).Run(context.Background(), runOptions(dir, input))
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, 4, res.Reports[0].Analyzed)
	assert.Equal(t, 1, res.Reports[0].Failed)

	out, err := table.LoadFile(res.ResultPath, table.DefaultOptions())
	require.NoError(t, err)
	col, _ := out.Column("Feedback_Analysis")
	assert.Equal(t, "Analysis error: service unavailable", col.Cells[1].Text)
	assert.True(t, strings.HasPrefix(col.Cells[0].Text, "- Summary"))
	assert.True(t, strings.HasPrefix(col.Cells[4].Text, "- Summary"))
}

func TestLoadFailureAbortsBeforeTouchingOutputs(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.json", `{"not":"a survey"}`)
	opts := runOptions(dir, input)
	require.NoError(t, os.MkdirAll(opts.ChartsDir, 0o755))
	old := filepath.Join(opts.ChartsDir, "previous_abcd1234.png")
	require.NoError(t, os.WriteFile(old, []byte("png"), 0o644))

	_, err := New(&stubRuntime{}, nil, nil).Run(context.Background(), opts)
	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageLoad, ae.Stage)
	var le *table.LoadError
	assert.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, table.ErrUnsupportedFormat)

	assert.FileExists(t, old)
	assert.NoFileExists(t, opts.ResultPath)
}

func TestOpenEndedColumnsNeedRuntime(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	_, err := New(nil, nil, nil).Run(context.Background(), runOptions(dir, input))
	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageAnalyze, ae.Stage)
	assert.ErrorIs(t, err, ErrNoRuntime)
}

func TestEmptySurveyStillClearsChartsAndWritesResult(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "empty.csv", "Channel,Feedback\n")
	opts := runOptions(dir, input)
	require.NoError(t, os.MkdirAll(opts.ChartsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(opts.ChartsDir, "old_1.png"), []byte("x"), 0o644))

	res, err := New(nil, nil, nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, res.Charts)
	assert.Empty(t, listDir(t, opts.ChartsDir))
	assert.FileExists(t, opts.ResultPath)
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	opts := runOptions(dir, input)
	opts.DryRun = true
	rt := &stubRuntime{}

	res, err := New(rt, nil, nil).Run(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, res.Estimate)
	assert.Equal(t, 5, res.Estimate.Calls)
	assert.Greater(t, res.Estimate.PromptTokens, 0)
	assert.True(t, res.Estimate.CostKnown)
	assert.Greater(t, res.Estimate.CostUSD, 0.0)
	assert.Zero(t, rt.calls)
	assert.NoDirExists(t, filepath.Join(dir, "results"))
}

func TestAnalyzeReturnsChartNames(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir, "closed.csv", "Branch,Rating\nNorth,5\nSouth,4\nNorth,5\n")
	result := filepath.Join(dir, "out", "result.csv")
	charts := filepath.Join(dir, "out", "plots")

	names, err := Analyze(context.Background(), input, "", result, charts)
	require.NoError(t, err)
	require.Len(t, names, 2)
	for _, n := range names {
		assert.FileExists(t, filepath.Join(charts, n))
	}
	assert.FileExists(t, result)
}

func TestAnalyzeUnregisteredRuntimeFails(t *testing.T) {
	prev := analyzeProvider
	analyzeProvider = "carrier-pigeon"
	t.Cleanup(func() { analyzeProvider = prev })

	dir := t.TempDir()
	input := writeSurvey(t, dir, "survey.csv", surveyCSV)
	result := filepath.Join(dir, "out", "result.csv")

	names, err := Analyze(context.Background(), input, "sk-test", result, filepath.Join(dir, "out", "plots"))
	require.Error(t, err)
	assert.Nil(t, names)
	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageAnalyze, ae.Stage)
	assert.NotErrorIs(t, err, ErrNoRuntime)
	assert.Contains(t, err.Error(), `"carrier-pigeon"`)
	assert.NoFileExists(t, result)
}

func TestAnalysisErrorMessage(t *testing.T) {
	err := fail(StageWrite, errors.New("disk full"))
	assert.Equal(t, "analysis failed at write stage: disk full", err.Error())
}
