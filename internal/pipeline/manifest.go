package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

// ManifestSuffix is appended to the result path to name the run manifest.
const ManifestSuffix = ".manifest.json"

// Manifest records what a run produced.
type Manifest struct {
	RunID         string           `json:"run_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Input         string           `json:"input"`
	Result        string           `json:"result"`
	ChartsDir     string           `json:"charts_dir"`
	Rows          int              `json:"rows"`
	Charts        []string         `json:"charts"`
	ChartFailures []ManifestError  `json:"chart_failures,omitempty"`
	Columns       []ManifestColumn `json:"columns"`
	Model         string           `json:"model,omitempty"`
	Analysis      []ManifestReport `json:"analysis,omitempty"`
	DurationMs    int64            `json:"duration_ms"`
}

type ManifestError struct {
	Column string `json:"column"`
	Error  string `json:"error"`
}

type ManifestColumn struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	NonMissing int     `json:"non_missing"`
	MeanLength float64 `json:"mean_length"`
	MaxLength  int     `json:"max_length"`
	Unique     int     `json:"unique"`
}

type ManifestReport struct {
	Column      string `json:"column"`
	Output      string `json:"output"`
	Analyzed    int    `json:"analyzed"`
	Failed      int    `json:"failed"`
	Blank       int    `json:"blank"`
	NotAnalyzed int    `json:"not_analyzed"`
}

func buildManifest(res *Result, opts Options) Manifest {
	m := Manifest{
		RunID:      res.RunID,
		CreatedAt:  time.Now().UTC(),
		Input:      opts.InputPath,
		Result:     res.ResultPath,
		ChartsDir:  opts.ChartsDir,
		Rows:       res.Rows,
		Charts:     append([]string{}, res.Charts...),
		DurationMs: res.Duration.Milliseconds(),
	}
	for _, f := range res.ChartFailures {
		m.ChartFailures = append(m.ChartFailures, ManifestError{Column: f.Column, Error: f.Err.Error()})
	}
	for _, c := range res.Classification.Columns {
		m.Columns = append(m.Columns, ManifestColumn{
			Name:       c.Name,
			Kind:       string(c.Kind),
			NonMissing: c.Stats.NonMissing,
			MeanLength: c.Stats.MeanLength,
			MaxLength:  c.Stats.MaxLength,
			Unique:     c.Stats.Unique,
		})
	}
	if len(res.Reports) > 0 {
		m.Model = opts.Insight.Model
		if m.Model == "" {
			m.Model = DefaultOptions().Insight.Model
		}
	}
	for _, r := range res.Reports {
		m.Analysis = append(m.Analysis, ManifestReport{
			Column:      r.Column,
			Output:      r.Output,
			Analyzed:    r.Analyzed,
			Failed:      r.Failed,
			Blank:       r.Blank,
			NotAnalyzed: r.NotAnalyzed,
		})
	}
	return m
}

func writeManifest(res *Result, opts Options) (string, error) {
	data, err := utils.PrettyJSON(buildManifest(res, opts))
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := opts.ResultPath + ManifestSuffix
	if err := utils.SafeWriteFile(path, data); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a manifest written by a previous run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
