// Package chart renders value-distribution bar charts for closed-form
// survey columns.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/surveyloom-cli/internal/table"
	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

// Format is the image encoding of rendered charts.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "svg":
		return SVG, nil
	default:
		return "", fmt.Errorf("unsupported chart format %q (use png or svg)", s)
	}
}

const (
	maxNameLength  = 50
	maxTitleLength = 50
	defaultWidth   = 1000
	defaultHeight  = 600
)

var barColor = drawing.ColorFromHex("87ceeb")

// Options configure a Renderer.
type Options struct {
	Format  Format
	Width   int
	Height  int
	Workers int
	// Token returns the uniqueness suffix appended to each filename.
	Token func() string
}

// DefaultOptions renders 1000x600 PNG charts sequentially with random tokens.
func DefaultOptions() Options {
	return Options{Format: PNG, Width: defaultWidth, Height: defaultHeight, Workers: 1, Token: RandomToken}
}

// RandomToken returns a short random suffix.
func RandomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// RenderError records a single column that could not be charted.
type RenderError struct {
	Column string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render chart for %q: %v", e.Column, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Result lists written chart files (base names, column order) and the
// columns that failed.
type Result struct {
	Files    []string
	Failures []*RenderError
}

// Renderer writes one bar chart per closed-form column.
type Renderer struct {
	opts   Options
	logger *slog.Logger
}

// NewRenderer returns a Renderer; zero option fields take defaults.
func NewRenderer(opts Options, logger *slog.Logger) *Renderer {
	def := DefaultOptions()
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Token == nil {
		opts.Token = def.Token
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{opts: opts, logger: logger}
}

// Render clears prior chart artifacts from dir, then charts each named
// column of t. A failing column is recorded in Result.Failures and does not
// stop the others. The returned error is non-nil only when dir cannot be
// prepared or ctx is cancelled.
func (r *Renderer) Render(ctx context.Context, t *table.Table, columns []string, dir string) (*Result, error) {
	removed, err := ClearDir(dir)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		r.logger.Debug("cleared previous charts", "dir", dir, "removed", removed)
	}

	type slot struct {
		file string
		err  *RenderError
	}
	slots := make([]slot, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, name := range columns {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file, err := r.renderColumn(t, name, dir)
			if err != nil {
				re := &RenderError{Column: name, Err: err}
				r.logger.Warn("chart render failed", "column", name, "error", err)
				slots[i] = slot{err: re}
				return nil
			}
			slots[i] = slot{file: file}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, s := range slots {
		if s.err != nil {
			res.Failures = append(res.Failures, s.err)
			continue
		}
		res.Files = append(res.Files, s.file)
	}
	return res, nil
}

func (r *Renderer) renderColumn(t *table.Table, name, dir string) (file string, err error) {
	col, ok := t.Column(name)
	if !ok {
		return "", fmt.Errorf("column not found")
	}
	counts := Counts(col)
	if len(counts) == 0 {
		return "", errors.New("no values to plot")
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("renderer panic: %v", p)
		}
	}()

	var buf bytes.Buffer
	if err := r.barChart(name, counts).Render(r.provider(), &buf); err != nil {
		return "", err
	}
	file = Filename(name, r.opts.Token(), r.opts.Format)
	if err := utils.SafeWriteFile(filepath.Join(dir, file), buf.Bytes()); err != nil {
		return "", err
	}
	return file, nil
}

func (r *Renderer) provider() gochart.RendererProvider {
	if r.opts.Format == SVG {
		return gochart.SVG
	}
	return gochart.PNG
}

func (r *Renderer) barChart(name string, counts []Count) gochart.BarChart {
	bars := make([]gochart.Value, len(counts))
	maxN := 0
	for i, c := range counts {
		bars[i] = gochart.Value{
			Label: c.Value,
			Value: float64(c.N),
			Style: gochart.Style{FillColor: barColor, StrokeColor: barColor},
		}
		if c.N > maxN {
			maxN = c.N
		}
	}
	spacing := 20
	barWidth := (r.opts.Width-120)/len(bars) - spacing
	switch {
	case barWidth > 80:
		barWidth = 80
	case barWidth < 8:
		barWidth, spacing = 8, 4
	}
	return gochart.BarChart{
		Title:      "Distribution: " + truncateRunes(name, maxTitleLength),
		Width:      r.opts.Width,
		Height:     r.opts.Height,
		BarWidth:   barWidth,
		BarSpacing: spacing,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 120}},
		XAxis:      gochart.Style{TextRotationDegrees: 45},
		YAxis: gochart.YAxis{
			Name:           "Count",
			Range:          &gochart.ContinuousRange{Min: 0, Max: float64(maxN)},
			ValueFormatter: gochart.IntValueFormatter,
		},
		Bars: bars,
	}
}

// Count is the frequency of one distinct value.
type Count struct {
	Value string
	N     int
}

// Counts tallies the non-missing values of col in descending count order.
// Equal counts keep the order in which the values first appear.
func Counts(col *table.Column) []Count {
	idx := map[string]int{}
	var out []Count
	for _, c := range col.Cells {
		if !c.Valid {
			continue
		}
		if i, ok := idx[c.Text]; ok {
			out[i].N++
			continue
		}
		idx[c.Text] = len(out)
		out = append(out, Count{Value: c.Text, N: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].N > out[j].N })
	return out
}

// SanitizeName strips characters that are unsafe in filenames and truncates
// the result to 50 characters.
func SanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/*?:"<>|`, r) || r < 0x20 {
			return -1
		}
		return r
	}, name)
	return truncateRunes(clean, maxNameLength)
}

// Filename builds "<sanitized>_<token>.<ext>" for a column.
func Filename(column, token string, f Format) string {
	base := SanitizeName(column)
	if strings.TrimSpace(base) == "" {
		base = "column"
	}
	return fmt.Sprintf("%s_%s.%s", base, token, f)
}

// ClearDir creates dir if needed and removes chart images (.png, .svg) left
// by earlier runs. Other files are left alone.
func ClearDir(dir string) (int, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return 0, fmt.Errorf("prepare charts dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read charts dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".svg":
		default:
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove old chart %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
