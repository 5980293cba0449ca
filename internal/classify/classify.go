// Package classify triages survey columns into closed-form (multiple
// choice), open-ended (free text) or skipped.
//
// The heuristic is deliberately cheap: it looks only at string lengths and
// the number of distinct answers. A column is open-ended when its mean
// answer length exceeds Thresholds.OpenEndedMeanLength; otherwise it is
// closed-form when it has fewer than Thresholds.ClosedFormMaxUnique distinct
// answers, all shorter than Thresholds.ClosedFormMaxLength. Everything else,
// including entirely empty columns, is skipped.
package classify

import (
	"fmt"
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/surveyloom-cli/internal/table"
)

// Kind is a column's classification tag.
type Kind string

const (
	ClosedForm Kind = "closed-form"
	OpenEnded  Kind = "open-ended"
	Skipped    Kind = "skipped"
)

// Thresholds are the classification cut-offs.
type Thresholds struct {
	// OpenEndedMeanLength: mean answer length strictly above this is open-ended.
	OpenEndedMeanLength float64
	// ClosedFormMaxUnique: distinct answers must be strictly fewer than this.
	ClosedFormMaxUnique int
	// ClosedFormMaxLength: every answer must be strictly shorter than this.
	ClosedFormMaxLength int
}

// DefaultThresholds returns the 20 / 15 / 50 cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OpenEndedMeanLength: 20,
		ClosedFormMaxUnique: 15,
		ClosedFormMaxLength: 50,
	}
}

// ClassificationError reports thresholds that cannot classify anything.
type ClassificationError struct {
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification: %s", e.Reason)
}

// Validate checks that the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.OpenEndedMeanLength <= 0 {
		return &ClassificationError{Reason: fmt.Sprintf("open-ended mean length must be positive, got %g", t.OpenEndedMeanLength)}
	}
	if t.ClosedFormMaxUnique <= 0 {
		return &ClassificationError{Reason: fmt.Sprintf("closed-form max unique must be positive, got %d", t.ClosedFormMaxUnique)}
	}
	if t.ClosedFormMaxLength <= 0 {
		return &ClassificationError{Reason: fmt.Sprintf("closed-form max length must be positive, got %d", t.ClosedFormMaxLength)}
	}
	return nil
}

// Stats are the measurements a classification was based on.
type Stats struct {
	NonMissing int
	MeanLength float64
	MaxLength  int
	Unique     int
}

// Column is one column's classification.
type Column struct {
	Name  string
	Kind  Kind
	Stats Stats
}

// Result holds the per-column tags in source column order.
type Result struct {
	Columns []Column
}

// Names returns the names of columns tagged k, in column order.
func (r *Result) Names(k Kind) []string {
	var out []string
	for _, c := range r.Columns {
		if c.Kind == k {
			out = append(out, c.Name)
		}
	}
	return out
}

// Count returns how many columns are tagged k.
func (r *Result) Count(k Kind) int {
	n := 0
	for _, c := range r.Columns {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Classify tags every column of t once, in column order.
func Classify(t *table.Table, th Thresholds) (*Result, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Columns: make([]Column, 0, len(t.Columns()))}
	for _, col := range t.Columns() {
		res.Columns = append(res.Columns, classifyColumn(col, th))
	}
	return res, nil
}

func classifyColumn(col *table.Column, th Thresholds) Column {
	out := Column{Name: col.Name, Kind: Skipped}
	if col.AllMissing() {
		return out
	}
	out.Stats = measure(col)
	switch {
	case out.Stats.MeanLength > th.OpenEndedMeanLength:
		out.Kind = OpenEnded
	case out.Stats.Unique < th.ClosedFormMaxUnique && out.Stats.MaxLength < th.ClosedFormMaxLength:
		out.Kind = ClosedForm
	}
	return out
}

// measure computes length and cardinality statistics over non-missing
// cells. Lengths count characters, not bytes.
func measure(col *table.Column) Stats {
	lengths := make([]float64, 0, len(col.Cells))
	distinct := map[string]struct{}{}
	var s Stats
	for _, c := range col.Cells {
		if !c.Valid {
			continue
		}
		n := utf8.RuneCountInString(c.Text)
		lengths = append(lengths, float64(n))
		if n > s.MaxLength {
			s.MaxLength = n
		}
		distinct[c.Text] = struct{}{}
	}
	s.NonMissing = len(lengths)
	s.Unique = len(distinct)
	if len(lengths) > 0 {
		s.MeanLength = stat.Mean(lengths, nil)
	}
	return s
}
