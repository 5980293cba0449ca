package table

import (
	"fmt"
	"strings"
)

// Cell is a single survey answer. Valid is false for missing answers.
type Cell struct {
	Text  string
	Valid bool
}

// Missing returns a missing cell.
func Missing() Cell { return Cell{} }

// Value returns a present cell holding s.
func Value(s string) Cell { return Cell{Text: s, Valid: true} }

// Blank reports whether the cell is missing or contains only whitespace.
func (c Cell) Blank() bool {
	return !c.Valid || strings.TrimSpace(c.Text) == ""
}

// Column is a named, ordered sequence of cells.
type Column struct {
	Name  string
	Cells []Cell
}

// AllMissing reports whether every cell in the column is missing.
func (c *Column) AllMissing() bool {
	for _, cell := range c.Cells {
		if cell.Valid {
			return false
		}
	}
	return true
}

// Table is an in-memory survey export. Column names are unique and every
// column holds exactly Rows() cells; row order matches the source file.
type Table struct {
	Name    string
	columns []*Column
	index   map[string]int
	rows    int
}

// New returns an empty table with the given number of rows.
func New(name string, rows int) *Table {
	return &Table{Name: name, index: map[string]int{}, rows: rows}
}

// Rows returns the respondent count.
func (t *Table) Rows() int { return t.rows }

// Columns returns the columns in source order.
func (t *Table) Columns() []*Column { return t.columns }

// Header returns the column names in order.
func (t *Table) Header() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// AddColumn appends a column. It rejects duplicate names and cell counts
// that differ from the table's row count.
func (t *Table) AddColumn(name string, cells []Cell) error {
	if _, dup := t.index[name]; dup {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(cells) != t.rows {
		return fmt.Errorf("column %q has %d cells, table has %d rows", name, len(cells), t.rows)
	}
	if t.index == nil {
		t.index = map[string]int{}
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, &Column{Name: name, Cells: cells})
	return nil
}

// Record returns row i as strings, missing cells rendered empty.
func (t *Table) Record(i int) []string {
	rec := make([]string, len(t.columns))
	for j, c := range t.columns {
		if c.Cells[i].Valid {
			rec[j] = c.Cells[i].Text
		}
	}
	return rec
}

// FromRecords builds a table from a header and row records. Short rows are
// padded with missing cells; values matching na are treated as missing.
func FromRecords(name string, header []string, records [][]string, na NASet) (*Table, error) {
	names := uniqueHeader(header)
	t := New(name, len(records))
	for j, col := range names {
		cells := make([]Cell, len(records))
		for i, rec := range records {
			if j >= len(rec) {
				continue
			}
			if na.Contains(rec[j]) {
				continue
			}
			cells[i] = Value(rec[j])
		}
		if err := t.AddColumn(col, cells); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// uniqueHeader names empty headers "Unnamed: <i>" and disambiguates repeats
// with ".1", ".2" suffixes.
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]struct{}{}
	suffix := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for {
			if _, ok := seen[name]; !ok {
				break
			}
			suffix[base]++
			name = fmt.Sprintf("%s.%d", base, suffix[base])
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}

// NASet is the set of raw cell strings treated as missing.
type NASet map[string]struct{}

// DefaultNAValues mirrors the tokens common spreadsheet tooling reads as missing.
var DefaultNAValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

// NewNASet builds an NASet from tokens.
func NewNASet(tokens []string) NASet {
	s := make(NASet, len(tokens))
	for _, tok := range tokens {
		s[tok] = struct{}{}
	}
	return s
}

// Contains reports whether v is a missing marker.
func (s NASet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}
