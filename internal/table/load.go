package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Options controls how survey files are read.
type Options struct {
	// Delimiter for CSV. If 0, chosen from the file extension (',' or '\t').
	Delimiter rune
	// SheetName selects a spreadsheet sheet by name (case-insensitive).
	SheetName string
	// SheetIndex is the 1-based sheet used when SheetName is empty.
	SheetIndex int
	// NAValues are raw cell values read as missing. Nil means DefaultNAValues.
	NAValues []string
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

func (o Options) naSet() NASet {
	if o.NAValues == nil {
		return NewNASet(DefaultNAValues)
	}
	return NewNASet(o.NAValues)
}

// ErrUnsupportedFormat indicates a file extension the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format; use CSV or Excel")

// LoadError reports a survey file that could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("error loading file %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Format identifies a supported survey file type.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatSpreadsheet
)

// DetectFormat maps a path's extension to a Format.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".xlsx", ".xls":
		return FormatSpreadsheet
	default:
		return FormatUnknown
	}
}

// LoadFile reads a survey export, dispatching on the file extension. Any
// failure is returned as a *LoadError.
func LoadFile(path string, opt Options) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch DetectFormat(path) {
	case FormatCSV:
		t, err = readCSVFile(path, opt)
	case FormatSpreadsheet:
		t, err = readSpreadsheetFile(path, opt)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return t, nil
}
