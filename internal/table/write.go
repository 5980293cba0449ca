package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

// WriteCSV serializes the table with a header row. Missing cells are written
// as empty fields.
func WriteCSV(w io.Writer, t *Table, delim rune) error {
	if delim == 0 {
		delim = ','
	}
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	single := len(t.Columns()) == 1
	for i := 0; i < t.Rows(); i++ {
		rec := t.Record(i)
		if single && rec[0] == "" {
			// A bare empty line would be skipped on read; quote it so the row survives.
			cw.Flush()
			if _, err := io.WriteString(w, "\"\"\n"); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
			continue
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path as a delimited file, replacing any
// existing file atomically. A .tsv path is tab-delimited.
func WriteFile(t *Table, path string) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t, sniffDelimiter(path)); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}
