package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSVFile(path string, opt Options) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errors.New("decode csv: content is not valid UTF-8")
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(filepath.Base(path), 0), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	ncol := len(header)
	var records [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		if len(rec) > ncol {
			return nil, fmt.Errorf("read row %d: expected %d fields, saw %d", len(records)+1, ncol, len(rec))
		}
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		records = append(records, rec)
	}
	return FromRecords(filepath.Base(path), header, records, opt.naSet())
}

func sniffDelimiter(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}
