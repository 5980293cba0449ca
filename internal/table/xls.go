package table

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/extrame/xls"
)

// biffMaxColumns is the column limit of a BIFF8 worksheet (IV).
const biffMaxColumns = 256

// readLegacyWorkbook reads the selected sheet of a binary (BIFF) .xls
// workbook. The first non-empty row is the header; rows missing between
// header and data become empty rows.
func readLegacyWorkbook(name string, b []byte, opt Options) (t *Table, err error) {
	// The BIFF decoder indexes record payloads without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("read legacy workbook: corrupt content: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(b), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open legacy workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("open legacy workbook: no Workbook stream found")
	}
	sheet, err := legacySheet(wb, opt.SheetName, opt.SheetIndex)
	if err != nil {
		return nil, err
	}

	var (
		header  []string
		records [][]string
	)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := legacyRow(sheet.Row(i))
		if header == nil {
			if len(row) > 0 {
				header = row
			}
			continue
		}
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("read row %d: expected %d fields, saw %d", len(records)+1, len(header), len(row))
		}
		records = append(records, row)
	}
	if header == nil {
		return New(name, 0), nil
	}
	return FromRecords(name, header, records, opt.naSet())
}

// legacySheet picks a sheet by case-insensitive name, else by 1-based index.
func legacySheet(wb *xls.WorkBook, sheetName string, sheetIndex int) (*xls.WorkSheet, error) {
	n := wb.NumSheets()
	if sheetName != "" {
		available := make([]string, 0, n)
		for i := 0; i < n; i++ {
			s := wb.GetSheet(i)
			if s == nil {
				continue
			}
			if strings.EqualFold(s.Name, sheetName) {
				return s, nil
			}
			available = append(available, s.Name)
		}
		return nil, fmt.Errorf("sheet %q not found; available sheets: %s", sheetName, strings.Join(available, ", "))
	}
	idx := sheetIndex
	if idx <= 0 {
		idx = 1
	}
	if idx > n {
		return nil, fmt.Errorf("sheet %d not found; workbook has %d sheet(s)", idx, n)
	}
	s := wb.GetSheet(idx - 1)
	if s == nil {
		return nil, fmt.Errorf("sheet %d not found in workbook", idx)
	}
	return s, nil
}

// legacyRow returns the row's cell text with trailing empty cells dropped.
// Nil rows (absent from the sheet) yield nil.
func legacyRow(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, biffMaxColumns)
	for j := range cells {
		cells[j] = row.Col(j)
	}
	return trimTrailingEmpty(cells, 0)
}
