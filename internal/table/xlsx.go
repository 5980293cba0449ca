package table

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// readSpreadsheetFile extracts the selected sheet of a workbook. Office Open
// XML archives are read directly; binary (BIFF) workbooks go through
// readLegacyWorkbook. The first row is the header.
func readSpreadsheetFile(p string, opt Options) (*Table, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	name := filepath.Base(p)
	if bytes.HasPrefix(b, oleMagic) {
		return readLegacyWorkbook(name, b, opt)
	}
	if !bytes.HasPrefix(b, zipMagic) {
		return nil, errors.New("open workbook: not a spreadsheet archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	wbXML, err := readZipFile(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	sheets, err := parseWorkbook(wbXML)
	if err != nil {
		return nil, err
	}
	relsXML, err := readZipFile(zr, "xl/_rels/workbook.xml.rels")
	if err != nil {
		return nil, err
	}
	rels, err := parseRelationships(relsXML)
	if err != nil {
		return nil, err
	}
	target, err := resolveSheet(sheets, rels, opt.SheetName, opt.SheetIndex)
	if err != nil {
		return nil, err
	}
	sheetXML, err := readZipFile(zr, target)
	if err != nil {
		return nil, err
	}
	if sheetXML == nil {
		return nil, fmt.Errorf("sheet %s not found in workbook", target)
	}
	sstXML, err := readZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil, err
	}
	shared, err := parseSharedStrings(sstXML)
	if err != nil {
		return nil, err
	}

	rr := newSheetRowReader(sheetXML, shared)
	header, headerRow, err := rr.Next()
	if err == io.EOF || (err == nil && len(header) == 0) {
		return New(name, 0), nil
	}
	if err != nil {
		return nil, err
	}
	ncol := len(header)
	var records [][]string
	last := headerRow
	for {
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		row, num, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// Rows absent from the sheet XML are empty rows in the grid.
		for num > 0 && last > 0 && num > last+1 {
			records = append(records, nil)
			last++
		}
		last = num
		if len(row) > ncol {
			row = trimTrailingEmpty(row, ncol)
		}
		if len(row) > ncol {
			return nil, fmt.Errorf("read row %d: expected %d fields, saw %d", len(records)+1, ncol, len(row))
		}
		records = append(records, row)
	}
	if opt.MaxRows > 0 && len(records) > opt.MaxRows {
		records = records[:opt.MaxRows]
	}
	return FromRecords(name, header, records, opt.naSet())
}

func trimTrailingEmpty(row []string, n int) []string {
	end := len(row)
	for end > n && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func resolveSheet(sheets []wbSheet, rels map[string]string, sheetName string, sheetIndex int) (string, error) {
	if sheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, sheetName) {
				if rel, ok := rels[s.RID]; ok {
					return normalizeRelPath(rel), nil
				}
			}
		}
		available := make([]string, len(sheets))
		for i, s := range sheets {
			available[i] = s.Name
		}
		return "", fmt.Errorf("sheet %q not found; available sheets: %s", sheetName, strings.Join(available, ", "))
	}
	idx := sheetIndex
	if idx <= 0 {
		idx = 1
	}
	// Workbook order first, then sheetId, then the conventional part name.
	if idx <= len(sheets) {
		if rel, ok := rels[sheets[idx-1].RID]; ok {
			return normalizeRelPath(rel), nil
		}
	}
	for _, s := range sheets {
		if s.SheetID == idx {
			if rel, ok := rels[s.RID]; ok {
				return normalizeRelPath(rel), nil
			}
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), nil
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) ([]wbSheet, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sheets, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse workbook.xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s wbSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RID = a.Value // r: namespace
			}
		}
		sheets = append(sheets, s)
	}
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(data) == 0 {
		return out, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse workbook relationships: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

// readZipFile returns the named part, or nil if the archive lacks it.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, nil
}

func parseSharedStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse shared strings: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "si" {
				buf.Reset()
			}
			if se.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			if se.Name.Local == "t" {
				inT = false
			}
			if se.Name.Local == "si" {
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	inRow  bool
	rowNum int
	curRow []string
	err    error
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// Next returns the next row's cells and its 1-based row number (0 when the
// sheet omits it). It returns io.EOF once the sheet ends cleanly; any other
// error means the sheet XML is corrupt and is returned again on every call.
func (r *sheetRowReader) Next() ([]string, int, error) {
	if r.err != nil {
		return nil, 0, r.err
	}
	row, num, err := r.next()
	if err != nil {
		if err != io.EOF {
			err = fmt.Errorf("parse sheet: %w", err)
		}
		r.err = err
	}
	return row, num, err
}

func (r *sheetRowReader) next() ([]string, int, error) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF && r.inRow {
				err = io.ErrUnexpectedEOF
			}
			return nil, 0, err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				r.inRow = true
				r.curRow = nil
				r.rowNum = 0
				for _, a := range se.Attr {
					if a.Name.Local == "r" {
						r.rowNum = atoiSafe(a.Value)
					}
				}
			}
			if r.inRow && se.Name.Local == "c" {
				var rAttr, tAttr string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						rAttr = a.Value
					case "t":
						tAttr = a.Value
					}
				}
				colIdx := len(r.curRow)
				ref, err := colIndexFromRef(rAttr)
				if err != nil {
					return nil, 0, err
				}
				if ref >= 0 {
					colIdx = ref
				}
				val, err := r.readCellValue(tAttr)
				if err != nil {
					return nil, 0, err
				}
				if len(r.curRow) <= colIdx {
					tmp := make([]string, colIdx+1)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.curRow[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				r.inRow = false
				return r.curRow, r.rowNum, nil
			}
		}
	}
}

// token is dec.Token with a premature end of input reported as an error.
func (r *sheetRowReader) token() (xml.Token, error) {
	tok, err := r.dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

func (r *sheetRowReader) readCellValue(tAttr string) (string, error) {
	var val string
	for {
		tok, err := r.token()
		if err != nil {
			return "", err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, err := r.token()
					if err != nil {
						return "", err
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				val += sb.String()
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				switch tAttr {
				case "s":
					idx := atoiSafe(val)
					if val != "" && idx >= 0 && idx < len(r.shared) {
						return r.shared[idx], nil
					}
					return "", nil
				case "b":
					if val == "1" {
						return "True", nil
					}
					if val == "0" {
						return "False", nil
					}
				}
				return val, nil
			}
		}
	}
}

// maxRefLetters bounds column letters to the spreadsheet limit (XFD).
const maxRefLetters = 3

// colIndexFromRef converts refs like "C12" to a 0-based column index.
// An empty ref returns -1 so the caller places the cell by position.
func colIndexFromRef(ref string) (int, error) {
	if ref == "" {
		return -1, nil
	}
	i := 0
	for i < len(ref) && (ref[i] >= 'A' && ref[i] <= 'Z' || ref[i] >= 'a' && ref[i] <= 'z') {
		i++
	}
	digits := ref[i:]
	if i == 0 || i > maxRefLetters || digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("invalid cell reference %q", ref)
	}
	s := strings.ToUpper(ref[:i])
	idx := 0
	for j := 0; j < len(s); j++ {
		idx = idx*26 + int(s[j]-'A'+1)
	}
	return idx - 1, nil
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship targets to ZIP entry names.
// Targets may carry a leading slash ("/xl/worksheets/sheet1.xml").
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
