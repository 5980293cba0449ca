package table

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	fixtureWorkbook = `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Responses" sheetId="2" r:id="rId2"/></sheets>
</workbook>`
	fixtureRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`
	fixtureShared = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>Channel</t></si><si><t>Score</t></si><si><t>Comment</t></si>
<si><t>App</t></si><si><r><t>Bra</t></r><r><t>nch</t></r></si><si><t>Fees &amp; charges are too high</t></si>
</sst>`
	fixtureSheet1 = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>note</t></is></c></row>
</sheetData></worksheet>`
	fixtureSheet2 = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c><c r="D1" t="inlineStr"><is><t>Recommend</t></is></c></row>
<row r="2"><c r="A2" t="s"><v>3</v></c><c r="B2"><v>5</v></c><c r="C2" t="s"><v>5</v></c><c r="D2" t="b"><v>1</v></c></row>
<row r="4"><c r="A4" t="s"><v>4</v></c><c r="C4" t="inlineStr"><is><t>Quick service</t></is></c><c r="D4" t="b"><v>0</v></c></row>
</sheetData></worksheet>`
)

func fixtureParts() map[string]string {
	return map[string]string{
		"xl/workbook.xml":            fixtureWorkbook,
		"xl/_rels/workbook.xml.rels": fixtureRels,
		"xl/sharedStrings.xml":       fixtureShared,
		"xl/worksheets/sheet1.xml":   fixtureSheet1,
		"xl/worksheets/sheet2.xml":   fixtureSheet2,
	}
}

func writeXLSXFixture(t *testing.T, name string) string {
	t.Helper()
	return writeXLSXParts(t, name, fixtureParts())
}

func writeXLSXParts(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return p
}

func TestLoadXLSXBySheetName(t *testing.T) {
	p := writeXLSXFixture(t, "survey.xlsx")
	opt := DefaultOptions()
	opt.SheetName = "responses"
	tbl, err := LoadFile(p, opt)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := strings.Join(tbl.Header(), "|"); got != "Channel|Score|Comment|Recommend" {
		t.Fatalf("header=%q", got)
	}
	// Row 3 is absent from the sheet XML and must surface as an empty row.
	if tbl.Rows() != 3 {
		t.Fatalf("rows=%d, want 3", tbl.Rows())
	}
	channel, _ := tbl.Column("Channel")
	if got := strings.Join(cellTexts(channel), "|"); got != "App|<missing>|Branch" {
		t.Fatalf("channel=%q", got)
	}
	comment, _ := tbl.Column("Comment")
	if comment.Cells[0].Text != "Fees & charges are too high" {
		t.Fatalf("comment[0]=%q", comment.Cells[0].Text)
	}
	rec, _ := tbl.Column("Recommend")
	if got := strings.Join(cellTexts(rec), "|"); got != "True|<missing>|False" {
		t.Fatalf("recommend=%q", got)
	}
	score, _ := tbl.Column("Score")
	if score.Cells[2].Valid {
		t.Fatalf("expected missing score in last row")
	}
}

func TestLoadXLSXByIndexAndXLSExtension(t *testing.T) {
	p := writeXLSXFixture(t, "survey.xls")
	opt := DefaultOptions()
	opt.SheetIndex = 2
	tbl, err := LoadFile(p, opt)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(tbl.Columns()) != 4 {
		t.Fatalf("columns=%d, want 4", len(tbl.Columns()))
	}

	first, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadFile default sheet: %v", err)
	}
	if got := strings.Join(first.Header(), "|"); got != "note" || first.Rows() != 0 {
		t.Fatalf("default sheet header=%q rows=%d", got, first.Rows())
	}
}

func TestLoadXLSXUnknownSheet(t *testing.T) {
	p := writeXLSXFixture(t, "survey.xlsx")
	opt := DefaultOptions()
	opt.SheetName = "Missing"
	_, err := LoadFile(p, opt)
	if err == nil || !strings.Contains(err.Error(), "Notes, Responses") {
		t.Fatalf("expected available sheets in error, got %v", err)
	}
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		if got := normalizeRelPath(tt.input); got != tt.expected {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadXLSXCorruptPartsFail(t *testing.T) {
	// The first three rows of sheet2 parse cleanly; the damage comes after.
	goodRows := fixtureSheet2[:strings.Index(fixtureSheet2, "<row r=\"4\">")]
	cases := []struct {
		name string
		part string
		body string
	}{
		{"garbage inside a cell", "xl/worksheets/sheet2.xml", goodRows + `<row r="4"><c r="A4" <<<garbage`},
		{"truncated row", "xl/worksheets/sheet2.xml", goodRows + `<row r="4"><c r="A4" t="s"><v>4</v></c>`},
		{"truncated value", "xl/worksheets/sheet2.xml", goodRows + `<row r="4"><c r="A4"><v>4`},
		{"malformed cell reference", "xl/worksheets/sheet2.xml", strings.Replace(fixtureSheet2, `r="C4"`, `r="4C"`, 1)},
		{"truncated shared strings", "xl/sharedStrings.xml", fixtureShared[:len(fixtureShared)/2]},
		{"truncated workbook", "xl/workbook.xml", fixtureWorkbook[:len(fixtureWorkbook)-20]},
		{"truncated relationships", "xl/_rels/workbook.xml.rels", fixtureRels[:len(fixtureRels)-30]},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			parts := fixtureParts()
			parts[c.part] = c.body
			p := writeXLSXParts(t, "survey.xlsx", parts)
			opt := DefaultOptions()
			opt.SheetIndex = 2
			tbl, err := LoadFile(p, opt)
			if err == nil {
				t.Fatalf("expected error, loaded %d rows", tbl.Rows())
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadXLSXMaxRowsStopsBeforeDamage(t *testing.T) {
	parts := fixtureParts()
	goodRows := fixtureSheet2[:strings.Index(fixtureSheet2, "<row r=\"4\">")]
	parts["xl/worksheets/sheet2.xml"] = goodRows + `<row r="4"><c r="A4" <<<garbage`
	p := writeXLSXParts(t, "survey.xlsx", parts)
	opt := DefaultOptions()
	opt.SheetIndex = 2
	opt.MaxRows = 1
	tbl, err := LoadFile(p, opt)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Rows() != 1 {
		t.Fatalf("rows=%d, want 1", tbl.Rows())
	}
}

func TestColIndexFromRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    int
		wantErr bool
	}{
		{"A1", 0, false},
		{"C12", 2, false},
		{"b7", 1, false},
		{"AA3", 26, false},
		{"XFD1048576", 16383, false},
		{"", -1, false},
		{"1A", 0, true},
		{"A", 0, true},
		{"A1B", 0, true},
		{"ABCD1", 0, true},
		{"$A$1", 0, true},
	}
	for _, tt := range tests {
		got, err := colIndexFromRef(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("colIndexFromRef(%q) err=%v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("colIndexFromRef(%q) = %d, want %d", tt.ref, got, tt.want)
		}
	}
}
