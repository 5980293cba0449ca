package table

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func cellTexts(c *Column) []string {
	out := make([]string, len(c.Cells))
	for i, cell := range c.Cells {
		if cell.Valid {
			out[i] = cell.Text
		} else {
			out[i] = "<missing>"
		}
	}
	return out
}

func TestLoadCSVBasic(t *testing.T) {
	p := writeFile(t, "survey.csv", "\ufeffBranch,Satisfaction,Comment\n"+
		"North,Yes,\"Loved the staff, very helpful\"\n"+
		"South,NA,\n"+
		"East,No\n")
	tbl, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Rows() != 3 {
		t.Fatalf("rows=%d, want 3", tbl.Rows())
	}
	if got := strings.Join(tbl.Header(), "|"); got != "Branch|Satisfaction|Comment" {
		t.Fatalf("header=%q (BOM should be stripped)", got)
	}
	sat, _ := tbl.Column("Satisfaction")
	if got := strings.Join(cellTexts(sat), "|"); got != "Yes|<missing>|No" {
		t.Fatalf("satisfaction=%q", got)
	}
	comment, _ := tbl.Column("Comment")
	if got := strings.Join(cellTexts(comment), "|"); got != "Loved the staff, very helpful|<missing>|<missing>" {
		t.Fatalf("comment=%q (short rows should pad with missing)", got)
	}
}

func TestLoadCSVHeaderNormalization(t *testing.T) {
	p := writeFile(t, "dups.csv", "Q,Q,,Q\n1,2,3,4\n")
	tbl, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := "Q|Q.1|Unnamed: 2|Q.2"
	if got := strings.Join(tbl.Header(), "|"); got != want {
		t.Fatalf("header=%q, want %q", got, want)
	}
}

func TestLoadTSVByExtension(t *testing.T) {
	p := writeFile(t, "survey.tsv", "a\tb\nx\ty\n")
	tbl, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(tbl.Columns()) != 2 || tbl.Rows() != 1 {
		t.Fatalf("unexpected shape: cols=%d rows=%d", len(tbl.Columns()), tbl.Rows())
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		is      error
	}{
		{"unsupported extension", "survey.json", "{}", ErrUnsupportedFormat},
		{"too many fields", "bad.csv", "a,b\n1,2,3\n", nil},
		{"invalid utf8", "latin.csv", "name\n\xff\xfe\n", nil},
		{"not an archive", "fake.xlsx", "plain text", nil},
		{"corrupt legacy workbook", "old.xls", string(oleMagic) + "rest", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := writeFile(t, c.file, c.content)
			_, err := LoadFile(p, DefaultOptions())
			if err == nil {
				t.Fatalf("expected error")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T: %v", err, err)
			}
			if c.is != nil && !errors.Is(err, c.is) {
				t.Fatalf("expected errors.Is(%v), got %v", c.is, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.csv"), DefaultOptions())
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestLoadEmptyCSV(t *testing.T) {
	p := writeFile(t, "empty.csv", "")
	tbl, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Rows() != 0 || len(tbl.Columns()) != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestMaxRows(t *testing.T) {
	p := writeFile(t, "many.csv", "a\n1\n2\n3\n4\n")
	opt := DefaultOptions()
	opt.MaxRows = 2
	tbl, err := LoadFile(p, opt)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tbl.Rows() != 2 {
		t.Fatalf("rows=%d, want 2", tbl.Rows())
	}
}

func TestAddColumnInvariants(t *testing.T) {
	tbl := New("t", 2)
	if err := tbl.AddColumn("a", []Cell{Value("x"), Missing()}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := tbl.AddColumn("a", []Cell{Value("y"), Value("z")}); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if err := tbl.AddColumn("b", []Cell{Value("y")}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestWriteAndReloadRoundTrip(t *testing.T) {
	tbl := New("result", 4)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(tbl.AddColumn("Channel", []Cell{Value("App"), Value("Branch"), Missing(), Value("App")}))
	must(tbl.AddColumn("Feedback", []Cell{
		Value("Transfers are \"instant\", great"),
		Value("Line one\nLine two"),
		Value("  leading spaces kept"),
		Missing(),
	}))
	must(tbl.AddColumn("Feedback_Analysis", []Cell{
		Value("- Summary: fast transfers"),
		Value("Analysis error: timeout"),
		Value("- Summary: ok"),
		Missing(),
	}))
	p := filepath.Join(t.TempDir(), "out", "result.csv")
	must(WriteFile(tbl, p))

	back, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Rows() != tbl.Rows() {
		t.Fatalf("rows=%d, want %d", back.Rows(), tbl.Rows())
	}
	if strings.Join(back.Header(), "|") != strings.Join(tbl.Header(), "|") {
		t.Fatalf("header mismatch: %v vs %v", back.Header(), tbl.Header())
	}
	for i := 0; i < tbl.Rows(); i++ {
		want := tbl.Record(i)
		got := back.Record(i)
		for j := range want {
			if want[j] != got[j] {
				t.Fatalf("row %d col %d: got %q want %q", i, j, got[j], want[j])
			}
		}
	}
}

func TestWriteSingleColumnKeepsMissingRows(t *testing.T) {
	tbl := New("single", 3)
	if err := tbl.AddColumn("only", []Cell{Value("a"), Missing(), Value("c")}); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "single.csv")
	if err := WriteFile(tbl, p); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	back, err := LoadFile(p, DefaultOptions())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Rows() != 3 {
		t.Fatalf("rows=%d, want 3", back.Rows())
	}
}
