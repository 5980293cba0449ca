package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

func TestSafeWriteFileCreatesParentAndReplaces(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "result.csv")
	if err := utils.SafeWriteFile(p, []byte("a\n1\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := utils.SafeWriteFile(p, []byte("a\n2\n")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "a\n2\n" {
		t.Fatalf("unexpected content: %q", b)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
