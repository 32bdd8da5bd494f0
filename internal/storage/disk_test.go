package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	exports := filepath.Join(dir, "exports", "run-1", "ectd")
	if err := os.MkdirAll(exports, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(exports, "index.xml"), []byte("<ectd/>"), 0644); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(dir, "exports", "run-1.zip")
	if err := os.WriteFile(zipPath, []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(filepath.Join(dir, "exports"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 9 {
		t.Errorf("exports root: got %d bytes, want 9", got)
	}

	got, err = DiskUsageBytes("", zipPath, filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("file with empty and missing paths: got %d bytes, want 2", got)
	}
}
