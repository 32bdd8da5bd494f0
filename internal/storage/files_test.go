package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_GetFullPath(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := fs.GetFullPath("studies/S-001/protocol.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "studies", "S-001", "protocol.pdf"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	inside := filepath.Join(root, "a.pdf")
	if got, err := fs.GetFullPath(inside); err != nil || got != inside {
		t.Errorf("absolute path inside root: got %q, %v", got, err)
	}

	for _, bad := range []string{"../etc/passwd", "a/../../b.pdf", filepath.Join(filepath.Dir(root), "x.pdf")} {
		if _, err := fs.GetFullPath(bad); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("%s: expected ErrOutsideRoot, got %v", bad, err)
		}
	}
}

func TestFileStore_WriteCopyStat(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("s/doc.pdf", []byte("%PDF-1.7")); err != nil {
		t.Fatal(err)
	}
	info, err := fs.Stat("s/doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 8 {
		t.Errorf("size: got %d, want 8", info.Size())
	}

	dst := filepath.Join(t.TempDir(), "stage", "m5", "doc.pdf")
	if err := fs.CopyTo("s/doc.pdf", dst); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("copied content: got %q", data)
	}

	f, err := fs.Open("s/doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	if !Within(root, filepath.Join(root, "x", "y")) {
		t.Error("child should be within root")
	}
	if !Within(root, root) {
		t.Error("root is within itself")
	}
	if Within(root, filepath.Dir(root)) {
		t.Error("parent is not within root")
	}
	if Within(root, root+"-sibling") {
		t.Error("sibling with shared prefix is not within root")
	}
}
