package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for relative paths that escape the file store root.
var ErrOutsideRoot = errors.New("path escapes storage root")

// FileStore addresses uploaded document bytes by path relative to a root directory.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve files root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (fs *FileStore) Root() string { return fs.root }

// GetFullPath maps a stored path to an absolute path. Absolute paths inside the root are
// returned cleaned; relative paths are joined to the root.
func (fs *FileStore) GetFullPath(rel string) (string, error) {
	p := filepath.FromSlash(rel)
	if !filepath.IsAbs(p) {
		p = filepath.Join(fs.root, p)
	}
	p = filepath.Clean(p)
	if !within(fs.root, p) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return p, nil
}

// Open opens a stored file for reading.
func (fs *FileStore) Open(rel string) (*os.File, error) {
	p, err := fs.GetFullPath(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Write stores data at rel, creating parent directories.
func (fs *FileStore) Write(rel string, data []byte) error {
	p, err := fs.GetFullPath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(p, data, 0644)
}

// Stat returns file info for a stored path.
func (fs *FileStore) Stat(rel string) (os.FileInfo, error) {
	p, err := fs.GetFullPath(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// CopyTo copies a stored file to dst, which may lie outside the root.
func (fs *FileStore) CopyTo(rel, dst string) error {
	src, err := fs.GetFullPath(rel)
	if err != nil {
		return err
	}
	return CopyFile(src, dst)
}

// CopyFile copies src to dst, creating dst's parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// Within reports whether path lies inside root after cleaning both.
func Within(root, path string) bool {
	r, err1 := filepath.Abs(root)
	p, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	return within(r, p)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
