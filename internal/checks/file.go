package checks

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/ectd/internal/pdfdoc"
)

// File is one file under check. Its content is read once and parsed lazily, so checks that
// share a parser share the result.
type File struct {
	Path string
	// Target is the package-relative path; empty for files outside a package.
	Target string
	Info   os.FileInfo

	loadOnce sync.Once
	data     []byte
	loadErr  error

	docOnce sync.Once
	doc     *pdfdoc.Document
	docErr  error

	readerOnce sync.Once
	reader     *pdf.Reader
	readerErr  error
}

// NewFile stats path. An error means the file is not accessible.
func NewFile(path, target string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{Path: path, Target: target, Info: info}, nil
}

// Name is the path reported in issues: the target path when known.
func (f *File) Name() string {
	if f.Target != "" {
		return f.Target
	}
	return f.Path
}

func (f *File) bytes() ([]byte, error) {
	f.loadOnce.Do(func() {
		f.data, f.loadErr = os.ReadFile(f.Path)
	})
	return f.data, f.loadErr
}

// Document parses the file with pdfdoc.
func (f *File) Document() (*pdfdoc.Document, error) {
	f.docOnce.Do(func() {
		data, err := f.bytes()
		if err != nil {
			f.docErr = err
			return
		}
		f.doc, f.docErr = pdfdoc.Parse(data)
	})
	return f.doc, f.docErr
}

// Reader opens the file with the strict ledongthuc/pdf reader, which refuses damaged
// cross-reference data that pdfdoc repairs.
func (f *File) Reader() (*pdf.Reader, error) {
	f.readerOnce.Do(func() {
		data, err := f.bytes()
		if err != nil {
			f.readerErr = err
			return
		}
		f.reader, f.readerErr = strictReader(data)
	})
	return f.reader, f.readerErr
}

func strictReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("strict reader: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// strictPageCount reads the page count with the strict reader, recovering from its panics.
func strictPageCount(r *pdf.Reader) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strict reader: %v", p)
		}
	}()
	return r.NumPage(), nil
}

// strictOutlineCount counts top-level outline entries with the strict reader.
func strictOutlineCount(r *pdf.Reader) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strict reader: %v", p)
		}
	}()
	return len(r.Outline().Child), nil
}

// strictFirstPageText extracts the plain text of page 1.
func strictFirstPageText(r *pdf.Reader) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strict reader: %v", p)
		}
	}()
	if r.NumPage() == 0 {
		return "", nil
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
