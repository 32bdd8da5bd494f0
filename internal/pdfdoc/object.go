// Package pdfdoc is a small PDF object model: it parses a file into dictionaries, arrays,
// names and references, lets callers mutate that graph, and writes it back as a single
// revision with a classic cross-reference table.
package pdfdoc

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPDF is returned when no %PDF- header is found.
	ErrNotPDF = errors.New("not a PDF file")
	// ErrEncrypted is returned by operations that cannot work on encrypted files.
	ErrEncrypted = errors.New("pdf is encrypted")
	// ErrNoCatalog is returned when the trailer has no usable /Root.
	ErrNoCatalog = errors.New("pdf has no document catalog")
	// ErrUnsupportedFilter is returned when a stream uses a filter this package cannot decode.
	ErrUnsupportedFilter = errors.New("unsupported stream filter")
)

// Object is any PDF value: Null, Boolean, Integer, Real, Name, String, HexString, Array,
// Dict, Ref or *Stream.
type Object any

// Null is the PDF null object.
type Null struct{}

// Boolean is a PDF boolean.
type Boolean bool

// Integer is a PDF integer.
type Integer int64

// Real is a PDF real number.
type Real float64

// Name is a PDF name without the leading slash.
type Name string

// String is a literal string, stored as its decoded bytes.
type String []byte

// HexString is a hexadecimal string, stored as its decoded bytes.
type HexString []byte

// Array is a PDF array.
type Array []Object

// Dict is a PDF dictionary keyed by name.
type Dict map[Name]Object

// Ref is an indirect reference.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.Num, r.Gen)
}

// Stream is a stream object. Data holds the encoded bytes exactly as stored in the file.
type Stream struct {
	Dict Dict
	Data []byte
}

// Name returns the name stored under key, or "" when absent or not a name.
func (d Dict) Name(key Name) Name {
	n, _ := d[key].(Name)
	return n
}

// Has reports whether key is present.
func (d Dict) Has(key Name) bool {
	_, ok := d[key]
	return ok
}

// Number converts an Integer or Real to float64.
func Number(o Object) (float64, bool) {
	switch v := o.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// Int converts an Integer (or integral Real) to int.
func Int(o Object) (int, bool) {
	switch v := o.(type) {
	case Integer:
		return int(v), true
	case Real:
		if float64(int(v)) == float64(v) {
			return int(v), true
		}
	}
	return 0, false
}

// Bytes returns the raw bytes of a String or HexString.
func Bytes(o Object) ([]byte, bool) {
	switch v := o.(type) {
	case String:
		return []byte(v), true
	case HexString:
		return []byte(v), true
	}
	return nil, false
}

// IsNull reports whether o is nil or Null.
func IsNull(o Object) bool {
	if o == nil {
		return true
	}
	_, ok := o.(Null)
	return ok
}
