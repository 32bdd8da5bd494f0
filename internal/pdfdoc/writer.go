package pdfdoc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) str(s string) {
	_, _ = io.WriteString(c, s)
}

// WriteTo serializes the document as a single revision with a classic xref table.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.str("%PDF-" + d.Version() + "\n%\xe2\xe3\xcf\xd3\n")

	nums := d.ObjectNumbers()
	offsets := make(map[int]int64, len(nums))
	for _, num := range nums {
		offsets[num] = cw.n
		fmt.Fprintf(cw, "%d %d obj\n", num, d.gens[num])
		writeObject(cw, d.objects[num])
		cw.str("\nendobj\n")
	}

	size := 1
	if len(nums) > 0 {
		size = nums[len(nums)-1] + 1
	}
	xref := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n", size)
	cw.str("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(cw, "%010d %05d n \n", off, d.gens[i])
			continue
		}
		cw.str("0000000000 00000 f \n")
	}

	trailer := Dict{"Size": Integer(size)}
	for _, key := range []Name{"Root", "Info", "ID", "Encrypt"} {
		if v, ok := d.trailer[key]; ok {
			trailer[key] = v
		}
	}
	cw.str("trailer\n")
	writeObject(cw, trailer)
	fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", xref)

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Save writes the document to path through a temporary file in the same directory.
func (d *Document) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfdoc-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := d.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Bytes serializes the document into memory.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObject(w *countingWriter, o Object) {
	switch v := o.(type) {
	case nil, Null:
		w.str("null")
	case Boolean:
		w.str(strconv.FormatBool(bool(v)))
	case Integer:
		w.str(strconv.FormatInt(int64(v), 10))
	case Real:
		w.str(formatReal(float64(v)))
	case Name:
		w.str(escapeName(v))
	case String:
		w.str(escapeLiteral(v))
	case HexString:
		fmt.Fprintf(w, "<%X>", []byte(v))
	case Ref:
		w.str(v.String())
	case Array:
		w.str("[")
		for i, e := range v {
			if i > 0 {
				w.str(" ")
			}
			writeObject(w, e)
		}
		w.str("]")
	case Dict:
		writeDict(w, v)
	case *Stream:
		dict := make(Dict, len(v.Dict)+1)
		for k, val := range v.Dict {
			dict[k] = val
		}
		dict["Length"] = Integer(len(v.Data))
		writeDict(w, dict)
		w.str("\nstream\n")
		_, _ = w.Write(v.Data)
		w.str("\nendstream")
	case keyword:
		w.str(string(v))
	default:
		w.str("null")
	}
}

func writeDict(w *countingWriter, d Dict) {
	keys := make([]Name, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	w.str("<<")
	for i, k := range keys {
		if i > 0 {
			w.str(" ")
		}
		w.str(escapeName(k))
		w.str(" ")
		writeObject(w, d[k])
	}
	w.str(">>")
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}

func escapeName(n Name) string {
	var sb strings.Builder
	sb.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(&sb, "#%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// LiteralString renders s as a PDF literal string for use in content streams.
func LiteralString(s []byte) string {
	return escapeLiteral(s)
}

func escapeLiteral(s []byte) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}
