package backbone

import "strings"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five XML special characters with entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

type attr struct {
	name, value string
}

// xmlWriter emits one element per line. Pretty output indents lines and joins them with
// newlines; compact output concatenates them unchanged.
type xmlWriter struct {
	lines  []string
	depth  int
	pretty bool
}

func (w *xmlWriter) raw(s string) {
	if w.pretty {
		s = strings.Repeat("  ", w.depth) + s
	}
	w.lines = append(w.lines, s)
}

func startTag(name string, attrs []attr, selfClose bool) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(name)
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(Escape(a.value))
		b.WriteString(`"`)
	}
	if selfClose {
		b.WriteString("/")
	}
	b.WriteString(">")
	return b.String()
}

func (w *xmlWriter) open(name string, attrs ...attr) {
	w.raw(startTag(name, attrs, false))
	w.depth++
}

func (w *xmlWriter) close(name string) {
	w.depth--
	w.raw("</" + name + ">")
}

func (w *xmlWriter) empty(name string, attrs ...attr) {
	w.raw(startTag(name, attrs, true))
}

// text writes <name>value</name>.
func (w *xmlWriter) text(name, value string) {
	w.raw("<" + name + ">" + Escape(value) + "</" + name + ">")
}

// optional writes the element only when value is not empty.
func (w *xmlWriter) optional(name, value string) {
	if value != "" {
		w.text(name, value)
	}
}

func (w *xmlWriter) String() string {
	if w.pretty {
		return strings.Join(w.lines, "\n") + "\n"
	}
	return strings.Join(w.lines, "")
}
