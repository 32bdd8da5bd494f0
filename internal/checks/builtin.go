package checks

import (
	"bytes"
	"context"
	"math"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
)

const (
	// MaxNameLength bounds a file or folder name inside an eCTD package.
	MaxNameLength = 64
	// MaxPathLength bounds a package-relative path.
	MaxPathLength = 150

	defaultMaxFileSize = 500 << 20
)

var (
	defaultVersions = []string{"1.4", "1.5", "1.6", "1.7"}

	packageName = regexp.MustCompile(`^[a-z0-9][a-z0-9\-_]*(\.[a-z0-9]+)?$`)

	// Letter and A4 in either orientation.
	acceptedPageSizes = [][2]float64{{612, 792}, {595, 842}}
)

// Config tunes the built-in checks.
type Config struct {
	MaxFileSize     int64
	AllowedVersions []string
	// PageTolerance is the slack in points when matching page sizes.
	PageTolerance float64
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{MaxFileSize: defaultMaxFileSize, AllowedVersions: defaultVersions, PageTolerance: 2}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if len(c.AllowedVersions) == 0 {
		c.AllowedVersions = d.AllowedVersions
	}
	if c.PageTolerance <= 0 {
		c.PageTolerance = d.PageTolerance
	}
	return c
}

func builtins(cfg Config) []Check {
	return []Check{
		{FileSize, "file does not exceed the size ceiling", fileSize(cfg.MaxFileSize)},
		{PDFParseable, "file opens as a PDF with at least one page", pdfParseable},
		{PDFVersion, "PDF version is in the allowed set", pdfVersion(cfg.AllowedVersions)},
		{NotEncrypted, "PDF carries no encryption dictionary", notEncrypted},
		{NamingConvention, "package path uses lowercase eCTD names within length limits", namingConvention},
		{NoJavaScript, "PDF contains no JavaScript actions", noJavaScript},
		{BookmarksExist, "PDF has an outline", bookmarksExist},
		{PageSize, "pages are Letter or A4", pageSize(cfg.PageTolerance)},
		{ExternalHyperlinks, "PDF has no links to web or mail targets", externalHyperlinks},
		{PDFACompliance, "PDF declares PDF/A conformance", pdfaCompliance},
	}
}

func fileSize(limit int64) Func {
	return func(_ context.Context, f *File) Outcome {
		size := f.Info.Size()
		if size > limit {
			out := failf("file size %d bytes exceeds limit of %d bytes", size, limit)
			out.Details = map[string]any{"size": size, "limit": limit}
			return out
		}
		return pass()
	}
}

// document returns the parsed document, or a skipped outcome when parsing failed. The parse
// failure itself is reported by pdf-parseable.
func document(f *File) (*pdfdoc.Document, *Outcome) {
	doc, err := f.Document()
	if err != nil {
		out := skipped("pdf could not be parsed: " + err.Error())
		return nil, &out
	}
	return doc, nil
}

func pdfParseable(_ context.Context, f *File) Outcome {
	doc, err := f.Document()
	if err != nil {
		return failf("file is not a readable PDF: %v", err)
	}
	pages := doc.PageCount()
	if pages == 0 {
		return failf("PDF has no pages")
	}
	details := map[string]any{"page_count": pages}
	r, rerr := f.Reader()
	if rerr == nil {
		var n int
		n, rerr = strictPageCount(r)
		details["strict_page_count"] = n
	}
	if rerr != nil {
		details["strict_reader_error"] = rerr.Error()
		if len(doc.Warnings) > 0 {
			out := failf("PDF is damaged and only opens after repair: %s", doc.Warnings[0])
			out.Details = details
			return out
		}
	}
	return Outcome{Passed: true, Details: details}
}

func pdfVersion(allowed []string) Func {
	return func(_ context.Context, f *File) Outcome {
		doc, skip := document(f)
		if skip != nil {
			return *skip
		}
		v := doc.Version()
		if !slices.Contains(allowed, v) {
			out := failf("PDF version %s is not allowed (allowed: %s)", v, strings.Join(allowed, ", "))
			out.Details = map[string]any{"version": v}
			return out
		}
		return pass()
	}
}

func notEncrypted(_ context.Context, f *File) Outcome {
	doc, skip := document(f)
	if skip != nil {
		return *skip
	}
	if doc.Encrypted() {
		return failf("PDF is encrypted or password protected")
	}
	return pass()
}

func namingConvention(_ context.Context, f *File) Outcome {
	p := f.Target
	if p == "" {
		p = path.Base(strings.ReplaceAll(f.Path, "\\", "/"))
	}
	var problems []string
	if strings.Contains(p, "\\") {
		problems = append(problems, "path contains backslashes")
	}
	if len(p) > MaxPathLength {
		problems = append(problems, "path exceeds 150 characters")
	}
	for _, seg := range strings.Split(p, "/") {
		if len(seg) > MaxNameLength {
			problems = append(problems, "name "+seg+" exceeds 64 characters")
		}
		if !packageName.MatchString(seg) {
			problems = append(problems, "name "+seg+" has characters outside [a-z0-9-_]")
		}
	}
	if !strings.HasSuffix(p, ".pdf") {
		problems = append(problems, "file extension is not .pdf")
	}
	if len(problems) > 0 {
		out := failf("%s does not follow eCTD naming: %s", p, strings.Join(problems, "; "))
		out.Details = map[string]any{"problems": problems}
		return out
	}
	return pass()
}

func noJavaScript(_ context.Context, f *File) Outcome {
	doc, skip := document(f)
	if skip != nil {
		return *skip
	}
	var hits []int
	for _, num := range doc.ObjectNumbers() {
		if containsJavaScript(doc.Get(pdfdoc.Ref{Num: num}), 0) {
			hits = append(hits, num)
		}
	}
	if cat, err := doc.Catalog(); err == nil {
		if names, ok := doc.ResolveDict(cat["Names"]); ok && names.Has("JavaScript") && len(hits) == 0 {
			hits = append(hits, 0)
		}
	}
	if len(hits) > 0 {
		out := failf("PDF contains JavaScript in %d object(s)", len(hits))
		out.Details = map[string]any{"objects": hits}
		return out
	}
	return pass()
}

// containsJavaScript looks for /S /JavaScript actions and /JS entries in direct objects.
// References are not followed; every indirect object is visited by the caller.
func containsJavaScript(o pdfdoc.Object, depth int) bool {
	if depth > 32 {
		return false
	}
	switch v := o.(type) {
	case *pdfdoc.Stream:
		return containsJavaScript(v.Dict, depth+1)
	case pdfdoc.Dict:
		if v.Name("S") == "JavaScript" || v.Has("JS") {
			return true
		}
		for _, child := range v {
			if containsJavaScript(child, depth+1) {
				return true
			}
		}
	case pdfdoc.Array:
		for _, child := range v {
			if containsJavaScript(child, depth+1) {
				return true
			}
		}
	}
	return false
}

func bookmarksExist(_ context.Context, f *File) Outcome {
	if r, err := f.Reader(); err == nil {
		if n, err := strictOutlineCount(r); err == nil {
			if n == 0 {
				return failf("PDF has no bookmarks")
			}
			return Outcome{Passed: true, Details: map[string]any{"top_level": n}}
		}
	}
	doc, skip := document(f)
	if skip != nil {
		return *skip
	}
	outline, err := pdfedit.ExtractOutline(doc)
	if err != nil {
		return failf("bookmarks could not be read: %v", err)
	}
	if len(outline) == 0 {
		return failf("PDF has no bookmarks")
	}
	return Outcome{Passed: true, Details: map[string]any{"top_level": len(outline)}}
}

func pageSize(tolerance float64) Func {
	return func(_ context.Context, f *File) Outcome {
		doc, skip := document(f)
		if skip != nil {
			return *skip
		}
		pages, err := doc.Pages()
		if err != nil {
			return failf("page tree could not be read: %v", err)
		}
		var odd []int
		for _, p := range pages {
			if !acceptedSize(p.Width(), p.Height(), tolerance) {
				odd = append(odd, p.Number)
			}
		}
		if len(odd) > 0 {
			out := failf("%d page(s) are neither Letter nor A4", len(odd))
			out.Details = map[string]any{"pages": odd}
			return out
		}
		return pass()
	}
}

func acceptedSize(w, h, tolerance float64) bool {
	w, h = math.Abs(w), math.Abs(h)
	for _, s := range acceptedPageSizes {
		if near(w, s[0], tolerance) && near(h, s[1], tolerance) ||
			near(w, s[1], tolerance) && near(h, s[0], tolerance) {
			return true
		}
	}
	return false
}

func near(a, b, tolerance float64) bool { return math.Abs(a-b) <= tolerance }

func externalHyperlinks(_ context.Context, f *File) Outcome {
	doc, skip := document(f)
	if skip != nil {
		return *skip
	}
	cat, err := doc.Catalog()
	if err != nil {
		return failf("catalog could not be read: %v", err)
	}
	pages, err := doc.Pages()
	if err != nil {
		return failf("page tree could not be read: %v", err)
	}
	index := pdfedit.PageIndex(pages)
	var targets []string
	for _, p := range pages {
		for _, annot := range pdfedit.LinkAnnotations(doc, p) {
			t := pdfedit.ReadLinkTarget(doc, cat, annot, index)
			if t.Kind == "URI" && pdfedit.IsExternalURI(t.URI) {
				targets = append(targets, t.URI)
			}
		}
	}
	if len(targets) > 0 {
		out := failf("PDF has %d external hyperlink(s)", len(targets))
		out.Details = map[string]any{"targets": targets}
		return out
	}
	return pass()
}

func pdfaCompliance(_ context.Context, f *File) Outcome {
	doc, skip := document(f)
	if skip != nil {
		return *skip
	}
	cat, err := doc.Catalog()
	if err != nil {
		return failf("catalog could not be read: %v", err)
	}
	var problems []string
	if !hasPDFAIdentification(doc, cat) {
		problems = append(problems, "no PDF/A identification in XMP metadata")
	}
	if intents, ok := doc.ResolveArray(cat["OutputIntents"]); !ok || len(intents) == 0 {
		problems = append(problems, "no output intent")
	}
	if doc.Encrypted() {
		problems = append(problems, "encrypted")
	}
	details := map[string]any{}
	if r, err := f.Reader(); err == nil {
		text, err := strictFirstPageText(r)
		details["text_extractable"] = err == nil && strings.TrimSpace(text) != ""
	}
	if len(problems) > 0 {
		details["problems"] = problems
		out := failf("PDF does not declare PDF/A conformance: %s", strings.Join(problems, "; "))
		out.Details = details
		return out
	}
	return Outcome{Passed: true, Details: details}
}

func hasPDFAIdentification(doc *pdfdoc.Document, cat pdfdoc.Dict) bool {
	s, ok := doc.Resolve(cat["Metadata"]).(*pdfdoc.Stream)
	if !ok {
		return false
	}
	data, err := pdfdoc.Decode(s)
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte("pdfaid:part"))
}
