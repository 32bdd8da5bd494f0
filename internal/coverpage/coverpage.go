// Package coverpage renders the package cover page: a title block, submission metadata and a
// table of contents whose entries link to the package documents.
package coverpage

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
)

// TargetPath is where the cover page is filed inside the package.
const TargetPath = "m1/us/cover.pdf"

const (
	margin       = 72.0
	titleSize    = 18.0
	subtitleSize = 12.0
	fieldSize    = 10.0
	headingSize  = 14.0
	entrySize    = 10.0
	entryLeading = 16.0
	indentStep   = 18.0

	headingTOC          = "Table of Contents"
	headingTOCContinued = "Table of Contents (continued)"
)

// Field is one label/value line of the metadata block.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Options controls the cover page content.
type Options struct {
	Title    string
	Subtitle string
	Fields   []Field
	// Path is the package path the cover page is written to; links are relative to it.
	Path string
}

// Entry is one table-of-contents line.
type Entry struct {
	Code         string `json:"code"`
	Title        string `json:"title"`
	TargetPath   string `json:"target_path"`
	RelativePath string `json:"relative_path"`
	Level        int    `json:"level"`
	Page         int    `json:"page"`
	Truncated    bool   `json:"truncated,omitempty"`
}

// Result describes a rendered cover page.
type Result struct {
	PageCount int                  `json:"page_count"`
	Entries   []Entry              `json:"entries"`
	Outline   pdfedit.InjectResult `json:"outline"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// RelativePath returns the link from the cover page at from to target: one ".." per directory
// of from, then the full target path.
func RelativePath(from, target string) string {
	dir := path.Dir(naming.ToSlash(from))
	depth := 0
	if dir != "." && dir != "/" {
		depth = strings.Count(strings.Trim(dir, "/"), "/") + 1
	}
	return strings.Repeat("../", depth) + strings.TrimPrefix(naming.ToSlash(target), "/")
}

// BuildTOC returns one entry per file, sorted numerically by node code. Level is the number of
// code segments minus one.
func BuildTOC(files []models.PackageFile, coverPath string) []Entry {
	sorted := slices.Clone(files)
	slices.SortStableFunc(sorted, func(a, b models.PackageFile) int {
		if c := naming.CompareCodes(a.NodeCode, b.NodeCode); c != 0 {
			return c
		}
		return strings.Compare(a.TargetPath, b.TargetPath)
	})
	out := make([]Entry, 0, len(sorted))
	for _, f := range sorted {
		title := f.NodeTitle
		if title == "" {
			title = f.FileName
		}
		out = append(out, Entry{
			Code:         f.NodeCode,
			Title:        title,
			TargetPath:   naming.ToSlash(f.TargetPath),
			RelativePath: RelativePath(coverPath, f.TargetPath),
			Level:        strings.Count(f.NodeCode, "."),
		})
	}
	return out
}

// page accumulates one page's content stream and link annotations.
type page struct {
	content strings.Builder
	annots  pdfdoc.Array
}

func (p *page) text(font string, size, x, y float64, color [3]float64, s string) {
	fmt.Fprintf(&p.content, "BT /%s %s Tf %s %s %s rg 1 0 0 1 %s %s Tm %s Tj ET\n",
		font, num(size), num(color[0]), num(color[1]), num(color[2]), num(x), num(y),
		pdfdoc.LiteralString(winAnsi(s)))
}

func num(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

var (
	black = [3]float64{0, 0, 0}
	gray  = [3]float64{0.35, 0.35, 0.35}
	blue  = [3]float64{0, 0, 0.8}
)

type layout struct {
	pages []*page
	cur   *page
	y     float64
	box   [4]float64
}

func (l *layout) newPage() {
	l.cur = &page{}
	l.pages = append(l.pages, l.cur)
	l.y = l.box[3] - margin
}

func (l *layout) right() float64 { return l.box[2] - margin }

// Generate renders the cover page for files.
func Generate(files []models.PackageFile, opts Options) (*pdfdoc.Document, *Result, error) {
	if opts.Path == "" {
		opts.Path = TargetPath
	}
	if opts.Title == "" {
		opts.Title = "Submission Cover Page"
	}
	res := &Result{Entries: BuildTOC(files, opts.Path)}
	l := &layout{box: pdfdoc.Letter}
	l.newPage()

	title, cut := fit(opts.Title, titleSize, l.right()-margin, true)
	if cut {
		res.Warnings = append(res.Warnings, "cover page title truncated")
	}
	l.y -= titleSize
	l.cur.text("F2", titleSize, margin, l.y, black, title)
	l.y -= 8
	if opts.Subtitle != "" {
		sub, _ := fit(opts.Subtitle, subtitleSize, l.right()-margin, false)
		l.y -= subtitleSize
		l.cur.text("F1", subtitleSize, margin, l.y, gray, sub)
		l.y -= 6
	}
	l.y -= 8
	for _, f := range opts.Fields {
		line, _ := fit(f.Label+": "+f.Value, fieldSize, l.right()-margin, false)
		l.y -= fieldSize + 4
		l.cur.text("F1", fieldSize, margin, l.y, black, line)
	}

	l.y -= 18
	tocPage := 1
	l.y -= headingSize
	l.cur.text("F2", headingSize, margin, l.y, black, headingTOC)
	l.y -= 8

	if len(res.Entries) == 0 {
		l.y -= entryLeading
		l.cur.text("F1", entrySize, margin, l.y, gray, "No documents in package")
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		if l.y-entryLeading < margin {
			l.newPage()
			l.y -= headingSize
			l.cur.text("F2", headingSize, margin, l.y, black, headingTOCContinued)
			l.y -= 8
		}
		l.y -= entryLeading
		x := margin + indentStep*float64(e.Level)
		label, cut := fit(e.Code+"  "+e.Title, entrySize, l.right()-x, false)
		e.Truncated = cut
		e.Page = len(l.pages)
		l.cur.text("F1", entrySize, x, l.y, blue, label)
		width := textWidth(winAnsi(label), entrySize, false)
		l.cur.annots = append(l.cur.annots, pdfdoc.Dict{
			"Type":    pdfdoc.Name("Annot"),
			"Subtype": pdfdoc.Name("Link"),
			"Rect":    pdfdoc.NewRect(x, l.y-2, x+width, l.y+entrySize),
			"Border":  pdfdoc.Array{pdfdoc.Integer(0), pdfdoc.Integer(0), pdfdoc.Integer(0)},
			"A": pdfdoc.Dict{
				"S": pdfdoc.Name("GoToR"),
				"F": pdfdoc.String(e.RelativePath),
				"D": pdfdoc.Array{pdfdoc.Integer(0), pdfdoc.Name("Fit")},
			},
		})
	}

	doc, err := l.render(opts.Title)
	if err != nil {
		return nil, nil, err
	}
	res.PageCount = len(l.pages)
	res.Outline = pdfedit.InjectBookmarks(doc, outline(res.Entries, tocPage))
	if !res.Outline.Success {
		return nil, nil, fmt.Errorf("cover page outline: %s", res.Outline.Error)
	}
	res.Warnings = append(res.Warnings, res.Outline.Warnings...)
	return doc, res, nil
}

func (l *layout) render(title string) (*pdfdoc.Document, error) {
	doc := pdfdoc.New("1.7")
	font := func(base string) pdfdoc.Dict {
		return pdfdoc.Dict{
			"Type":     pdfdoc.Name("Font"),
			"Subtype":  pdfdoc.Name("Type1"),
			"BaseFont": pdfdoc.Name(base),
			"Encoding": pdfdoc.Name("WinAnsiEncoding"),
		}
	}
	resources := doc.Add(pdfdoc.Dict{
		"Font": pdfdoc.Dict{
			"F1": doc.Add(font("Helvetica")),
			"F2": doc.Add(font("Helvetica-Bold")),
		},
	})
	for _, p := range l.pages {
		stream, err := pdfdoc.NewFlateStream(nil, []byte(p.content.String()))
		if err != nil {
			return nil, err
		}
		pg := pdfdoc.Dict{
			"MediaBox":  pdfdoc.NewRect(l.box[0], l.box[1], l.box[2], l.box[3]),
			"Resources": resources,
			"Contents":  doc.Add(stream),
		}
		if len(p.annots) > 0 {
			refs := make(pdfdoc.Array, 0, len(p.annots))
			for _, a := range p.annots {
				refs = append(refs, doc.Add(a))
			}
			pg["Annots"] = refs
		}
		if _, err := doc.AppendPage(pg); err != nil {
			return nil, err
		}
	}
	doc.SetInfo(pdfdoc.Dict{
		"Title":        pdfdoc.EncodeText(title),
		"Producer":     pdfdoc.String("ectd"),
		"CreationDate": pdfdoc.String(time.Now().UTC().Format("D:20060102150405Z")),
	})
	return doc, nil
}

// outline is the three-level cover page outline: the cover page, its header and table of
// contents, then one item per entry.
func outline(entries []Entry, tocPage int) []*models.BookmarkNode {
	one := 1
	toc := &models.BookmarkNode{Title: headingTOC, PageNumber: &tocPage}
	for _, e := range entries {
		p := e.Page
		toc.Children = append(toc.Children, &models.BookmarkNode{Title: e.Code + " " + e.Title, PageNumber: &p})
	}
	return []*models.BookmarkNode{{
		Title:      "Cover Page",
		PageNumber: &one,
		Children: []*models.BookmarkNode{
			{Title: "Header", PageNumber: &one},
			toc,
		},
	}}
}

// Write renders the cover page to path.
func Write(path string, files []models.PackageFile, opts Options) (*Result, error) {
	doc, res, err := Generate(files, opts)
	if err != nil {
		return nil, err
	}
	if err := doc.Save(path); err != nil {
		return nil, fmt.Errorf("failed to write cover page: %w", err)
	}
	return res, nil
}
