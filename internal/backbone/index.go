package backbone

import (
	"path"
	"strings"

	"github.com/hyperjump/ectd/internal/hierarchy"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
)

const (
	NamespaceECTD  = "http://www.ich.org/ectd"
	NamespaceXLink = "http://www.w3c.org/1999/xlink"
	NamespaceFDA   = "http://www.fda.gov/ectd"

	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`
	indexDoctype   = `<!DOCTYPE ectd:ectd SYSTEM "util/dtd/ich-ectd-3-2.dtd">`
	indexRoot      = "ectd:ectd"
)

// Module is one eCTD module of index.xml. Key is also the element name.
type Module struct {
	Key   string
	Title string
}

// Modules lists the eCTD modules in document order.
var Modules = []Module{
	{"m1", "Administrative Information and Prescribing Information"},
	{"m2", "Common Technical Document Summaries"},
	{"m3", "Quality"},
	{"m4", "Nonclinical Study Reports"},
	{"m5", "Clinical Study Reports"},
}

// ModuleOf returns the module key of href: its first path segment when that names a known
// module, otherwise m5.
func ModuleOf(href string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(naming.ToSlash(href), "/"), "/")
	first = strings.ToLower(first)
	for _, m := range Modules {
		if m.Key == first {
			return first
		}
	}
	return "m5"
}

// groupByModule buckets leaves by module, keeping input order within a module.
func groupByModule(leaves []models.LeafEntry) map[string][]models.LeafEntry {
	out := make(map[string][]models.LeafEntry)
	for _, l := range leaves {
		m := ModuleOf(l.Href)
		out[m] = append(out[m], l)
	}
	return out
}

// GenerateIndexXML renders index.xml.
func GenerateIndexXML(leaves []models.LeafEntry, meta Metadata, seq Sequence, opts Options) string {
	w := &xmlWriter{pretty: opts.PrettyPrint}
	w.raw(xmlDeclaration)
	if opts.IncludeDoctype {
		w.raw(indexDoctype)
	}
	rootAttrs := []attr{
		{"xmlns:ectd", NamespaceECTD},
		{"xmlns:xlink", NamespaceXLink},
	}
	if opts.region() == RegionUS {
		rootAttrs = append(rootAttrs, attr{"xmlns:fda", NamespaceFDA})
	}
	rootAttrs = append(rootAttrs, attr{"dtd-version", "3.2"})
	w.open(indexRoot, rootAttrs...)

	writeSubmission(w, seq)
	w.open("applicant")
	w.text("name", meta.Applicant.Name)
	w.optional("duns", meta.Applicant.DUNS)
	w.close("applicant")
	w.open("study")
	w.text("study-number", meta.StudyNumber)
	w.optional("study-title", meta.StudyTitle)
	w.close("study")

	byModule := groupByModule(leaves)
	for _, m := range Modules {
		ls := byModule[m.Key]
		if len(ls) == 0 {
			continue
		}
		w.open(m.Key, attr{"title", m.Title})
		writeSections(w, sectionTree(ls))
		w.close(m.Key)
	}

	w.close(indexRoot)
	return w.String()
}

func writeSubmission(w *xmlWriter, seq Sequence) {
	w.open("submission")
	w.text("sequence", seq.Number)
	w.text("submission-type", string(seq.Type))
	w.optional("description", seq.Description)
	w.optional("related-sequence", seq.RelatedSequence)
	w.text("submission-date", seq.Date.Format("2006-01-02"))
	w.close("submission")
}

// sectionTree groups leaves by every hierarchy prefix of their node code. Leaves without a
// code are keyed by the directory of their href.
func sectionTree(leaves []models.LeafEntry) []*hierarchy.Node[models.LeafEntry] {
	key := func(l models.LeafEntry) string {
		if l.NodeCode != "" {
			return l.NodeCode
		}
		return strings.ReplaceAll(path.Dir(l.Href), "/", ".")
	}
	tree := hierarchy.ByPrefix(leaves, key, ".")
	hierarchy.Sort(tree, func(a, b *hierarchy.Node[models.LeafEntry]) int {
		return naming.CompareCodes(a.Key, b.Key)
	})
	return tree
}

// writeSections writes child sections before the leaves filed directly under a section.
func writeSections(w *xmlWriter, nodes []*hierarchy.Node[models.LeafEntry]) {
	for _, n := range nodes {
		title := "Section " + n.Key
		if !n.Synthetic() {
			title = n.Items[0].Title
		}
		w.open("section", attr{"code", n.Key}, attr{"title", title})
		writeSections(w, n.Children)
		for _, l := range n.Items {
			writeLeaf(w, l)
		}
		w.close("section")
	}
}

// writeLeaf emits ID, xlink:href, checksum, checksum-type, then operation and modified-file
// when set, with the title as a child element.
func writeLeaf(w *xmlWriter, l models.LeafEntry) {
	attrs := []attr{
		{"ID", l.ID},
		{"xlink:href", naming.ToSlash(l.Href)},
		{"checksum", l.Checksum},
		{"checksum-type", l.ChecksumType},
	}
	if l.Operation != "" {
		attrs = append(attrs, attr{"operation", l.Operation})
	}
	if l.ModifiedFile != "" {
		attrs = append(attrs, attr{"modified-file", naming.ToSlash(l.ModifiedFile)})
	}
	w.open("leaf", attrs...)
	w.text("title", l.Title)
	w.close("leaf")
}
