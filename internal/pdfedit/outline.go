// Package pdfedit rewrites the outline tree and link annotations of a parsed PDF.
package pdfedit

import (
	"errors"
	"fmt"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/pdfdoc"
)

// ErrNoPages is reported when a document has no pages to point bookmarks at.
var ErrNoPages = errors.New("pdf has no pages")

// InjectResult summarizes one outline injection.
type InjectResult struct {
	Success       bool     `json:"success"`
	BookmarkCount int      `json:"bookmark_count"`
	MaxDepth      int      `json:"max_depth"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type outlineBuilder struct {
	doc      *pdfdoc.Document
	pages    []pdfdoc.Page
	result   *InjectResult
	maxDepth int
}

// InjectBookmarks replaces the document outline with bookmarks. Entries pointing outside the
// page range are skipped along with their children and reported as warnings. A bookmark
// without a page takes the page of its first descendant that has one, else page 1.
func InjectBookmarks(doc *pdfdoc.Document, bookmarks []*models.BookmarkNode) InjectResult {
	res := InjectResult{}
	pages, err := doc.Pages()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if len(pages) == 0 {
		res.Error = ErrNoPages.Error()
		return res
	}
	cat, err := doc.Catalog()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	removeOutline(doc, cat)

	root := pdfdoc.Dict{"Type": pdfdoc.Name("Outlines")}
	rootRef := doc.Add(root)
	b := &outlineBuilder{doc: doc, pages: pages, result: &res}
	first, last, visible := b.build(bookmarks, rootRef, 1)
	if first != nil {
		root["First"] = *first
		root["Last"] = *last
		root["Count"] = pdfdoc.Integer(visible)
	}
	cat["Outlines"] = rootRef
	cat["PageMode"] = pdfdoc.Name("UseOutlines")

	res.MaxDepth = b.maxDepth
	res.Success = true
	return res
}

// build writes one sibling list and returns its first and last items plus the number of
// entries visible under parent when parent is open.
func (b *outlineBuilder) build(nodes []*models.BookmarkNode, parent pdfdoc.Ref, depth int) (*pdfdoc.Ref, *pdfdoc.Ref, int) {
	type pending struct {
		node *models.BookmarkNode
		page pdfdoc.Page
	}
	var items []pending
	for _, n := range nodes {
		if n == nil {
			continue
		}
		num := pageFor(n)
		if num < 1 || num > len(b.pages) {
			b.result.Warnings = append(b.result.Warnings,
				fmt.Sprintf("bookmark %q targets page %d outside 1-%d, skipped", n.Title, num, len(b.pages)))
			continue
		}
		page := b.pages[num-1]
		if page.Ref.Num == 0 {
			b.result.Warnings = append(b.result.Warnings,
				fmt.Sprintf("bookmark %q targets page %d which is not an indirect object, skipped", n.Title, num))
			continue
		}
		items = append(items, pending{node: n, page: page})
	}
	if len(items) == 0 {
		return nil, nil, 0
	}
	b.maxDepth = max(b.maxDepth, depth)

	refs := make([]pdfdoc.Ref, len(items))
	dicts := make([]pdfdoc.Dict, len(items))
	for i := range items {
		dicts[i] = pdfdoc.Dict{}
		refs[i] = b.doc.Add(dicts[i])
	}
	visible := 0
	for i, it := range items {
		d := dicts[i]
		d["Title"] = pdfdoc.EncodeText(it.node.Title)
		d["Parent"] = parent
		d["Dest"] = pdfdoc.Array{it.page.Ref, pdfdoc.Name("XYZ"), pdfdoc.Integer(0), pdfdoc.Real(it.page.MediaBox[3]), pdfdoc.Integer(0)}
		if i > 0 {
			d["Prev"] = refs[i-1]
		}
		if i < len(refs)-1 {
			d["Next"] = refs[i+1]
		}
		b.result.BookmarkCount++
		visible++
		first, last, childVisible := b.build(it.node.Children, refs[i], depth+1)
		if first == nil {
			continue
		}
		d["First"] = *first
		d["Last"] = *last
		if it.node.Closed {
			d["Count"] = pdfdoc.Integer(-childVisible)
			continue
		}
		d["Count"] = pdfdoc.Integer(childVisible)
		visible += childVisible
	}
	return &refs[0], &refs[len(refs)-1], visible
}

func pageFor(n *models.BookmarkNode) int {
	if n.PageNumber != nil {
		return *n.PageNumber
	}
	if p := firstDescendantPage(n); p > 0 {
		return p
	}
	return 1
}

func firstDescendantPage(n *models.BookmarkNode) int {
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		if c.PageNumber != nil {
			return *c.PageNumber
		}
		if p := firstDescendantPage(c); p > 0 {
			return p
		}
	}
	return 0
}

// removeOutline deletes the existing outline items so the rewritten file does not carry them.
func removeOutline(doc *pdfdoc.Document, cat pdfdoc.Dict) {
	rootRef, ok := cat["Outlines"].(pdfdoc.Ref)
	if !ok {
		delete(cat, "Outlines")
		return
	}
	visited := make(map[pdfdoc.Ref]bool)
	var walk func(o pdfdoc.Object)
	walk = func(o pdfdoc.Object) {
		for {
			ref, ok := o.(pdfdoc.Ref)
			if !ok || visited[ref] {
				return
			}
			visited[ref] = true
			d, ok := doc.ResolveDict(ref)
			if !ok {
				return
			}
			walk(d["First"])
			doc.Delete(ref)
			o = d["Next"]
		}
	}
	if root, ok := doc.ResolveDict(rootRef); ok {
		walk(root["First"])
	}
	doc.Delete(rootRef)
	delete(cat, "Outlines")
}

// ExtractOutline reads the outline tree as bookmark nodes. Page numbers are resolved through
// explicit destinations, GoTo actions and named destinations.
func ExtractOutline(doc *pdfdoc.Document) ([]*models.BookmarkNode, error) {
	cat, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	root, ok := doc.ResolveDict(cat["Outlines"])
	if !ok {
		return nil, nil
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	index := PageIndex(pages)
	visited := make(map[pdfdoc.Ref]bool)
	var walk func(o pdfdoc.Object, level int) []*models.BookmarkNode
	walk = func(o pdfdoc.Object, level int) []*models.BookmarkNode {
		var out []*models.BookmarkNode
		for !pdfdoc.IsNull(o) {
			if ref, ok := o.(pdfdoc.Ref); ok {
				if visited[ref] {
					break
				}
				visited[ref] = true
			}
			d, ok := doc.ResolveDict(o)
			if !ok {
				break
			}
			node := &models.BookmarkNode{
				Title: pdfdoc.DecodeText(doc.Resolve(d["Title"])),
				Level: level,
			}
			if count, ok := pdfdoc.Int(doc.Resolve(d["Count"])); ok && count < 0 {
				node.Closed = true
			}
			dest := d["Dest"]
			if pdfdoc.IsNull(dest) {
				if a, ok := doc.ResolveDict(d["A"]); ok && a.Name("S") == "GoTo" {
					dest = a["D"]
				}
			}
			if page := ResolveDestPage(doc, cat, dest, index); page > 0 {
				node.PageNumber = &page
			}
			node.Children = walk(d["First"], level+1)
			out = append(out, node)
			o = d["Next"]
		}
		return out
	}
	return walk(root["First"], 1), nil
}

// PageIndex maps page object references to 1-based page numbers.
func PageIndex(pages []pdfdoc.Page) map[pdfdoc.Ref]int {
	index := make(map[pdfdoc.Ref]int, len(pages))
	for _, p := range pages {
		if p.Ref.Num != 0 {
			index[p.Ref] = p.Number
		}
	}
	return index
}

// ResolveDestPage returns the 1-based page a destination points at, or 0.
func ResolveDestPage(doc *pdfdoc.Document, cat pdfdoc.Dict, dest pdfdoc.Object, index map[pdfdoc.Ref]int) int {
	return resolveDest(doc, cat, dest, index, 0)
}

func resolveDest(doc *pdfdoc.Document, cat pdfdoc.Dict, dest pdfdoc.Object, index map[pdfdoc.Ref]int, depth int) int {
	if depth > 8 {
		return 0
	}
	switch v := doc.Resolve(dest).(type) {
	case pdfdoc.Array:
		if len(v) == 0 {
			return 0
		}
		if ref, ok := v[0].(pdfdoc.Ref); ok {
			return index[ref]
		}
	case pdfdoc.Name:
		return resolveDest(doc, cat, lookupNamedDest(doc, cat, string(v)), index, depth+1)
	case pdfdoc.String, pdfdoc.HexString:
		name, _ := pdfdoc.Bytes(v)
		return resolveDest(doc, cat, lookupNamedDest(doc, cat, string(name)), index, depth+1)
	case pdfdoc.Dict:
		return resolveDest(doc, cat, v["D"], index, depth+1)
	}
	return 0
}

func lookupNamedDest(doc *pdfdoc.Document, cat pdfdoc.Dict, name string) pdfdoc.Object {
	if dests, ok := doc.ResolveDict(cat["Dests"]); ok {
		if d, ok := dests[pdfdoc.Name(name)]; ok {
			return d
		}
	}
	names, ok := doc.ResolveDict(cat["Names"])
	if !ok {
		return nil
	}
	return lookupNameTree(doc, names["Dests"], name, 0)
}

func lookupNameTree(doc *pdfdoc.Document, node pdfdoc.Object, name string, depth int) pdfdoc.Object {
	d, ok := doc.ResolveDict(node)
	if !ok || depth > 32 {
		return nil
	}
	if entries, ok := doc.ResolveArray(d["Names"]); ok {
		for i := 0; i+1 < len(entries); i += 2 {
			if key, _ := pdfdoc.Bytes(doc.Resolve(entries[i])); string(key) == name {
				return entries[i+1]
			}
		}
	}
	kids, _ := doc.ResolveArray(d["Kids"])
	for _, kid := range kids {
		if found := lookupNameTree(doc, kid, name, depth+1); found != nil {
			return found
		}
	}
	return nil
}
