package pdfdoc

import "fmt"

const maxPageTreeDepth = 64

// Letter is the US Letter media box used when a page tree declares none.
var Letter = [4]float64{0, 0, 612, 792}

// Page is one leaf of the page tree.
type Page struct {
	Number   int
	Ref      Ref
	Dict     Dict
	MediaBox [4]float64
}

// Width returns the media box width.
func (p Page) Width() float64 { return p.MediaBox[2] - p.MediaBox[0] }

// Height returns the media box height.
func (p Page) Height() float64 { return p.MediaBox[3] - p.MediaBox[1] }

// Pages walks the page tree in document order. MediaBox is inherited from ancestors.
func (d *Document) Pages() ([]Page, error) {
	cat, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	var pages []Page
	visited := make(map[Ref]bool)
	var walk func(node Object, box [4]float64, depth int)
	walk = func(node Object, box [4]float64, depth int) {
		if depth > maxPageTreeDepth {
			return
		}
		ref, isRef := node.(Ref)
		if isRef {
			if visited[ref] {
				return
			}
			visited[ref] = true
		}
		dict, ok := d.ResolveDict(node)
		if !ok {
			return
		}
		if b, ok := RectOf(d.Resolve(dict["MediaBox"])); ok {
			box = b
		}
		kids, hasKids := d.ResolveArray(dict["Kids"])
		typ := dict.Name("Type")
		if typ == "Pages" || (typ != "Page" && hasKids) {
			for _, k := range kids {
				walk(k, box, depth+1)
			}
			return
		}
		pages = append(pages, Page{Number: len(pages) + 1, Ref: ref, Dict: dict, MediaBox: box})
	}
	walk(cat["Pages"], Letter, 0)
	return pages, nil
}

// PageCount returns the number of leaf pages, or 0 when the tree is unreadable.
func (d *Document) PageCount() int {
	pages, err := d.Pages()
	if err != nil {
		return 0
	}
	return len(pages)
}

// AppendPage adds page as the last kid of the root page tree node.
func (d *Document) AppendPage(page Dict) (Ref, error) {
	cat, err := d.Catalog()
	if err != nil {
		return Ref{}, err
	}
	pagesRef, ok := cat["Pages"].(Ref)
	if !ok {
		return Ref{}, fmt.Errorf("catalog /Pages is %T, not a reference", cat["Pages"])
	}
	root, ok := d.ResolveDict(pagesRef)
	if !ok {
		return Ref{}, fmt.Errorf("page tree root %s is not a dictionary", pagesRef)
	}
	page["Type"] = Name("Page")
	page["Parent"] = pagesRef
	ref := d.Add(page)
	kids, _ := d.ResolveArray(root["Kids"])
	root["Kids"] = append(kids, ref)
	count, _ := Int(d.Resolve(root["Count"]))
	root["Count"] = Integer(count + 1)
	return ref, nil
}

// RectOf reads a four-number array as a normalized rectangle.
func RectOf(o Object) ([4]float64, bool) {
	a, ok := o.(Array)
	if !ok || len(a) != 4 {
		return [4]float64{}, false
	}
	var v [4]float64
	for i := range v {
		f, ok := Number(a[i])
		if !ok {
			return [4]float64{}, false
		}
		v[i] = f
	}
	return [4]float64{min(v[0], v[2]), min(v[1], v[3]), max(v[0], v[2]), max(v[1], v[3])}, true
}

// NewRect builds a rectangle array.
func NewRect(llx, lly, urx, ury float64) Array {
	return Array{Real(llx), Real(lly), Real(urx), Real(ury)}
}
