package pdfdoc

import (
	"fmt"
	"slices"
)

const maxRefChain = 32

// Document is an in-memory PDF object graph.
type Document struct {
	version string
	objects map[int]Object
	gens    map[int]int
	trailer Dict
	// next is one past the highest object number ever stored.
	next int

	// Warnings collects recoverable problems met while parsing.
	Warnings []string
}

// New returns an empty document with a catalog and an empty page tree.
func New(version string) *Document {
	d := &Document{
		version: version,
		objects: make(map[int]Object),
		gens:    make(map[int]int),
		trailer: Dict{},
	}
	pages := d.Add(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Integer(0)})
	root := d.Add(Dict{"Type": Name("Catalog"), "Pages": pages})
	d.trailer["Root"] = root
	return d
}

// Version returns the effective PDF version: the header version, raised by a catalog
// /Version entry when that is newer.
func (d *Document) Version() string {
	v := d.version
	if cat, err := d.Catalog(); err == nil {
		if cv := string(cat.Name("Version")); cv != "" && cv > v {
			v = cv
		}
	}
	return v
}

// Trailer returns the trailer dictionary.
func (d *Document) Trailer() Dict {
	return d.trailer
}

// Encrypted reports whether the trailer references an encryption dictionary.
func (d *Document) Encrypted() bool {
	return d.trailer.Has("Encrypt")
}

// Get returns the object stored under r, or Null when absent.
func (d *Document) Get(r Ref) Object {
	if o, ok := d.objects[r.Num]; ok {
		return o
	}
	return Null{}
}

// Set stores o as object r, replacing any previous value.
func (d *Document) Set(r Ref, o Object) {
	d.objects[r.Num] = o
	d.gens[r.Num] = r.Gen
	if r.Num >= d.next {
		d.next = r.Num + 1
	}
}

// Add stores o under the next unused object number. Numbers of deleted objects are not
// reused.
func (d *Document) Add(o Object) Ref {
	r := Ref{Num: max(d.next, 1)}
	d.Set(r, o)
	return r
}

// Delete removes object r.
func (d *Document) Delete(r Ref) {
	delete(d.objects, r.Num)
	delete(d.gens, r.Num)
}

// Len returns the number of stored objects.
func (d *Document) Len() int {
	return len(d.objects)
}

// ObjectNumbers returns the stored object numbers in ascending order.
func (d *Document) ObjectNumbers() []int {
	nums := make([]int, 0, len(d.objects))
	for n := range d.objects {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxRefChain; i++ {
		r, ok := o.(Ref)
		if !ok {
			return o
		}
		o = d.Get(r)
	}
	return Null{}
}

// ResolveDict resolves o and returns it as a dictionary. A stream yields its dictionary.
func (d *Document) ResolveDict(o Object) (Dict, bool) {
	switch v := d.Resolve(o).(type) {
	case Dict:
		return v, true
	case *Stream:
		return v.Dict, true
	}
	return nil, false
}

// ResolveArray resolves o and returns it as an array.
func (d *Document) ResolveArray(o Object) (Array, bool) {
	a, ok := d.Resolve(o).(Array)
	return a, ok
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (Dict, error) {
	root, ok := d.ResolveDict(d.trailer["Root"])
	if !ok {
		return nil, ErrNoCatalog
	}
	return root, nil
}

// SetInfo replaces the document information dictionary.
func (d *Document) SetInfo(info Dict) {
	if r, ok := d.trailer["Info"].(Ref); ok {
		d.Set(r, info)
		return
	}
	d.trailer["Info"] = d.Add(info)
}

func (d *Document) warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}
