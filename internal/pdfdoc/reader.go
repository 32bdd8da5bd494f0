package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
)

var objectHeader = regexp.MustCompile(`(?:^|[\s>\]])(\d{1,10})\s+(\d{1,5})\s+obj\b`)

type xrefEntry struct {
	compressed bool
	offset     int
	stream     int
	index      int
	gen        int
}

type parser struct {
	data     []byte
	entries  map[int]xrefEntry
	trailer  Dict
	objects  map[int]Object
	gens     map[int]int
	loading  map[int]bool
	objStms  map[int]map[int]Object
	rebuilt  bool
	warnings []string
}

// Open reads and parses the PDF at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Document from raw file bytes. Broken cross-reference data is rebuilt by
// scanning for object headers; objects that cannot be read are dropped and noted in Warnings.
func Parse(data []byte) (*Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	p := &parser{
		data:    data,
		entries: make(map[int]xrefEntry),
		objects: make(map[int]Object),
		gens:    make(map[int]int),
		loading: make(map[int]bool),
		objStms: make(map[int]map[int]Object),
	}
	if err := p.readXref(); err != nil {
		p.warn("cross-reference data unusable, rebuilding: %v", err)
		p.rebuild()
	}
	p.loadAll()
	if !p.hasCatalog() && !p.rebuilt {
		p.warn("catalog not reachable, rebuilding cross-reference data")
		p.rebuild()
		p.loadAll()
	}
	if !p.hasCatalog() {
		p.findCatalog()
	}

	doc := &Document{
		version:  version,
		objects:  make(map[int]Object, len(p.objects)),
		gens:     p.gens,
		trailer:  Dict{},
		Warnings: p.warnings,
	}
	for num, obj := range p.objects {
		doc.next = max(doc.next, num+1)
		if internalObject(obj) {
			continue
		}
		doc.objects[num] = obj
	}
	for _, key := range []Name{"Root", "Info", "ID", "Encrypt"} {
		if v, ok := p.trailer[key]; ok {
			doc.trailer[key] = v
		}
	}
	if _, err := doc.Catalog(); err != nil {
		return nil, err
	}
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	head := data[:min(len(data), 1024)]
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	start := idx + 5
	end := start
	for end < len(data) && (isDigit(data[end]) || data[end] == '.') {
		end++
	}
	if end == start {
		return "1.4", nil
	}
	return string(data[start:end]), nil
}

// internalObject reports objects that only describe the old file layout.
func internalObject(obj Object) bool {
	switch v := obj.(type) {
	case *Stream:
		t := v.Dict.Name("Type")
		return t == "XRef" || t == "ObjStm"
	case Dict:
		return v.Has("Linearized")
	}
	return false
}

func (p *parser) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func findStartXref(data []byte) (int, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	l := newLexer(data, idx+len("startxref"))
	off, err := l.expectInt()
	if err != nil {
		return 0, fmt.Errorf("startxref: %w", err)
	}
	return off, nil
}

func (p *parser) readXref() error {
	offset, err := findStartXref(p.data)
	if err != nil {
		return err
	}
	seen := make(map[int]bool)
	for {
		if seen[offset] {
			break
		}
		seen[offset] = true
		if offset < 0 || offset >= len(p.data) {
			return fmt.Errorf("xref offset %d out of range", offset)
		}
		trailer, err := p.readXrefSection(offset)
		if err != nil {
			return err
		}
		if p.trailer == nil {
			p.trailer = trailer
		}
		if stm, ok := Int(trailer["XRefStm"]); ok && !seen[stm] {
			seen[stm] = true
			if _, err := p.readXrefSection(stm); err != nil {
				p.warn("hybrid xref stream at %d: %v", stm, err)
			}
		}
		prev, ok := Int(trailer["Prev"])
		if !ok {
			break
		}
		offset = prev
	}
	if p.trailer == nil {
		return errors.New("no trailer")
	}
	return nil
}

func (p *parser) setEntry(num int, e xrefEntry) {
	if _, ok := p.entries[num]; !ok {
		p.entries[num] = e
	}
}

func (p *parser) readXrefSection(offset int) (Dict, error) {
	l := newLexer(p.data, offset)
	l.skipSpace()
	if bytes.HasPrefix(p.data[l.pos:], []byte("xref")) {
		l.pos += len("xref")
		return p.readXrefTable(l)
	}
	return p.readXrefStream(offset)
}

func (p *parser) readXrefTable(l *lexer) (Dict, error) {
	for {
		l.skipSpace()
		if bytes.HasPrefix(p.data[l.pos:], []byte("trailer")) {
			l.pos += len("trailer")
			obj, err := l.next()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			d, ok := obj.(Dict)
			if !ok {
				return nil, fmt.Errorf("trailer is %T", obj)
			}
			return d, nil
		}
		first, err := l.expectInt()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		count, err := l.expectInt()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		for i := 0; i < count; i++ {
			off, err := l.expectInt()
			if err != nil {
				return nil, fmt.Errorf("xref entry: %w", err)
			}
			gen, err := l.expectInt()
			if err != nil {
				return nil, fmt.Errorf("xref entry: %w", err)
			}
			kw, err := l.next()
			if err != nil {
				return nil, fmt.Errorf("xref entry: %w", err)
			}
			if kw == keyword("n") && off > 0 {
				p.setEntry(first+i, xrefEntry{offset: off, gen: gen})
			}
		}
	}
}

func (p *parser) readXrefStream(offset int) (Dict, error) {
	_, _, obj, err := p.parseIndirectAt(offset)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(*Stream)
	if !ok || s.Dict.Name("Type") != "XRef" {
		return nil, fmt.Errorf("no xref table or stream at %d", offset)
	}
	data, err := Decode(s)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	w, ok := s.Dict["W"].(Array)
	if !ok || len(w) != 3 {
		return nil, errors.New("xref stream: bad /W")
	}
	var widths [3]int
	for i := range widths {
		widths[i], _ = Int(w[i])
	}
	index, _ := s.Dict["Index"].(Array)
	if len(index) == 0 {
		size, _ := Int(s.Dict["Size"])
		index = Array{Integer(0), Integer(size)}
	}
	entrySize := widths[0] + widths[1] + widths[2]
	pos := 0
	field := func(n int) int {
		v := 0
		for k := 0; k < n; k++ {
			v = v<<8 | int(data[pos])
			pos++
		}
		return v
	}
	for i := 0; i+1 < len(index); i += 2 {
		first, _ := Int(index[i])
		count, _ := Int(index[i+1])
		for j := 0; j < count; j++ {
			if entrySize == 0 || pos+entrySize > len(data) {
				break
			}
			typ := 1
			if widths[0] > 0 {
				typ = field(widths[0])
			}
			f2 := field(widths[1])
			f3 := field(widths[2])
			switch typ {
			case 1:
				p.setEntry(first+j, xrefEntry{offset: f2, gen: f3})
			case 2:
				p.setEntry(first+j, xrefEntry{compressed: true, stream: f2, index: f3})
			}
		}
	}
	trailer := make(Dict, len(s.Dict))
	for k, v := range s.Dict {
		trailer[k] = v
	}
	return trailer, nil
}

// parseIndirectAt parses "num gen obj ... endobj" at offset.
func (p *parser) parseIndirectAt(offset int) (int, int, Object, error) {
	l := newLexer(p.data, offset)
	num, err := l.expectInt()
	if err != nil {
		return 0, 0, nil, err
	}
	gen, err := l.expectInt()
	if err != nil {
		return 0, 0, nil, err
	}
	if err := l.expectKeyword("obj"); err != nil {
		return 0, 0, nil, err
	}
	obj, err := l.next()
	if err != nil {
		return 0, 0, nil, err
	}
	if kw, ok := obj.(keyword); ok {
		if kw != "endobj" {
			return 0, 0, nil, fmt.Errorf("unexpected %q in object %d", string(kw), num)
		}
		obj = Null{}
	}
	if d, ok := obj.(Dict); ok {
		save := l.pos
		l.skipSpace()
		if bytes.HasPrefix(p.data[l.pos:], []byte("stream")) {
			l.pos += len("stream")
			if l.peek() == '\r' {
				l.pos++
			}
			if l.peek() == '\n' {
				l.pos++
			}
			obj = &Stream{Dict: d, Data: p.streamData(d, l.pos)}
		} else {
			l.pos = save
		}
	}
	return num, gen, obj, nil
}

func (p *parser) streamData(d Dict, start int) []byte {
	length := d["Length"]
	if r, ok := length.(Ref); ok {
		length = p.load(r.Num)
	}
	if n, ok := Int(length); ok && n >= 0 && start+n <= len(p.data) {
		rest := p.data[start+n:]
		tail := bytes.TrimLeft(rest[:min(len(rest), 32)], " \r\n\t\x00")
		if bytes.HasPrefix(tail, []byte("endstream")) {
			return p.data[start : start+n]
		}
	}
	end := bytes.Index(p.data[start:], []byte("endstream"))
	if end < 0 {
		return p.data[start:]
	}
	raw := p.data[start : start+end]
	switch {
	case bytes.HasSuffix(raw, []byte("\r\n")):
		raw = raw[:len(raw)-2]
	case bytes.HasSuffix(raw, []byte("\n")), bytes.HasSuffix(raw, []byte("\r")):
		raw = raw[:len(raw)-1]
	}
	return raw
}

func (p *parser) load(num int) Object {
	if obj, ok := p.objects[num]; ok {
		return obj
	}
	e, ok := p.entries[num]
	if !ok || p.loading[num] {
		return Null{}
	}
	p.loading[num] = true
	defer delete(p.loading, num)

	var obj Object
	var err error
	if e.compressed {
		obj, err = p.fromObjectStream(e.stream, num)
		p.gens[num] = 0
	} else {
		var n, gen int
		n, gen, obj, err = p.parseIndirectAt(e.offset)
		if err == nil && n != num {
			err = fmt.Errorf("offset %d holds object %d", e.offset, n)
		}
		p.gens[num] = gen
	}
	if err != nil {
		p.warn("object %d: %v", num, err)
		delete(p.gens, num)
		return Null{}
	}
	p.objects[num] = obj
	return obj
}

func (p *parser) fromObjectStream(stmNum, num int) (Object, error) {
	objs, ok := p.objStms[stmNum]
	if !ok {
		var err error
		objs, err = p.readObjectStream(stmNum)
		if err != nil {
			p.objStms[stmNum] = map[int]Object{}
			return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
		}
		p.objStms[stmNum] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("not found in object stream %d", stmNum)
	}
	return obj, nil
}

func (p *parser) readObjectStream(stmNum int) (map[int]Object, error) {
	s, ok := p.load(stmNum).(*Stream)
	if !ok {
		return nil, errors.New("not a stream")
	}
	return parseObjectStream(s)
}

func parseObjectStream(s *Stream) (map[int]Object, error) {
	data, err := Decode(s)
	if err != nil {
		return nil, err
	}
	n, _ := Int(s.Dict["N"])
	first, _ := Int(s.Dict["First"])
	l := newLexer(data, 0)
	type pair struct{ num, off int }
	pairs := make([]pair, 0, n)
	for i := 0; i < n; i++ {
		num, err := l.expectInt()
		if err != nil {
			return nil, err
		}
		off, err := l.expectInt()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{num, off})
	}
	objs := make(map[int]Object, len(pairs))
	for _, pr := range pairs {
		if first+pr.off >= len(data) {
			continue
		}
		obj, err := newLexer(data, first+pr.off).next()
		if err != nil {
			continue
		}
		if _, isKw := obj.(keyword); isKw {
			continue
		}
		objs[pr.num] = obj
	}
	return objs, nil
}

func (p *parser) loadAll() {
	nums := make([]int, 0, len(p.entries))
	for n := range p.entries {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	for _, n := range nums {
		p.load(n)
	}
	if !p.rebuilt {
		return
	}
	// object streams found by scanning carry objects the scan cannot see
	for _, n := range nums {
		s, ok := p.objects[n].(*Stream)
		if !ok || s.Dict.Name("Type") != "ObjStm" {
			continue
		}
		objs, err := parseObjectStream(s)
		if err != nil {
			p.warn("object stream %d: %v", n, err)
			continue
		}
		for num, obj := range objs {
			if _, exists := p.objects[num]; !exists {
				p.objects[num] = obj
				p.gens[num] = 0
			}
		}
	}
}

// rebuild replaces the cross-reference entries with offsets found by scanning the file.
func (p *parser) rebuild() {
	p.rebuilt = true
	p.entries = make(map[int]xrefEntry)
	p.objects = make(map[int]Object)
	p.gens = make(map[int]int)
	p.objStms = make(map[int]map[int]Object)
	for _, m := range objectHeader.FindAllSubmatchIndex(p.data, -1) {
		num, err := strconv.Atoi(string(p.data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		gen, _ := strconv.Atoi(string(p.data[m[4]:m[5]]))
		p.entries[num] = xrefEntry{offset: m[2], gen: gen}
	}
	if p.trailer != nil && p.trailer.Has("Root") {
		return
	}
	if idx := bytes.LastIndex(p.data, []byte("trailer")); idx >= 0 {
		if obj, err := newLexer(p.data, idx+len("trailer")).next(); err == nil {
			if d, ok := obj.(Dict); ok {
				p.trailer = d
			}
		}
	}
}

func (p *parser) hasCatalog() bool {
	if p.trailer == nil {
		return false
	}
	r, ok := p.trailer["Root"].(Ref)
	if !ok {
		return false
	}
	_, ok = p.objects[r.Num].(Dict)
	return ok
}

func (p *parser) findCatalog() {
	nums := make([]int, 0, len(p.objects))
	for n := range p.objects {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	for _, n := range nums {
		if d, ok := p.objects[n].(Dict); ok && d.Name("Type") == "Catalog" {
			if p.trailer == nil {
				p.trailer = Dict{}
			}
			p.trailer["Root"] = Ref{Num: n, Gen: p.gens[n]}
			p.warn("using object %d as catalog", n)
			return
		}
	}
}
