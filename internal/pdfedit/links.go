package pdfedit

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/pdfdoc"
)

// LinkAction is what ProcessHyperlinks did with one link annotation.
type LinkAction string

const (
	ActionKeep   LinkAction = "keep"
	ActionUpdate LinkAction = "update"
	ActionRemove LinkAction = "remove"
)

// LinkTarget is the decoded action or destination of a link annotation.
type LinkTarget struct {
	// Kind is the action subtype (URI, GoTo, GoToR, Launch, ...), "Dest" for a direct
	// destination, or "" when the annotation carries neither.
	Kind        string
	URI         string
	File        string
	Destination string
	Page        int
	Rect        *[4]float64
}

// LinkOptions controls ProcessHyperlinks.
type LinkOptions struct {
	// PathMap rewrites file references, matched by exact path and then by base name.
	PathMap map[string]string
	// BasePath relativizes absolute file references that PathMap does not cover.
	BasePath       string
	RemoveExternal bool
	RemoveMailto   bool
}

// ProcessedLink records the handling of one link annotation.
type ProcessedLink struct {
	Page     int        `json:"page"`
	Kind     string     `json:"kind"`
	Original string     `json:"original,omitempty"`
	Updated  string     `json:"updated,omitempty"`
	Action   LinkAction `json:"action"`
	Reason   string     `json:"reason"`
}

// LinkResult aggregates one ProcessHyperlinks run. Updated, removed and kept counts always
// add up to TotalLinks.
type LinkResult struct {
	TotalLinks   int             `json:"total_links"`
	UpdatedCount int             `json:"updated_count"`
	RemovedCount int             `json:"removed_count"`
	KeptCount    int             `json:"kept_count"`
	Links        []ProcessedLink `json:"links"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// IsExternalURI reports web, FTP and mail targets.
func IsExternalURI(uri string) bool {
	u := strings.ToLower(strings.TrimSpace(uri))
	for _, prefix := range []string{"http://", "https://", "ftp://", "mailto:"} {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// LinkAnnotations returns the link annotations of a page.
func LinkAnnotations(doc *pdfdoc.Document, page pdfdoc.Page) []pdfdoc.Dict {
	annots, _ := doc.ResolveArray(page.Dict["Annots"])
	var out []pdfdoc.Dict
	for _, a := range annots {
		d, ok := doc.ResolveDict(a)
		if ok && d.Name("Subtype") == "Link" {
			out = append(out, d)
		}
	}
	return out
}

// ReadLinkTarget decodes the action or destination of a link annotation.
func ReadLinkTarget(doc *pdfdoc.Document, cat pdfdoc.Dict, annot pdfdoc.Dict, index map[pdfdoc.Ref]int) LinkTarget {
	var t LinkTarget
	if r, ok := pdfdoc.RectOf(doc.Resolve(annot["Rect"])); ok {
		t.Rect = &r
	}
	if action, ok := doc.ResolveDict(annot["A"]); ok {
		t.Kind = string(action.Name("S"))
		switch t.Kind {
		case "URI":
			b, _ := pdfdoc.Bytes(doc.Resolve(action["URI"]))
			t.URI = string(b)
		case "GoTo":
			readDest(doc, cat, action["D"], index, &t)
		case "GoToR", "Launch":
			t.File = fileSpec(doc, action["F"])
			if t.Kind == "Launch" && t.File == "" {
				if win, ok := doc.ResolveDict(action["Win"]); ok {
					b, _ := pdfdoc.Bytes(doc.Resolve(win["F"]))
					t.File = string(b)
				}
			}
			switch d := doc.Resolve(action["D"]).(type) {
			case pdfdoc.Array:
				if len(d) > 0 {
					if n, ok := pdfdoc.Int(d[0]); ok {
						t.Page = n + 1
					}
				}
			case pdfdoc.Name:
				t.Destination = string(d)
			case pdfdoc.String, pdfdoc.HexString:
				b, _ := pdfdoc.Bytes(d)
				t.Destination = string(b)
			}
		}
		return t
	}
	if !pdfdoc.IsNull(annot["Dest"]) {
		t.Kind = "Dest"
		readDest(doc, cat, annot["Dest"], index, &t)
	}
	return t
}

func readDest(doc *pdfdoc.Document, cat pdfdoc.Dict, dest pdfdoc.Object, index map[pdfdoc.Ref]int, t *LinkTarget) {
	switch v := doc.Resolve(dest).(type) {
	case pdfdoc.Name:
		t.Destination = string(v)
	case pdfdoc.String, pdfdoc.HexString:
		b, _ := pdfdoc.Bytes(v)
		t.Destination = string(b)
	}
	t.Page = ResolveDestPage(doc, cat, dest, index)
}

func fileSpec(doc *pdfdoc.Document, o pdfdoc.Object) string {
	switch v := doc.Resolve(o).(type) {
	case pdfdoc.String, pdfdoc.HexString:
		b, _ := pdfdoc.Bytes(v)
		return string(b)
	case pdfdoc.Dict:
		for _, key := range []pdfdoc.Name{"UF", "F", "Unix", "DOS"} {
			if s := pdfdoc.DecodeText(doc.Resolve(v[key])); s != "" {
				return s
			}
		}
	}
	return ""
}

func setFileSpec(doc *pdfdoc.Document, action pdfdoc.Dict, value string) {
	if spec, ok := doc.ResolveDict(action["F"]); ok {
		spec["F"] = pdfdoc.String(value)
		if spec.Has("UF") {
			spec["UF"] = pdfdoc.EncodeText(value)
		}
		delete(spec, "Unix")
		delete(spec, "DOS")
		return
	}
	action["F"] = pdfdoc.String(value)
}

// ProcessHyperlinks visits every link annotation, rewriting file references through
// opts and removing external links when asked. A failure on one annotation keeps it unchanged
// and is reported as a warning.
func ProcessHyperlinks(doc *pdfdoc.Document, opts LinkOptions) LinkResult {
	res := LinkResult{}
	pages, err := doc.Pages()
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		return res
	}
	for _, page := range pages {
		annots, ok := doc.ResolveArray(page.Dict["Annots"])
		if !ok {
			continue
		}
		kept := make(pdfdoc.Array, 0, len(annots))
		removed := false
		for _, a := range annots {
			d, ok := doc.ResolveDict(a)
			if !ok || d.Name("Subtype") != "Link" {
				kept = append(kept, a)
				continue
			}
			link, err := processLink(doc, d, opts)
			link.Page = page.Number
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", page.Number, err))
				link.Action = ActionKeep
				link.Reason = "could not process: " + err.Error()
			}
			res.TotalLinks++
			switch link.Action {
			case ActionRemove:
				res.RemovedCount++
				removed = true
				if ref, ok := a.(pdfdoc.Ref); ok {
					doc.Delete(ref)
				}
			case ActionUpdate:
				res.UpdatedCount++
				kept = append(kept, a)
			default:
				res.KeptCount++
				kept = append(kept, a)
			}
			res.Links = append(res.Links, link)
		}
		if removed {
			page.Dict["Annots"] = kept
		}
	}
	return res
}

func processLink(doc *pdfdoc.Document, annot pdfdoc.Dict, opts LinkOptions) (link ProcessedLink, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed link annotation: %v", r)
		}
	}()
	action, ok := doc.ResolveDict(annot["A"])
	if !ok {
		if !pdfdoc.IsNull(annot["Dest"]) {
			return ProcessedLink{Kind: "Dest", Action: ActionKeep, Reason: "internal destination"}, nil
		}
		return ProcessedLink{Action: ActionKeep, Reason: "no action"}, nil
	}
	kind := string(action.Name("S"))
	link = ProcessedLink{Kind: kind, Action: ActionKeep}
	switch kind {
	case "URI":
		b, _ := pdfdoc.Bytes(doc.Resolve(action["URI"]))
		uri := string(b)
		link.Original = uri
		lower := strings.ToLower(strings.TrimSpace(uri))
		switch {
		case strings.HasPrefix(lower, "mailto:"):
			if opts.RemoveMailto {
				link.Action, link.Reason = ActionRemove, "mailto link removed"
			} else {
				link.Reason = "mailto link flagged"
			}
		case IsExternalURI(uri):
			if opts.RemoveExternal {
				link.Action, link.Reason = ActionRemove, "external link removed"
			} else {
				link.Reason = "external link flagged"
			}
		default:
			if updated, reason, changed := RewriteTarget(uri, opts); changed {
				action["URI"] = pdfdoc.String(updated)
				link.Updated, link.Action, link.Reason = updated, ActionUpdate, reason
			} else {
				link.Reason = reason
			}
		}
	case "GoToR", "Launch":
		file := fileSpec(doc, action["F"])
		link.Original = file
		if file == "" {
			link.Reason = "no file specification"
			return link, nil
		}
		if updated, reason, changed := RewriteTarget(file, opts); changed {
			setFileSpec(doc, action, updated)
			link.Updated, link.Action, link.Reason = updated, ActionUpdate, reason
		} else {
			link.Reason = reason
		}
	case "GoTo":
		link.Reason = "internal destination"
	default:
		link.Reason = fmt.Sprintf("%s action left unchanged", kind)
	}
	return link, nil
}

// RewriteTarget maps a file reference through opts. The fragment after '#' is preserved.
func RewriteTarget(target string, opts LinkOptions) (string, string, bool) {
	file, frag, hasFrag := strings.Cut(target, "#")
	file = strings.TrimPrefix(file, "file://")
	slashed := naming.ToSlash(file)

	join := func(p string) string {
		if hasFrag {
			return p + "#" + frag
		}
		return p
	}

	if mapped, ok := opts.PathMap[file]; ok {
		return finish(target, join(mapped), "mapped by path")
	}
	if mapped, ok := opts.PathMap[slashed]; ok {
		return finish(target, join(mapped), "mapped by path")
	}
	base := path.Base(slashed)
	keys := make([]string, 0, len(opts.PathMap))
	for k := range opts.PathMap {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.EqualFold(path.Base(naming.ToSlash(k)), base) {
			return finish(target, join(opts.PathMap[k]), "mapped by file name")
		}
	}
	if opts.BasePath != "" && (filepath.IsAbs(file) || strings.HasPrefix(slashed, "/")) {
		rel, err := filepath.Rel(opts.BasePath, filepath.FromSlash(slashed))
		if err == nil {
			return finish(target, join(naming.ToSlash(rel)), "relativized against base path")
		}
	}
	return target, "no mapping for target", false
}

func finish(original, updated, reason string) (string, string, bool) {
	if updated == original {
		return original, "already package-relative", false
	}
	return updated, reason, true
}
