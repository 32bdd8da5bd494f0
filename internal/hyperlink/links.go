// Package hyperlink extracts link annotations from package PDFs, classifies them and checks
// that their targets resolve.
package hyperlink

import (
	"fmt"
	"path"
	"strings"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
)

// ExtractLinksFromPDF reads every link annotation of the PDF at path.
func ExtractLinksFromPDF(path string) ([]models.ExtractedLink, error) {
	doc, err := pdfdoc.Open(path)
	if err != nil {
		return nil, err
	}
	return ExtractLinks(doc, path)
}

// ExtractLinks reads every link annotation of doc. GoTo actions and direct destinations are
// typed internal and GoToR/Launch actions cross-document; URI links are left for ClassifyLink.
func ExtractLinks(doc *pdfdoc.Document, sourceFile string) ([]models.ExtractedLink, error) {
	if doc.Encrypted() {
		return nil, pdfdoc.ErrEncrypted
	}
	cat, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	index := pdfedit.PageIndex(pages)
	var links []models.ExtractedLink
	for _, page := range pages {
		for _, annot := range pdfedit.LinkAnnotations(doc, page) {
			t := pdfedit.ReadLinkTarget(doc, cat, annot, index)
			link := models.ExtractedLink{
				SourceFile:        sourceFile,
				PageNumber:        page.Number,
				TargetDestination: t.Destination,
				LinkType:          models.LinkUnknown,
			}
			if t.Rect != nil {
				link.Rect = &models.Rect{LLX: t.Rect[0], LLY: t.Rect[1], URX: t.Rect[2], URY: t.Rect[3]}
			}
			if t.Page > 0 {
				p := t.Page
				link.TargetPage = &p
			}
			switch t.Kind {
			case "URI":
				link.TargetURI = t.URI
			case "GoTo", "Dest":
				link.LinkType = models.LinkInternal
			case "GoToR", "Launch":
				link.TargetURI = t.File
				link.LinkType = models.LinkCrossDocument
			}
			links = append(links, link)
		}
	}
	return links, nil
}

// ClassifyLink decides a link's type. Links already typed internal or cross-document keep
// their type. URI schemes come next, then file-like or relative targets, then page or named
// destinations. A file-like target naming currentFile itself counts as internal.
func ClassifyLink(link models.ExtractedLink, currentFile string) models.LinkType {
	if link.LinkType == models.LinkInternal || link.LinkType == models.LinkCrossDocument {
		return link.LinkType
	}
	uri := strings.ToLower(strings.TrimSpace(link.TargetURI))
	if uri != "" {
		switch {
		case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"),
			strings.HasPrefix(uri, "mailto:"), strings.HasPrefix(uri, "ftp://"):
			return models.LinkExternal
		case strings.HasPrefix(uri, "javascript:"):
			return models.LinkUnknown
		}
		file, _, _ := strings.Cut(naming.ToSlash(uri), "#")
		fileLike := strings.HasSuffix(file, ".pdf") || strings.Contains(uri, ".pdf#")
		relative := strings.HasPrefix(file, "../") || strings.HasPrefix(file, "./") || (file != "" && !hasScheme(uri))
		if fileLike || relative {
			if currentFile != "" && strings.EqualFold(path.Base(file), path.Base(naming.ToSlash(currentFile))) {
				return models.LinkInternal
			}
			return models.LinkCrossDocument
		}
	}
	if link.TargetPage != nil || link.TargetDestination != "" {
		return models.LinkInternal
	}
	return models.LinkUnknown
}

func hasScheme(uri string) bool {
	colon := strings.Index(uri, ":")
	if colon <= 0 {
		return false
	}
	slash := strings.IndexAny(uri, "/\\")
	if slash >= 0 && slash < colon {
		return false
	}
	// a single letter before the colon is a drive letter
	return colon > 1
}

// ValidateInternalLink checks a page link against pageCount. Named destinations are accepted
// whenever the document has any destination dictionary or name tree; the name itself is not
// looked up.
func ValidateInternalLink(link models.ExtractedLink, pageCount int, hasNamedDests bool) models.LinkValidationResult {
	if link.TargetPage != nil {
		p := *link.TargetPage
		if p >= 1 && p <= pageCount {
			return models.LinkValidationResult{IsValid: true}
		}
		return models.LinkValidationResult{Error: fmt.Sprintf("target page %d outside 1-%d", p, pageCount)}
	}
	if link.TargetDestination != "" {
		if hasNamedDests {
			return models.LinkValidationResult{IsValid: true}
		}
		return models.LinkValidationResult{
			Error: fmt.Sprintf("named destination %q: document has no destinations", link.TargetDestination),
		}
	}
	return models.LinkValidationResult{Error: "link has no target page or destination"}
}

// HasNamedDestinations reports whether doc carries a legacy /Dests dictionary or a
// /Names /Dests name tree.
func HasNamedDestinations(doc *pdfdoc.Document) bool {
	cat, err := doc.Catalog()
	if err != nil {
		return false
	}
	if _, ok := doc.ResolveDict(cat["Dests"]); ok {
		return true
	}
	names, ok := doc.ResolveDict(cat["Names"])
	if !ok {
		return false
	}
	_, ok = doc.ResolveDict(names["Dests"])
	return ok
}

// ValidateCrossDocumentLink resolves a link against the package files. Matching tries, in
// order, a target-path suffix, a case-insensitive file name, a name overlap, and finally the
// target resolved relative to sourceTarget's directory. The first match wins.
func ValidateCrossDocumentLink(link models.ExtractedLink, sourceTarget string, files []models.PackageFile) models.LinkValidationResult {
	target := normalizeTarget(link.TargetURI)
	if target == "" {
		return models.LinkValidationResult{Error: "cross-document link has no file target"}
	}
	base := strings.ToLower(path.Base(target))
	stem := strings.TrimSuffix(base, path.Ext(base))

	for _, f := range files {
		if f.TargetPath == target || strings.HasSuffix(f.TargetPath, "/"+target) {
			return models.LinkValidationResult{IsValid: true, ResolvedPath: f.TargetPath}
		}
	}
	for _, f := range files {
		if strings.EqualFold(path.Base(f.TargetPath), base) || strings.EqualFold(f.FileName, base) {
			return models.LinkValidationResult{IsValid: true, ResolvedPath: f.TargetPath}
		}
	}
	if stem != "" {
		for _, f := range files {
			fb := strings.ToLower(path.Base(f.TargetPath))
			fstem := strings.TrimSuffix(fb, path.Ext(fb))
			if strings.Contains(strings.ToLower(f.TargetPath), stem) || (fstem != "" && strings.Contains(stem, fstem)) {
				return models.LinkValidationResult{IsValid: true, ResolvedPath: f.TargetPath}
			}
		}
	}
	if sourceTarget != "" {
		resolved := path.Join(path.Dir(naming.ToSlash(sourceTarget)), target)
		for _, f := range files {
			if f.TargetPath == resolved {
				return models.LinkValidationResult{IsValid: true, ResolvedPath: f.TargetPath}
			}
		}
	}
	return models.LinkValidationResult{Error: fmt.Sprintf("target %q not found in package", target)}
}

func normalizeTarget(uri string) string {
	file, _, _ := strings.Cut(strings.TrimSpace(uri), "#")
	file = strings.TrimPrefix(file, "file://")
	file = naming.ToSlash(file)
	for strings.HasPrefix(file, "./") {
		file = file[2:]
	}
	return file
}
