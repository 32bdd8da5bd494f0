// Package naming maps structure-node codes to eCTD folder paths and sanitizes file and
// directory names. All results are deterministic and use forward slashes.
package naming

import (
	"cmp"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/ectd/internal/hierarchy"
	"github.com/hyperjump/ectd/internal/models"
)

const (
	// ModulePrefix is the eCTD module every study document is filed under.
	ModulePrefix = "m5"
	// Placeholder replaces names that sanitize to nothing.
	Placeholder = "document"
	// MaxBaseNameLength bounds the base name of a sanitized file name.
	MaxBaseNameLength = 50

	maxExtensionLength = 10
)

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9\-_.]`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
	extDisallowed = regexp.MustCompile(`[^a-z0-9]`)
)

// CodeToFolderPath returns m5/{study}/{code with dots as dashes}.
func CodeToFolderPath(code, studyNumber string) string {
	codeSegment := SanitizePathComponent(strings.ReplaceAll(code, ".", "-"))
	return path.Join(ModulePrefix, SanitizePathComponent(studyNumber), codeSegment)
}

// SanitizePathComponent lowercases s, turns whitespace runs into single hyphens, strips every
// character outside [a-z0-9-_.], collapses repeated hyphens and trims hyphens at both ends.
func SanitizePathComponent(s string) string {
	out := sanitize(s)
	if out == "" {
		return Placeholder
	}
	return out
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SanitizeFileName sanitizes the base name like SanitizePathComponent, keeps the final
// extension, and truncates the base to MaxBaseNameLength without ending on a hyphen.
// The result matches ^[a-z0-9-_]+(\.[a-z0-9]+)?$.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	ext = extDisallowed.ReplaceAllString(strings.ToLower(ext), "")
	if len(ext) > maxExtensionLength {
		ext = ext[:maxExtensionLength]
	}

	base = sanitize(strings.ReplaceAll(base, ".", "-"))
	base = strings.Trim(hyphenRun.ReplaceAllString(base, "-"), "-")
	if len(base) > MaxBaseNameLength {
		base = strings.TrimRight(base[:MaxBaseNameLength], "-")
	}
	if base == "" {
		base = Placeholder
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// TargetPath joins the folder for code with the sanitized file name.
func TargetPath(code, studyNumber, fileName string) string {
	return path.Join(CodeToFolderPath(code, studyNumber), SanitizeFileName(fileName))
}

// ToSlash converts host separators to forward slashes, independent of the running OS.
func ToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// CompareCodes orders dotted codes numerically per segment: "16.2" sorts before "16.10".
// Numeric segments sort before non-numeric ones; a prefix sorts before its extensions.
func CompareCodes(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}

func compareSegment(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// SortCodes sorts codes in place with CompareCodes.
func SortCodes(codes []string) {
	slices.SortStableFunc(codes, CompareCodes)
}

// CodePrefixes returns every hierarchy prefix of code, shortest first: "16.2.1" yields
// "16", "16.2", "16.2.1".
func CodePrefixes(code string) []string {
	segments := strings.Split(code, ".")
	out := make([]string, 0, len(segments))
	for i := range segments {
		out = append(out, strings.Join(segments[:i+1], "."))
	}
	return out
}

// BuildFolderTree builds the directory tree of the target paths. Directories and file names
// are sorted lexically at every level, so the result does not depend on input order.
func BuildFolderTree(files []models.PackageFile) []*models.FolderNode {
	dirOf := func(f models.PackageFile) string {
		return path.Dir(ToSlash(f.TargetPath))
	}
	var nested []models.PackageFile
	for _, f := range files {
		if d := dirOf(f); d != "." && d != "/" {
			nested = append(nested, f)
		}
	}
	roots := hierarchy.ByPrefix(nested, dirOf, "/")
	hierarchy.Sort(roots, func(a, b *hierarchy.Node[models.PackageFile]) int {
		return strings.Compare(path.Base(a.Key), path.Base(b.Key))
	})
	return toFolderNodes(roots)
}

func toFolderNodes(nodes []*hierarchy.Node[models.PackageFile]) []*models.FolderNode {
	out := make([]*models.FolderNode, 0, len(nodes))
	for _, n := range nodes {
		fn := &models.FolderNode{
			Name:     path.Base(n.Key),
			Path:     n.Key,
			Children: toFolderNodes(n.Children),
			Files:    []string{},
		}
		for _, f := range n.Items {
			fn.Files = append(fn.Files, path.Base(ToSlash(f.TargetPath)))
		}
		slices.Sort(fn.Files)
		fn.Files = slices.Compact(fn.Files)
		out = append(out, fn)
	}
	return out
}
