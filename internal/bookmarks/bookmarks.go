// Package bookmarks derives the package bookmark tree from structure-node codes and merges in
// the outlines already present in each source PDF.
package bookmarks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/hierarchy"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
	"github.com/hyperjump/ectd/pkg/utils"
)

const (
	DefaultMaxDepth       = 4
	DefaultMaxTitleLength = 120
)

// DocumentBookmarks holds the outline extracted from one manifest file.
type DocumentBookmarks struct {
	SourceFile string                 `json:"source_file"`
	TargetPath string                 `json:"target_path"`
	NodeCode   string                 `json:"node_code"`
	Bookmarks  []*models.BookmarkNode `json:"bookmarks"`
	Error      string                 `json:"error,omitempty"`
}

// Manifest is the merged bookmark tree of a package.
type Manifest struct {
	GeneratedAt       time.Time              `json:"generated_at"`
	RootBookmarks     []*models.BookmarkNode `json:"root_bookmarks"`
	DocumentBookmarks []DocumentBookmarks    `json:"document_bookmarks"`
	TotalCount        int                    `json:"total_count"`
	MaxDepth          int                    `json:"max_depth"`
	Warnings          []string               `json:"warnings,omitempty"`
}

// Builder builds bookmark manifests.
type Builder struct {
	logger         *zap.Logger
	maxDepth       int
	maxTitleLength int
	resolve        func(models.PackageFile) string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMaxDepth sets the deepest allowed level. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		if n >= 1 {
			b.maxDepth = n
		}
	}
}

// WithMaxTitleLength sets the title length beyond which titles are truncated.
func WithMaxTitleLength(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxTitleLength = n
		}
	}
}

// WithSourceResolver maps a package file to the PDF whose outline is read. The default is the
// file's SourcePath.
func WithSourceResolver(fn func(models.PackageFile) string) Option {
	return func(b *Builder) { b.resolve = fn }
}

// NewBuilder creates a Builder with the default depth and title limits.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		logger:         zap.NewNop(),
		maxDepth:       DefaultMaxDepth,
		maxTitleLength: DefaultMaxTitleLength,
		resolve:        func(f models.PackageFile) string { return f.SourcePath },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// MaxDepth returns the configured depth limit.
func (b *Builder) MaxDepth() int { return b.maxDepth }

// SectionTitle is the bookmark title of a section code.
func SectionTitle(code, title string) string {
	if title == "" {
		return "Section " + code
	}
	return code + " - " + title
}

// BuildSectionBookmarks returns one bookmark per distinct code prefix of the files, nested by
// code segments and sorted numerically. Prefixes no file maps to directly are titled
// "Section {code}".
func BuildSectionBookmarks(files []models.PackageFile) []*models.BookmarkNode {
	nodes, _ := sectionTree(files)
	return nodes
}

func sectionTree(files []models.PackageFile) ([]*models.BookmarkNode, map[string]*models.BookmarkNode) {
	tree := hierarchy.ByPrefix(files, func(f models.PackageFile) string { return f.NodeCode }, ".")
	hierarchy.Sort(tree, func(a, b *hierarchy.Node[models.PackageFile]) int {
		return naming.CompareCodes(a.Key, b.Key)
	})
	byCode := make(map[string]*models.BookmarkNode)
	var convert func(nodes []*hierarchy.Node[models.PackageFile], level int) []*models.BookmarkNode
	convert = func(nodes []*hierarchy.Node[models.PackageFile], level int) []*models.BookmarkNode {
		out := make([]*models.BookmarkNode, 0, len(nodes))
		for _, n := range nodes {
			bm := &models.BookmarkNode{Title: SectionTitle(n.Key, ""), Level: level}
			if !n.Synthetic() {
				bm.Title = SectionTitle(n.Key, n.Items[0].NodeTitle)
				bm.SourceFile = n.Items[0].TargetPath
			}
			bm.Children = convert(n.Children, level+1)
			byCode[n.Key] = bm
			out = append(out, bm)
		}
		return out
	}
	return convert(tree, 1), byCode
}

// Build assembles the full bookmark manifest for the manifest files. Extraction failures are
// recorded per file and do not stop the build.
func (b *Builder) Build(ctx context.Context, manifest *models.PackageManifest) (*Manifest, error) {
	out := &Manifest{GeneratedAt: time.Now().UTC()}
	roots, byCode := sectionTree(manifest.Files)
	walk(roots, func(n *models.BookmarkNode) {
		b.truncate(n, "section "+n.Title, &out.Warnings)
	})

	for _, f := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		db := DocumentBookmarks{SourceFile: f.SourcePath, TargetPath: f.TargetPath, NodeCode: f.NodeCode}
		extracted, err := b.extract(f)
		if err != nil {
			db.Error = err.Error()
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: bookmark extraction failed: %v", f.TargetPath, err))
			b.logger.Warn("Bookmark extraction failed", zap.String("path", f.TargetPath), zap.Error(err))
		}
		walk(extracted, func(n *models.BookmarkNode) {
			n.SourceFile = f.TargetPath
			b.truncate(n, f.TargetPath, &out.Warnings)
		})
		db.Bookmarks = extracted
		out.DocumentBookmarks = append(out.DocumentBookmarks, db)

		if section, ok := byCode[f.NodeCode]; ok && len(extracted) > 0 {
			section.Children = append(section.Children, cloneAll(extracted)...)
		}
	}

	if depth := CalculateMaxDepth(roots); depth > b.maxDepth {
		roots = EnforceMaxDepth(roots, b.maxDepth)
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("bookmark depth %d exceeds maximum %d, flattened to %d", depth, b.maxDepth, CalculateMaxDepth(roots)))
	}
	setLevels(roots, 1)
	out.RootBookmarks = roots
	out.TotalCount = CountBookmarks(roots)
	out.MaxDepth = CalculateMaxDepth(roots)
	return out, nil
}

func (b *Builder) extract(f models.PackageFile) ([]*models.BookmarkNode, error) {
	doc, err := pdfdoc.Open(b.resolve(f))
	if err != nil {
		return nil, err
	}
	if doc.Encrypted() {
		return nil, pdfdoc.ErrEncrypted
	}
	return pdfedit.ExtractOutline(doc)
}

func (b *Builder) truncate(n *models.BookmarkNode, source string, warnings *[]string) {
	if !utils.IsTruncated(n.Title, b.maxTitleLength) {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf("%s: bookmark title truncated to %d characters: %q",
		source, b.maxTitleLength, n.Title))
	n.Title = utils.Truncate(n.Title, b.maxTitleLength)
}

// ForFile returns the outline injected into one package PDF: a single root titled after the
// file's section, holding the file's own bookmarks, limited to the configured depth.
func (m *Manifest) ForFile(f models.PackageFile, maxDepth int) []*models.BookmarkNode {
	one := 1
	root := &models.BookmarkNode{
		Title:      SectionTitle(f.NodeCode, f.NodeTitle),
		PageNumber: &one,
		SourceFile: f.TargetPath,
	}
	for _, db := range m.DocumentBookmarks {
		if db.TargetPath == f.TargetPath {
			root.Children = cloneAll(db.Bookmarks)
			break
		}
	}
	out := EnforceMaxDepth([]*models.BookmarkNode{root}, maxDepth)
	setLevels(out, 1)
	return out
}
