package bookmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
)

func intPtr(v int) *int { return &v }

func chain(depth int) *models.BookmarkNode {
	root := &models.BookmarkNode{Title: "L1"}
	cur := root
	for i := 2; i <= depth; i++ {
		next := &models.BookmarkNode{Title: fmt.Sprintf("L%d", i)}
		cur.Children = []*models.BookmarkNode{next}
		cur = next
	}
	return root
}

func titles(nodes []*models.BookmarkNode) []string {
	var out []string
	walk(nodes, func(n *models.BookmarkNode) { out = append(out, n.Title) })
	return out
}

func TestEnforceMaxDepth(t *testing.T) {
	tree := []*models.BookmarkNode{
		chain(7),
		{Title: "B", Children: []*models.BookmarkNode{{Title: "B1"}}},
	}
	got := EnforceMaxDepth(tree, 4)

	assert.LessOrEqual(t, CalculateMaxDepth(got), 4)
	assert.Equal(t, CountBookmarks(tree), CountBookmarks(got))
	assert.Equal(t, titles(tree), titles(got))
	assert.Equal(t, 7, CalculateMaxDepth(tree), "input is not modified")

	level3 := got[0].Children[0].Children
	require.Len(t, level3, 1)
	assert.Equal(t, []string{"L4", "L5", "L6", "L7"}, titles(level3[0].Children))
	for _, n := range level3[0].Children {
		assert.Equal(t, 4, n.Level)
		assert.Empty(t, n.Children)
	}
}

func TestEnforceMaxDepth_Property(t *testing.T) {
	for depth := 1; depth <= 9; depth++ {
		for limit := 1; limit <= 5; limit++ {
			tree := []*models.BookmarkNode{chain(depth), chain(depth / 2)}
			got := EnforceMaxDepth(tree, limit)
			assert.LessOrEqual(t, CalculateMaxDepth(got), limit)
			assert.Equal(t, CountBookmarks(tree), CountBookmarks(got))
		}
	}
}

func TestBuildSectionBookmarks(t *testing.T) {
	files := []models.PackageFile{
		{NodeCode: "16.2", NodeTitle: "Patient Data Listings"},
		{NodeCode: "16.1.1", NodeTitle: "Protocol"},
		{NodeCode: "16.10", NodeTitle: "Other"},
	}
	got := BuildSectionBookmarks(files)
	require.Len(t, got, 1)
	assert.Equal(t, "Section 16", got[0].Title)
	assert.Equal(t, []string{"Section 16", "Section 16.1", "16.1.1 - Protocol", "16.2 - Patient Data Listings", "16.10 - Other"}, titles(got))
	assert.Equal(t, 3, got[0].Children[0].Children[0].Level)
}

func writeOutlinedPDF(t *testing.T, path string, outline []*models.BookmarkNode) {
	t.Helper()
	doc := pdfdoc.New("1.7")
	for i := 0; i < 3; i++ {
		_, err := doc.AppendPage(pdfdoc.Dict{})
		require.NoError(t, err)
	}
	if outline != nil {
		require.True(t, pdfedit.InjectBookmarks(doc, outline).Success)
	}
	require.NoError(t, doc.Save(path))
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	csr := filepath.Join(dir, "csr.pdf")
	longTitle := strings.Repeat("x", 150)
	writeOutlinedPDF(t, csr, []*models.BookmarkNode{
		{Title: "Synopsis", PageNumber: intPtr(1), Children: []*models.BookmarkNode{
			{Title: longTitle, PageNumber: intPtr(2), Children: []*models.BookmarkNode{
				{Title: "Deep", PageNumber: intPtr(3)},
			}},
		}},
	})
	protocol := filepath.Join(dir, "protocol.pdf")
	writeOutlinedPDF(t, protocol, nil)

	manifest := &models.PackageManifest{Files: []models.PackageFile{
		{SourcePath: protocol, TargetPath: "m5/s/16-1-1/protocol.pdf", NodeCode: "16.1.1", NodeTitle: "Protocol"},
		{SourcePath: csr, TargetPath: "m5/s/16-1-2/csr.pdf", NodeCode: "16.1.2", NodeTitle: "CSR"},
		{SourcePath: filepath.Join(dir, "missing.pdf"), TargetPath: "m5/s/16-2/missing.pdf", NodeCode: "16.2", NodeTitle: "Listings"},
	}}

	m, err := NewBuilder().Build(context.Background(), manifest)
	require.NoError(t, err)

	// 16 > 16.1 > 16.1.2 > Synopsis > long > Deep is six deep before flattening.
	assert.Equal(t, 4, m.MaxDepth)
	assert.Equal(t, 8, m.TotalCount)
	require.Len(t, m.DocumentBookmarks, 3)
	assert.NotEmpty(t, m.DocumentBookmarks[2].Error)

	var truncated, flattened, failed bool
	for _, w := range m.Warnings {
		truncated = truncated || strings.Contains(w, "m5/s/16-1-2/csr.pdf: bookmark title truncated")
		flattened = flattened || strings.Contains(w, "depth 6 exceeds maximum 4")
		failed = failed || strings.Contains(w, "missing.pdf: bookmark extraction failed")
	}
	assert.True(t, truncated)
	assert.True(t, flattened)
	assert.True(t, failed)

	csrBookmarks := m.DocumentBookmarks[1].Bookmarks
	assert.Len(t, csrBookmarks[0].Children[0].Title, 120)
	assert.True(t, strings.HasSuffix(csrBookmarks[0].Children[0].Title, "..."))

	forFile := m.ForFile(manifest.Files[1], 4)
	require.Len(t, forFile, 1)
	assert.Equal(t, "16.1.2 - CSR", forFile[0].Title)
	assert.Equal(t, 4, CountBookmarks(forFile))
}
