package hyperlink

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/pdfdoc"
)

func intPtr(v int) *int { return &v }

// writeLinkedPDF writes a two-page PDF whose first page carries one link per action.
func writeLinkedPDF(t *testing.T, path string, actions ...pdfdoc.Dict) {
	t.Helper()
	doc := pdfdoc.New("1.7")
	var refs []pdfdoc.Ref
	for i := 0; i < 2; i++ {
		ref, err := doc.AppendPage(pdfdoc.Dict{"MediaBox": pdfdoc.NewRect(0, 0, 612, 792)})
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	page, _ := doc.ResolveDict(refs[0])
	annots := pdfdoc.Array{}
	for _, a := range actions {
		if d, ok := a["D"].(pdfdoc.Array); ok && len(d) > 0 {
			if n, ok := d[0].(pdfdoc.Integer); ok && a.Name("S") == "GoTo" {
				d[0] = refs[int(n)]
			}
		}
		annots = append(annots, doc.Add(pdfdoc.Dict{
			"Type":    pdfdoc.Name("Annot"),
			"Subtype": pdfdoc.Name("Link"),
			"Rect":    pdfdoc.NewRect(72, 700, 300, 712),
			"A":       a,
		}))
	}
	page["Annots"] = annots
	require.NoError(t, doc.Save(path))
}

func uri(s string) pdfdoc.Dict {
	return pdfdoc.Dict{"S": pdfdoc.Name("URI"), "URI": pdfdoc.String(s)}
}

func TestClassifyLink(t *testing.T) {
	tests := []struct {
		name string
		link models.ExtractedLink
		want models.LinkType
	}{
		{"https", models.ExtractedLink{TargetURI: "https://fda.gov"}, models.LinkExternal},
		{"mailto", models.ExtractedLink{TargetURI: "mailto:a@b.c"}, models.LinkExternal},
		{"ftp", models.ExtractedLink{TargetURI: "ftp://host/x"}, models.LinkExternal},
		{"javascript", models.ExtractedLink{TargetURI: "javascript:void(0)"}, models.LinkUnknown},
		{"pdf suffix", models.ExtractedLink{TargetURI: "other.pdf"}, models.LinkCrossDocument},
		{"pdf fragment", models.ExtractedLink{TargetURI: "other.PDF#page=2"}, models.LinkCrossDocument},
		{"relative", models.ExtractedLink{TargetURI: "../16-2/listing"}, models.LinkCrossDocument},
		{"self reference", models.ExtractedLink{TargetURI: "csr.pdf#page=2"}, models.LinkInternal},
		{"backslash self reference", models.ExtractedLink{TargetURI: `..\16-1\csr.pdf#page=2`}, models.LinkInternal},
		{"backslash relative", models.ExtractedLink{TargetURI: `..\16-2\listing`}, models.LinkCrossDocument},
		{"page", models.ExtractedLink{TargetPage: intPtr(2)}, models.LinkInternal},
		{"named", models.ExtractedLink{TargetDestination: "sec1"}, models.LinkInternal},
		{"pretyped", models.ExtractedLink{TargetURI: "https://x", LinkType: models.LinkCrossDocument}, models.LinkCrossDocument},
		{"nothing", models.ExtractedLink{}, models.LinkUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLink(tt.link, "m5/s1/16-1/csr.pdf"))
		})
	}
}

func TestValidateInternalLink(t *testing.T) {
	assert.True(t, ValidateInternalLink(models.ExtractedLink{TargetPage: intPtr(2)}, 2, false).IsValid)
	res := ValidateInternalLink(models.ExtractedLink{TargetPage: intPtr(3)}, 2, false)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, "outside 1-2")
	assert.True(t, ValidateInternalLink(models.ExtractedLink{TargetDestination: "x"}, 2, true).IsValid)
	assert.False(t, ValidateInternalLink(models.ExtractedLink{TargetDestination: "x"}, 2, false).IsValid)
}

func TestValidateCrossDocumentLink(t *testing.T) {
	files := []models.PackageFile{
		{TargetPath: "m5/s1/16-1/protocol.pdf", FileName: "protocol.pdf"},
		{TargetPath: "m5/s1/16-2/listing-a.pdf", FileName: "listing-a.pdf"},
	}
	src := "m5/s1/16-1/csr.pdf"
	tests := []struct {
		target string
		want   string
	}{
		{"16-1/protocol.pdf", "m5/s1/16-1/protocol.pdf"},
		{"../16-2/LISTING-A.pdf#page=1", "m5/s1/16-2/listing-a.pdf"},
		{"listing.pdf", "m5/s1/16-2/listing-a.pdf"},
		{"./protocol.pdf", "m5/s1/16-1/protocol.pdf"},
		{`16-1\protocol.pdf`, "m5/s1/16-1/protocol.pdf"},
		{`..\16-2\listing-a.pdf#page=3`, "m5/s1/16-2/listing-a.pdf"},
	}
	for _, tt := range tests {
		res := ValidateCrossDocumentLink(models.ExtractedLink{TargetURI: tt.target}, src, files)
		assert.True(t, res.IsValid, tt.target)
		assert.Equal(t, tt.want, res.ResolvedPath, tt.target)
	}
	res := ValidateCrossDocumentLink(models.ExtractedLink{TargetURI: "../m3/quality.pdf"}, src, files)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, "not found")

	res = ValidateCrossDocumentLink(models.ExtractedLink{TargetURI: `..\m3\quality.pdf`}, src, files)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, `"../m3/quality.pdf"`)
}

func TestExtractLinksFromPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csr.pdf")
	writeLinkedPDF(t, path,
		uri("https://example.com"),
		pdfdoc.Dict{"S": pdfdoc.Name("GoTo"), "D": pdfdoc.Array{pdfdoc.Integer(1), pdfdoc.Name("Fit")}},
		pdfdoc.Dict{"S": pdfdoc.Name("GoToR"), "F": pdfdoc.String("protocol.pdf"), "D": pdfdoc.Array{pdfdoc.Integer(0), pdfdoc.Name("Fit")}},
	)
	links, err := ExtractLinksFromPDF(path)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "https://example.com", links[0].TargetURI)
	assert.Equal(t, models.LinkInternal, links[1].LinkType)
	require.NotNil(t, links[1].TargetPage)
	assert.Equal(t, 2, *links[1].TargetPage)
	assert.Equal(t, models.LinkCrossDocument, links[2].LinkType)
	assert.Equal(t, "protocol.pdf", links[2].TargetURI)
	require.NotNil(t, links[2].Rect)
	assert.Equal(t, 72.0, links[2].Rect.LLX)
}

func TestReporter_Generate(t *testing.T) {
	dir := t.TempDir()
	csr := filepath.Join(dir, "csr.pdf")
	writeLinkedPDF(t, csr,
		uri("https://example.com"),
		uri("../16-2/missing.pdf"),
		uri("protocol.pdf"),
		pdfdoc.Dict{"S": pdfdoc.Name("GoTo"), "D": pdfdoc.Array{pdfdoc.Integer(0), pdfdoc.Name("Fit")}},
	)
	protocol := filepath.Join(dir, "protocol.pdf")
	writeLinkedPDF(t, protocol)

	manifest := &models.PackageManifest{Files: []models.PackageFile{
		{SourcePath: csr, TargetPath: "m5/s1/16-1/csr.pdf", FileName: "csr.pdf"},
		{SourcePath: protocol, TargetPath: "m5/s1/16-1/protocol.pdf", FileName: "protocol.pdf"},
		{SourcePath: filepath.Join(dir, "gone.pdf"), TargetPath: "m5/s1/16-3/gone.pdf", FileName: "gone.pdf"},
	}}

	rep, err := NewReporter().Generate(context.Background(), manifest)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.TotalFiles)
	assert.Equal(t, 4, rep.TotalLinks)
	assert.Equal(t, 2, rep.ValidLinks)
	assert.Equal(t, 1, rep.ByType[models.LinkExternal])
	assert.Equal(t, 2, rep.ByType[models.LinkCrossDocument])
	assert.Equal(t, 1, rep.ByType[models.LinkInternal])
	require.Len(t, rep.BrokenLinks, 1)
	assert.Equal(t, "../16-2/missing.pdf", rep.BrokenLinks[0].Target)
	require.Len(t, rep.ExternalLinks, 1)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "gone.pdf")

	var buf bytes.Buffer
	require.NoError(t, rep.WriteCSV(&buf))
	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "Source File,Page,Link Type,Target,Status,Error", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "m5/s1/16-1/csr.pdf,1,cross-document,../16-2/missing.pdf,broken,"))
	assert.Contains(t, buf.String(), "Total Links,4")

	xlsx := filepath.Join(dir, "links.xlsx")
	require.NoError(t, rep.WriteXLSX(xlsx))
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Broken Links", "External Links"}, f.GetSheetList())
	rows, err := f.GetRows("Broken Links")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "../16-2/missing.pdf", rows[1][3])
}
