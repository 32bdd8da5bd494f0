package naming

import (
	"regexp"
	"strings"
	"testing"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeToFolderPath(t *testing.T) {
	assert.Equal(t, "m5/abc-123/16-2-1", CodeToFolderPath("16.2.1", "ABC 123"))
	assert.Equal(t, "m5/study_01/2", CodeToFolderPath("2", "Study_01"))
	assert.Equal(t, "m5/document/16-1", CodeToFolderPath("16.1", "  "))
}

func TestSanitizePathComponent(t *testing.T) {
	cases := map[string]string{
		"Clinical Study Report": "clinical-study-report",
		"  --Protocol  (v2)--":  "protocol-v2",
		"a---b":                 "a-b",
		"Ümlaut & Co.":          "mlaut-co.",
		"%%%":                   "document",
		"Final\u00a0Report":     "final-report",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizePathComponent(in), "input %q", in)
	}
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "report-v1-2-final.pdf", SanitizeFileName("Report v1.2 Final.PDF"))
	assert.Equal(t, "document.pdf", SanitizeFileName(".pdf"))
	assert.Equal(t, "document", SanitizeFileName("   "))
	assert.Equal(t, "abc", SanitizeFileName("abc."))
	assert.Equal(t, "a-b-c.pdf", SanitizeFileName("a b\u00a0c.pdf"))
	assert.Equal(t, "study-report", SanitizeFileName("Study\u3000Report"))

	long := strings.Repeat("ab-", 40) + ".pdf"
	got := SanitizeFileName(long)
	base := strings.TrimSuffix(got, ".pdf")
	assert.LessOrEqual(t, len(base), MaxBaseNameLength)
	assert.False(t, strings.HasSuffix(base, "-"))
}

func TestSanitizeFileName_AlwaysMatchesPattern(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9\-_]+(\.[a-z0-9]+)?$`)
	inputs := []string{
		"", ".", "..", "...", "a.b.c", "Final Report (Signed).pdf", "résumé.PDF", "__init__.py",
		"--x--.--y--", "日本語.pdf", "file.tar.gz", "x.p d f", strings.Repeat("z", 200) + ".docx",
		"tab\tseparated\nname.txt", "UPPER.PDF", "a-.pdf", "-.-",
	}
	for _, in := range inputs {
		got := SanitizeFileName(in)
		require.NotEmpty(t, got, "input %q", in)
		assert.True(t, got == Placeholder || pattern.MatchString(got), "input %q gave %q", in, got)
		base := got
		if i := strings.LastIndex(got, "."); i >= 0 {
			base = got[:i]
		}
		assert.LessOrEqual(t, len(base), MaxBaseNameLength, "input %q", in)
	}
}

func TestCompareCodes(t *testing.T) {
	codes := []string{"16.2", "16.1.1", "2", "16.10"}
	SortCodes(codes)
	assert.Equal(t, []string{"2", "16.1.1", "16.2", "16.10"}, codes)

	assert.Negative(t, CompareCodes("16", "16.1"))
	assert.Zero(t, CompareCodes("5.3", "5.3"))
	assert.Negative(t, CompareCodes("1.9", "1.a"))
}

func TestCodePrefixes(t *testing.T) {
	assert.Equal(t, []string{"16", "16.2", "16.2.1"}, CodePrefixes("16.2.1"))
	assert.Equal(t, []string{"2"}, CodePrefixes("2"))
}

func TestBuildFolderTree_Deterministic(t *testing.T) {
	files := []models.PackageFile{
		{TargetPath: "m5/s1/16-2/b.pdf"},
		{TargetPath: "m5/s1/16-1/z.pdf"},
		{TargetPath: "m5/s1/16-1/a.pdf"},
		{TargetPath: `m5\s1\16-10\c.pdf`},
	}
	reversed := make([]models.PackageFile, len(files))
	for i := range files {
		reversed[len(files)-1-i] = files[i]
	}

	tree := BuildFolderTree(files)
	assert.Equal(t, tree, BuildFolderTree(reversed))

	require.Len(t, tree, 1)
	assert.Equal(t, "m5", tree[0].Name)
	study := tree[0].Children[0]
	assert.Equal(t, "m5/s1", study.Path)
	require.Len(t, study.Children, 3)
	assert.Equal(t, "16-1", study.Children[0].Name)
	assert.Equal(t, "16-10", study.Children[1].Name)
	assert.Equal(t, "16-2", study.Children[2].Name)
	assert.Equal(t, []string{"a.pdf", "z.pdf"}, study.Children[0].Files)
	assert.Empty(t, study.Files)
}
