package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteReadiness_text(t *testing.T) {
	rc := &models.ReadinessCheck{
		Ready:            false,
		MissingRequired:  []models.MissingNode{{Code: "16.1.1", Title: "Protocol"}},
		PendingApproval:  []models.PendingDocument{{NodeCode: "16.2", NodeTitle: "Listings", Version: 2, Status: models.StatusInReview}},
		ValidationErrors: 3,
	}
	var buf bytes.Buffer
	if err := WriteReadiness(&buf, "ABC-123", rc, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ABC-123: NOT READY", "Validation errors:      3", "16.1.1", "Protocol", "v2 [IN_REVIEW]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteReadiness_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReadiness(&buf, "ABC-123", &models.ReadinessCheck{Ready: true}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.ReadinessCheck
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !decoded.Ready {
		t.Error("ready should round-trip")
	}
}

func TestWriteManifest_text(t *testing.T) {
	m := &models.PackageManifest{StudyNumber: "ABC-123", Files: []models.PackageFile{
		{NodeCode: "16.1.1", Version: 2, TargetPath: "m5/abc-123/16-1-1/protocol.pdf"},
	}}
	var buf bytes.Buffer
	if err := WriteManifest(&buf, m, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "1 files") || !strings.Contains(buf.String(), "m5/abc-123/16-1-1/protocol.pdf") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestWriteBookmarks_text(t *testing.T) {
	m := &bookmarks.Manifest{
		TotalCount: 3,
		MaxDepth:   2,
		DocumentBookmarks: []bookmarks.DocumentBookmarks{{
			NodeCode:   "16.1.1",
			TargetPath: "m5/abc-123/16-1-1/protocol.pdf",
			Bookmarks:  []*models.BookmarkNode{{Title: "Protocol", Children: []*models.BookmarkNode{{Title: "Synopsis"}}}},
		}},
		Warnings: []string{"title truncated"},
	}
	var buf bytes.Buffer
	if err := WriteBookmarks(&buf, m, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "3 total, max depth 2") || !strings.Contains(out, "  2  m5/abc-123") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Warnings (1)") {
		t.Errorf("warnings missing:\n%s", out)
	}
}

func TestWriteHyperlinks_text(t *testing.T) {
	r := &hyperlink.Report{
		TotalFiles:    2,
		TotalLinks:    3,
		ValidLinks:    1,
		BrokenLinks:   []hyperlink.Entry{{SourceFile: "a.pdf", Page: 1, Target: "missing.pdf", Error: "target not in package"}},
		ExternalLinks: []hyperlink.Entry{{SourceFile: "a.pdf", Page: 2, Target: "https://example.com"}},
	}
	var buf bytes.Buffer
	if err := WriteHyperlinks(&buf, r, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"3 total, 1 valid, 1 broken, 1 external in 2 files", "Broken links:", "missing.pdf (target not in package)", "https://example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteReport_groupsBySeverity(t *testing.T) {
	r := &validator.Report{
		StudyNumber: "ABC-123",
		Issues: []models.ValidationIssue{
			{Severity: models.SeverityWarning, Check: "page-size", FilePath: "m5/a.pdf", Message: "not letter"},
			{Severity: models.SeverityError, Check: "pdf-version", FilePath: "m5/b.pdf", Message: "too new"},
		},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, r, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	errAt := strings.Index(out, "ERROR (1)")
	warnAt := strings.Index(out, "WARNING (1)")
	if errAt < 0 || warnAt < 0 || errAt > warnAt {
		t.Errorf("errors should precede warnings:\n%s", out)
	}
	if !strings.Contains(out, "[pdf-version] m5/b.pdf: too new") {
		t.Errorf("issue line missing:\n%s", out)
	}
}

func TestWriteExportResult(t *testing.T) {
	ok := &exporter.Result{
		Success:   true,
		FileCount: 2,
		Sequence:  backbone.Sequence{Number: "0000", Type: backbone.SubmissionOriginal},
		ZipPath:   "/exports/abc.zip",
	}
	var buf bytes.Buffer
	if err := WriteExportResult(&buf, ok, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Exported sequence 0000") || !strings.Contains(buf.String(), "/exports/abc.zip") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	failed := &exporter.Result{Error: "package manifest is empty"}
	if err := WriteExportResult(&buf, failed, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Export failed: package manifest is empty") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	s := Status{Stats: storage.Stats{Studies: 2, Documents: 5}, ExportsRoot: "/exports", DiskUsageBytes: 2048}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Studies:            2") || !strings.Contains(buf.String(), "2.0 KiB") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
