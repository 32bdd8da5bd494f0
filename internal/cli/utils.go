// Package cli formats engine results for the ectd command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
	"github.com/hyperjump/ectd/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json"; empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const rule = "---------------------------------------------------------"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReadiness writes a readiness check.
func WriteReadiness(w io.Writer, studyNumber string, rc *models.ReadinessCheck, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, rc)
	}
	state := "READY"
	if !rc.Ready {
		state = "NOT READY"
	}
	fmt.Fprintf(w, "Study %s: %s\n", studyNumber, state)
	fmt.Fprintf(w, "  Validation errors:      %d\n", rc.ValidationErrors)
	fmt.Fprintf(w, "  Unresolved annotations: %d\n", rc.UnresolvedAnnotations)
	if len(rc.MissingRequired) > 0 {
		fmt.Fprintf(w, "\nMissing required sections (%d):\n", len(rc.MissingRequired))
		for _, m := range rc.MissingRequired {
			fmt.Fprintf(w, "  %-10s %s\n", m.Code, m.Title)
		}
	}
	if len(rc.PendingApproval) > 0 {
		fmt.Fprintf(w, "\nPending approval (%d):\n", len(rc.PendingApproval))
		for _, p := range rc.PendingApproval {
			fmt.Fprintf(w, "  %-10s %s v%d [%s]\n", p.NodeCode, p.NodeTitle, p.Version, p.Status)
		}
	}
	return nil
}

// WriteManifest writes the ordered package files of a manifest.
func WriteManifest(w io.Writer, m *models.PackageManifest, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, m)
	}
	fmt.Fprintf(w, "Package for study %s: %d files\n%s\n", m.StudyNumber, len(m.Files), rule)
	for _, f := range m.Files {
		fmt.Fprintf(w, "%-10s v%-3d %s\n", f.NodeCode, f.Version, f.TargetPath)
	}
	return nil
}

// WriteBookmarks writes a bookmark manifest summary.
func WriteBookmarks(w io.Writer, m *bookmarks.Manifest, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, m)
	}
	fmt.Fprintf(w, "Bookmarks: %d total, max depth %d\n%s\n", m.TotalCount, m.MaxDepth, rule)
	for _, d := range m.DocumentBookmarks {
		line := fmt.Sprintf("%-10s %3d  %s", d.NodeCode, countNodes(d.Bookmarks), d.TargetPath)
		if d.Error != "" {
			line += "  (" + utils.Truncate(d.Error, 60) + ")"
		}
		fmt.Fprintln(w, line)
	}
	writeWarnings(w, m.Warnings)
	return nil
}

func countNodes(nodes []*models.BookmarkNode) int {
	n := 0
	for _, b := range nodes {
		n += 1 + countNodes(b.Children)
	}
	return n
}

// WriteHyperlinks writes a hyperlink report; text mode lists broken and external links.
func WriteHyperlinks(w io.Writer, r *hyperlink.Report, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	fmt.Fprintf(w, "Hyperlinks: %d total, %d valid, %d broken, %d external in %d files\n",
		r.TotalLinks, r.ValidLinks, len(r.BrokenLinks), len(r.ExternalLinks), r.TotalFiles)
	writeLinks(w, "Broken", r.BrokenLinks)
	writeLinks(w, "External", r.ExternalLinks)
	writeWarnings(w, r.Warnings)
	return nil
}

func writeLinks(w io.Writer, label string, entries []hyperlink.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s links:\n", label)
	for _, e := range entries {
		line := fmt.Sprintf("  %s p.%d -> %s", e.SourceFile, e.Page, utils.Truncate(e.Target, 80))
		if e.Error != "" {
			line += " (" + e.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
}

// WriteReport writes a validation report, issues grouped by severity.
func WriteReport(w io.Writer, r *validator.Report, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	fmt.Fprintf(w, "Validation for study %s: valid=%t ready=%t\n", r.StudyNumber, r.Valid, r.Ready)
	fmt.Fprintf(w, "  Files checked: %d (%d failed)\n", r.Summary.FilesChecked, r.Summary.FilesFailed)
	fmt.Fprintf(w, "  Errors: %d  Warnings: %d  Info: %d\n", r.Summary.Errors, r.Summary.Warnings, r.Summary.Infos)
	fmt.Fprintf(w, "  Cross references: %d checked, %d broken\n", r.CrossReferences.Total, r.CrossReferences.Broken)
	for _, sev := range []models.Severity{models.SeverityError, models.SeverityWarning, models.SeverityInfo} {
		var lines []string
		for _, i := range r.Issues {
			if i.Severity != sev {
				continue
			}
			where := ""
			if i.FilePath != "" {
				where = i.FilePath + ": "
			}
			lines = append(lines, fmt.Sprintf("  [%s] %s%s", i.Check, where, i.Message))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d):\n%s\n", sev, len(lines), strings.Join(lines, "\n"))
	}
	return nil
}

// WriteExportResult writes the outcome of an export run.
func WriteExportResult(w io.Writer, r *exporter.Result, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	if !r.Success {
		fmt.Fprintf(w, "Export failed: %s\n", r.Error)
		writeWarnings(w, r.Warnings)
		return nil
	}
	fmt.Fprintf(w, "Exported sequence %s (%s), %d files\n", r.Sequence.Number, r.Sequence.Type, r.FileCount)
	fmt.Fprintf(w, "  Archive:    %s\n", r.ZipPath)
	fmt.Fprintf(w, "  Bookmarks:  %s\n", r.BookmarksPath)
	fmt.Fprintf(w, "  Hyperlinks: %s\n", r.HyperlinksCSVPath)
	if r.HyperlinksXLSXPath != "" {
		fmt.Fprintf(w, "              %s\n", r.HyperlinksXLSXPath)
	}
	fmt.Fprintf(w, "  QC summary: %s\n", r.QCSummaryPath)
	if r.Report != nil {
		fmt.Fprintf(w, "  Valid: %t  Ready: %t  (%d errors, %d warnings)\n",
			r.Report.Valid, r.Report.Ready, r.Report.Summary.Errors, r.Report.Summary.Warnings)
	}
	writeWarnings(w, r.Warnings)
	return nil
}

// Status is the payload of the status command.
type Status struct {
	Stats          storage.Stats `json:"stats"`
	DatabasePath   string        `json:"database_path,omitempty"`
	ExportsRoot    string        `json:"exports_root"`
	DiskUsageBytes int64         `json:"exports_disk_usage_bytes"`
}

// WriteStatus writes store counts and export disk usage.
func WriteStatus(w io.Writer, s Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	fmt.Fprintf(w, "Studies:            %d\n", s.Stats.Studies)
	fmt.Fprintf(w, "Documents:          %d\n", s.Stats.Documents)
	fmt.Fprintf(w, "Validation results: %d (%d failed)\n", s.Stats.ValidationResults, s.Stats.FailedValidations)
	if s.DatabasePath != "" {
		fmt.Fprintf(w, "Database:           %s\n", s.DatabasePath)
	}
	fmt.Fprintf(w, "Exports:            %s (%s)\n", s.ExportsRoot, FormatBytes(s.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\nWarnings (%d):\n", len(warnings))
	for _, msg := range warnings {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}
