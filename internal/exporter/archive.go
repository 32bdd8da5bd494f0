package exporter

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/validator"
)

// QCSummary is the audit record written next to the archive.
type QCSummary struct {
	ExportID    string                `json:"export_id"`
	Name        string                `json:"name"`
	GeneratedAt time.Time             `json:"generated_at"`
	StudyID     string                `json:"study_id"`
	StudyNumber string                `json:"study_number"`
	Sequence    backbone.Sequence     `json:"sequence"`
	Valid       bool                  `json:"valid"`
	Ready       bool                  `json:"ready"`
	FileCount   int                   `json:"file_count"`
	Readiness   models.ReadinessCheck `json:"readiness"`
	Validation  *validator.Report     `json:"validation"`
	Hyperlinks  HyperlinkSummary      `json:"hyperlinks"`
	Bookmarks   BookmarkSummary       `json:"bookmarks"`
	// Checksums maps package target paths to their MD5 digests.
	Checksums map[string]string `json:"checksums"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// HyperlinkSummary counts the links of the hyperlink report.
type HyperlinkSummary struct {
	TotalLinks int `json:"total_links"`
	ValidLinks int `json:"valid_links"`
	Broken     int `json:"broken"`
	External   int `json:"external"`
}

// BookmarkSummary describes the package bookmark tree.
type BookmarkSummary struct {
	TotalCount int `json:"total_count"`
	MaxDepth   int `json:"max_depth"`
}

// archive zips the staging tree into {name}.zip with entries under ectd/, in lexical order.
func (r *exportRun) archive() error {
	zipPath := filepath.Join(r.res.ExportDir, r.res.Name+".zip")
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	modified := r.manifest.GeneratedAt
	walkErr := filepath.WalkDir(r.pkgDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.pkgDir, p)
		if err != nil {
			return err
		}
		return addZipEntry(zw, PackageDir+"/"+filepath.ToSlash(rel), p, modified)
	})
	if walkErr != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("failed to write archive: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	r.res.ZipPath = zipPath
	return nil
}

func addZipEntry(zw *zip.Writer, name, src string, modified time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// sidecars writes the bookmark manifest, hyperlink reports and QC summary next to the archive.
func (r *exportRun) sidecars(bm *bookmarks.Manifest, links *hyperlink.Report, xml *backbone.Result) error {
	base := filepath.Join(r.res.ExportDir, r.res.Name)

	r.res.BookmarksPath = base + "-bookmarks.json"
	if err := writeJSON(r.res.BookmarksPath, bm); err != nil {
		return err
	}

	r.res.HyperlinksCSVPath = base + "-hyperlinks.csv"
	f, err := os.Create(r.res.HyperlinksCSVPath)
	if err != nil {
		return fmt.Errorf("failed to create hyperlink report: %w", err)
	}
	if err := links.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write hyperlink report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if r.exporter.opts.XLSXReport {
		r.res.HyperlinksXLSXPath = base + "-hyperlinks.xlsx"
		if err := links.WriteXLSX(r.res.HyperlinksXLSXPath); err != nil {
			return fmt.Errorf("failed to write hyperlink workbook: %w", err)
		}
	}

	checksums := make(map[string]string, len(xml.Leaves))
	for _, l := range xml.Leaves {
		checksums[l.Href] = l.Checksum
	}
	qc := QCSummary{
		ExportID:    r.res.ExportID,
		Name:        r.res.Name,
		GeneratedAt: r.exporter.nowFunc().UTC(),
		StudyID:     r.manifest.StudyID,
		StudyNumber: r.manifest.StudyNumber,
		Sequence:    r.seq,
		Valid:       r.res.Report.Valid,
		Ready:       r.res.Report.Ready,
		FileCount:   r.res.FileCount,
		Readiness:   r.manifest.Readiness,
		Validation:  r.res.Report,
		Hyperlinks: HyperlinkSummary{
			TotalLinks: links.TotalLinks,
			ValidLinks: links.ValidLinks,
			Broken:     len(links.BrokenLinks),
			External:   len(links.ExternalLinks),
		},
		Bookmarks: BookmarkSummary{TotalCount: bm.TotalCount, MaxDepth: bm.MaxDepth},
		Checksums: checksums,
		Warnings:  r.res.Warnings,
	}
	r.res.QCSummaryPath = base + "-qc.json"
	return writeJSON(r.res.QCSummaryPath, qc)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
