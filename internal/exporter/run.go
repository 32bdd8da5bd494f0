package exporter

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/coverpage"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/pdfedit"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

// CoverNodeCode files the cover page under the module 1 cover letter section.
const CoverNodeCode = "1.2"

type exportRun struct {
	exporter *Exporter
	req      Request
	manifest *models.PackageManifest
	meta     backbone.Metadata
	seq      backbone.Sequence
	pkgDir   string
	res      *Result
}

func (r *exportRun) warn(msgs ...string) {
	r.res.Warnings = append(r.res.Warnings, msgs...)
}

// staged is where a package file lives inside the staging tree.
func (r *exportRun) staged(f models.PackageFile) string {
	return filepath.Join(r.pkgDir, filepath.FromSlash(f.TargetPath))
}

func (r *exportRun) includeCover() bool {
	if r.req.CoverPage != nil {
		return *r.req.CoverPage
	}
	return r.exporter.opts.IncludeCoverPage
}

func (r *exportRun) execute(ctx context.Context) error {
	e := r.exporter
	bm, err := bookmarks.NewBuilder(
		bookmarks.WithLogger(e.logger),
		bookmarks.WithMaxDepth(e.opts.MaxDepth),
		bookmarks.WithMaxTitleLength(e.opts.MaxTitleLength),
	).Build(ctx, r.manifest)
	if err != nil {
		return fmt.Errorf("failed to build bookmarks: %w", err)
	}
	r.warn(bm.Warnings...)

	for _, f := range r.manifest.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.stage(f, bm)
	}

	files := slices.Clone(r.manifest.Files)
	if r.includeCover() {
		cover, err := r.coverPage()
		if err != nil {
			return err
		}
		files = append([]models.PackageFile{cover}, files...)
	}
	pkg := *r.manifest
	pkg.Files = files
	pkg.FolderStructure = naming.BuildFolderTree(files)
	r.res.Manifest = &pkg
	r.res.FileCount = len(files)

	gen := backbone.NewGenerator(
		backbone.WithLogger(e.logger),
		backbone.WithOptions(backbone.Options{
			PrettyPrint:    e.opts.PrettyPrint,
			IncludeDoctype: e.opts.IncludeDoctype,
			Region:         e.opts.Region,
		}),
		backbone.WithBatchSize(e.opts.BatchSize),
	)
	xml, err := gen.Generate(ctx, files, r.staged, r.meta, r.seq)
	if err != nil {
		return fmt.Errorf("failed to generate backbone: %w", err)
	}
	r.warn(xml.Warnings...)
	if err := os.WriteFile(filepath.Join(r.pkgDir, backbone.IndexFileName), []byte(xml.IndexXML), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", backbone.IndexFileName, err)
	}
	if xml.RegionalXML != "" {
		if err := os.WriteFile(filepath.Join(r.pkgDir, backbone.RegionalFileName), []byte(xml.RegionalXML), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", backbone.RegionalFileName, err)
		}
	}

	links, err := hyperlink.NewReporter(
		hyperlink.WithLogger(e.logger),
		hyperlink.WithSourceResolver(r.staged),
	).Generate(ctx, &pkg)
	if err != nil {
		return fmt.Errorf("failed to build hyperlink report: %w", err)
	}
	r.warn(links.Warnings...)

	report, err := e.validator.ValidatePackage(ctx, &pkg, r.staged)
	if err != nil {
		return err
	}
	report.AddXML(validator.ValidateIndexXML(xml.IndexXML, files))
	if xml.RegionalXML != "" {
		report.AddXML(validator.ValidateRegionalXML(xml.RegionalXML, files))
	}
	r.res.Report = report

	if err := r.archive(); err != nil {
		return err
	}
	if err := r.sidecars(bm, links, xml); err != nil {
		return err
	}
	if !e.opts.KeepStaging {
		if err := e.cleanup(r.pkgDir); err != nil {
			return fmt.Errorf("failed to remove staging tree: %w", err)
		}
	}
	return nil
}

// stage copies one file into the staging tree and rewrites its outline and links. Problems
// are recorded as warnings; the validator reports files that did not make it.
func (r *exportRun) stage(f models.PackageFile, bm *bookmarks.Manifest) {
	dst := r.staged(f)
	if err := storage.CopyFile(f.SourcePath, dst); err != nil {
		r.warn(fmt.Sprintf("%s: staging failed: %v", f.TargetPath, err))
		r.exporter.logger.Warn("Staging failed", zap.String("path", f.TargetPath), zap.Error(err))
		return
	}
	if !strings.EqualFold(path.Ext(f.TargetPath), ".pdf") {
		return
	}
	doc, err := pdfdoc.Open(dst)
	if err != nil {
		r.warn(fmt.Sprintf("%s: copied unchanged, PDF could not be read: %v", f.TargetPath, err))
		return
	}
	if doc.Encrypted() {
		r.warn(fmt.Sprintf("%s: copied unchanged, PDF is encrypted", f.TargetPath))
		return
	}

	inj := pdfedit.InjectBookmarks(doc, bm.ForFile(f, r.exporter.opts.MaxDepth))
	if !inj.Success {
		r.warn(fmt.Sprintf("%s: bookmarks not injected: %s", f.TargetPath, inj.Error))
	}
	for _, w := range inj.Warnings {
		r.warn(f.TargetPath + ": " + w)
	}
	lr := pdfedit.ProcessHyperlinks(doc, pdfedit.LinkOptions{
		PathMap:        r.pathMap(f),
		RemoveExternal: r.req.RemoveExternalLinks,
		RemoveMailto:   r.req.RemoveMailtoLinks,
	})
	for _, w := range lr.Warnings {
		r.warn(f.TargetPath + ": " + w)
	}
	if err := doc.Save(dst); err != nil {
		r.warn(fmt.Sprintf("%s: rewritten PDF could not be saved: %v", f.TargetPath, err))
		if cerr := storage.CopyFile(f.SourcePath, dst); cerr != nil {
			r.warn(fmt.Sprintf("%s: staging failed: %v", f.TargetPath, cerr))
		}
	}
}

// pathMap maps the source locations and file names of the other package files to paths
// relative to from's directory.
func (r *exportRun) pathMap(from models.PackageFile) map[string]string {
	m := make(map[string]string, 2*len(r.manifest.Files))
	for _, to := range r.manifest.Files {
		if to.TargetPath == from.TargetPath {
			continue
		}
		rel := relativeTarget(from.TargetPath, to.TargetPath)
		m[to.SourcePath] = rel
		if to.FileName != "" {
			if _, taken := m[to.FileName]; !taken {
				m[to.FileName] = rel
			}
		}
	}
	return m
}

// relativeTarget returns the slash path of to relative to the directory of from.
func relativeTarget(from, to string) string {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(from)), filepath.FromSlash(to))
	if err != nil {
		return to
	}
	return filepath.ToSlash(rel)
}

func (r *exportRun) coverPage() (models.PackageFile, error) {
	dst := filepath.Join(r.pkgDir, filepath.FromSlash(coverpage.TargetPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return models.PackageFile{}, fmt.Errorf("failed to create cover page directory: %w", err)
	}
	subtitle := r.meta.StudyTitle
	if subtitle == "" {
		subtitle = "Study " + r.manifest.StudyNumber
	}
	fields := []coverpage.Field{
		{Label: "Study Number", Value: r.manifest.StudyNumber},
		{Label: "Sequence", Value: r.seq.Number},
		{Label: "Submission Type", Value: string(r.seq.Type)},
		{Label: "Submission Date", Value: r.seq.Date.Format("2006-01-02")},
		{Label: "Applicant", Value: r.meta.Applicant.Name},
	}
	if r.meta.Product.ApplicationNumber != "" {
		fields = append(fields, coverpage.Field{
			Label: "Application",
			Value: strings.TrimSpace(r.meta.Product.ApplicationType + " " + r.meta.Product.ApplicationNumber),
		})
	}
	res, err := coverpage.Write(dst, r.manifest.Files, coverpage.Options{
		Title:    "eCTD Submission Package",
		Subtitle: subtitle,
		Fields:   fields,
		Path:     coverpage.TargetPath,
	})
	if err != nil {
		return models.PackageFile{}, err
	}
	r.warn(res.Warnings...)
	info, err := os.Stat(dst)
	if err != nil {
		return models.PackageFile{}, err
	}
	pages := res.PageCount
	return models.PackageFile{
		SourcePath: dst,
		TargetPath: coverpage.TargetPath,
		NodeCode:   CoverNodeCode,
		NodeTitle:  "Cover Page",
		FileName:   path.Base(coverpage.TargetPath),
		PageCount:  &pages,
		FileSize:   info.Size(),
	}, nil
}
