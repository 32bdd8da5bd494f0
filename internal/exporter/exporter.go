// Package exporter turns an assembled study into a sealed eCTD package: staged and rewritten
// PDFs, a cover page, the XML backbone, a validation report, a ZIP archive and audit sidecars.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/fileid"
	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

var sequencePattern = regexp.MustCompile(`^\d{4}$`)

var (
	ErrEmptyManifest      = errors.New("manifest contains no files")
	ErrOutsideExportsRoot = errors.New("path is outside the exports root")
)

// PackageDir is the directory inside the export and the archive that holds the package tree.
const PackageDir = "ectd"

// Options are the export settings taken from configuration.
type Options struct {
	ExportsRoot      string
	IncludeCoverPage bool
	PrettyPrint      bool
	IncludeDoctype   bool
	Region           string
	// KeepStaging keeps the staged package tree next to the archive.
	KeepStaging    bool
	XLSXReport     bool
	MaxDepth       int
	MaxTitleLength int
	BatchSize      int
	// Applicant is used when a request names no applicant.
	Applicant backbone.Applicant
}

// Request describes one export run.
type Request struct {
	Sequence      backbone.Sequence `json:"sequence"`
	Metadata      backbone.Metadata `json:"metadata"`
	IncludeDrafts bool              `json:"include_drafts"`
	// CoverPage overrides Options.IncludeCoverPage when set.
	CoverPage           *bool `json:"cover_page,omitempty"`
	RemoveExternalLinks bool  `json:"remove_external_links"`
	RemoveMailtoLinks   bool  `json:"remove_mailto_links"`
}

// Validate checks the request before any file is written.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r.Sequence,
		validation.Field(&r.Sequence.Number, validation.Match(sequencePattern).Error("must be exactly four digits")),
		validation.Field(&r.Sequence.RelatedSequence, validation.Match(sequencePattern).Error("must be exactly four digits")),
	)
}

// Result is the outcome of an export. Failures are reported with Success false and Error set.
type Result struct {
	Success            bool                    `json:"success"`
	Error              string                  `json:"error,omitempty"`
	ExportID           string                  `json:"export_id,omitempty"`
	Name               string                  `json:"name,omitempty"`
	ExportDir          string                  `json:"export_dir,omitempty"`
	ZipPath            string                  `json:"zip_path,omitempty"`
	BookmarksPath      string                  `json:"bookmarks_path,omitempty"`
	HyperlinksCSVPath  string                  `json:"hyperlinks_csv_path,omitempty"`
	HyperlinksXLSXPath string                  `json:"hyperlinks_xlsx_path,omitempty"`
	QCSummaryPath      string                  `json:"qc_summary_path,omitempty"`
	FileCount          int                     `json:"file_count"`
	Sequence           backbone.Sequence       `json:"sequence"`
	Manifest           *models.PackageManifest `json:"manifest,omitempty"`
	Report             *validator.Report       `json:"report,omitempty"`
	Warnings           []string                `json:"warnings,omitempty"`
}

// Exporter runs exports. Every run builds its own manifest, bookmark tree and path map.
type Exporter struct {
	assembler *assembler.Assembler
	validator *validator.Validator
	opts      Options
	root      string
	logger    *zap.Logger
	nowFunc   func() time.Time
	newID     func() string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithValidator replaces the default validator.
func WithValidator(v *validator.Validator) Option {
	return func(e *Exporter) { e.validator = v }
}

// New creates an Exporter writing under opts.ExportsRoot.
func New(asm *assembler.Assembler, opts Options, options ...Option) (*Exporter, error) {
	if opts.ExportsRoot == "" {
		return nil, errors.New("exports root is not set")
	}
	root, err := filepath.Abs(opts.ExportsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve exports root: %w", err)
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = bookmarks.DefaultMaxDepth
	}
	if opts.MaxTitleLength < 1 {
		opts.MaxTitleLength = bookmarks.DefaultMaxTitleLength
	}
	if opts.Region == "" {
		opts.Region = backbone.RegionUS
	}
	e := &Exporter{
		assembler: asm,
		opts:      opts,
		root:      root,
		logger:    zap.NewNop(),
		nowFunc:   time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, o := range options {
		o(e)
	}
	if e.validator == nil {
		e.validator = validator.New(validator.WithLogger(e.logger))
	}
	return e, nil
}

// Root returns the absolute exports root.
func (e *Exporter) Root() string { return e.root }

// Export assembles and packages the study. It never returns a Go error: every failure is
// reported in the result, after removing whatever the run wrote under the exports root.
func (e *Exporter) Export(ctx context.Context, studyID string, req Request) (res *Result) {
	res = &Result{ExportID: e.newID()}
	defer func() {
		if p := recover(); p != nil {
			e.fail(res, fmt.Errorf("export crashed: %v", p))
		}
	}()
	if err := e.run(ctx, studyID, req, res); err != nil {
		e.fail(res, err)
		return res
	}
	res.Success = true
	e.logger.Info("Export complete",
		zap.String("export", res.Name),
		zap.Int("files", res.FileCount),
		zap.Bool("valid", res.Report != nil && res.Report.Valid))
	return res
}

func (e *Exporter) fail(res *Result, err error) {
	res.Success = false
	res.Error = err.Error()
	e.logger.Warn("Export failed", zap.String("export", res.Name), zap.Error(err))
	if res.ExportDir == "" {
		return
	}
	if cerr := e.cleanup(res.ExportDir); cerr != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("cleanup failed: %v", cerr))
	}
	res.ExportDir, res.ZipPath = "", ""
	res.BookmarksPath, res.HyperlinksCSVPath, res.HyperlinksXLSXPath, res.QCSummaryPath = "", "", "", ""
}

// cleanup removes dir, refusing anything that is not strictly inside the exports root.
func (e *Exporter) cleanup(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if abs == e.root || !storage.Within(e.root, abs) {
		return fmt.Errorf("%s: %w", dir, ErrOutsideExportsRoot)
	}
	return os.RemoveAll(abs)
}

func (e *Exporter) run(ctx context.Context, studyID string, req Request, res *Result) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid export request: %w", err)
	}
	manifest, err := e.assembler.Assemble(ctx, studyID, assembler.Options{IncludeDrafts: req.IncludeDrafts})
	if err != nil {
		return err
	}
	if len(manifest.Files) == 0 {
		return fmt.Errorf("%w: study %s", ErrEmptyManifest, manifest.StudyNumber)
	}
	res.Manifest = manifest

	seq := req.Sequence
	seq.Normalize(e.nowFunc().UTC())
	res.Sequence = seq
	meta := e.metadata(req.Metadata, manifest)

	res.Name = fileid.ExportName(manifest.StudyNumber, seq.Number)
	res.ExportDir = filepath.Join(e.root, res.Name)
	if !storage.Within(e.root, res.ExportDir) {
		dir := res.ExportDir
		res.ExportDir = ""
		return fmt.Errorf("%s: %w", dir, ErrOutsideExportsRoot)
	}
	if _, err := os.Stat(res.ExportDir); err == nil {
		dir := res.ExportDir
		res.ExportDir = ""
		return fmt.Errorf("export directory %s already exists", dir)
	}
	pkgDir := filepath.Join(res.ExportDir, PackageDir)
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	run := &exportRun{
		exporter: e,
		req:      req,
		manifest: manifest,
		meta:     meta,
		seq:      seq,
		pkgDir:   pkgDir,
		res:      res,
	}
	return run.execute(ctx)
}

// metadata fills the submission metadata from the manifest and configured defaults.
func (e *Exporter) metadata(m backbone.Metadata, manifest *models.PackageManifest) backbone.Metadata {
	if m.StudyNumber == "" {
		m.StudyNumber = manifest.StudyNumber
	}
	if m.Applicant.Name == "" {
		m.Applicant = e.opts.Applicant
	}
	return m
}
