// Package validator runs per-file compliance checks and package-level checks over an
// assembled manifest and aggregates them into a report.
package validator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ectd/internal/checks"
	"github.com/hyperjump/ectd/internal/models"
)

// CheckFileAccess is reported when a file cannot be read; no other check runs for it.
const CheckFileAccess = "file-access"

const defaultConcurrency = 4

// Validator runs compliance checks. It holds only read-only configuration and may be shared.
type Validator struct {
	registry    *checks.Registry
	checks      []string
	severities  map[string]models.Severity
	concurrency int
	logger      *zap.Logger
	nowFunc     func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithRegistry replaces the built-in check registry.
func WithRegistry(r *checks.Registry) Option {
	return func(v *Validator) { v.registry = r }
}

// WithChecks sets the ordered list of checks run per file.
func WithChecks(names []string) Option {
	return func(v *Validator) {
		if len(names) > 0 {
			v.checks = names
		}
	}
}

// WithSeverities overrides the severity of individual checks.
func WithSeverities(s map[string]models.Severity) Option {
	return func(v *Validator) {
		for name, sev := range s {
			v.severities[name] = sev
		}
	}
}

// WithConcurrency bounds how many files are checked at once.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// New returns a Validator running checks.DefaultChecks.
func New(opts ...Option) *Validator {
	v := &Validator{
		checks:      checks.DefaultChecks,
		severities:  make(map[string]models.Severity),
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.registry == nil {
		v.registry = checks.NewRegistry(checks.DefaultConfig())
	}
	return v
}

// Checks returns the configured check names.
func (v *Validator) Checks() []string { return v.checks }

func (v *Validator) severity(name string) models.Severity {
	if s, ok := v.severities[name]; ok {
		return s
	}
	return checks.DefaultSeverity(name)
}

// ValidateFile runs the configured checks against the file at path. target is its
// package-relative path, or "" for a file outside a package.
func (v *Validator) ValidateFile(ctx context.Context, path, target string) FileResult {
	res := FileResult{Path: path, Target: target}
	name := target
	if name == "" {
		name = path
	}
	f, err := checks.NewFile(path, target)
	if err != nil {
		v.logger.Warn("file not accessible", zap.String("path", path), zap.Error(err))
		res.Issues = append(res.Issues, models.ValidationIssue{
			Severity: models.SeverityError,
			Check:    CheckFileAccess,
			Message:  fmt.Sprintf("file is not accessible: %v", err),
			FilePath: name,
		})
		return res
	}
	res.Accessible = true
	for _, check := range v.checks {
		if ctx.Err() != nil {
			break
		}
		out := v.registry.Run(ctx, check, f)
		sev := v.severity(check)
		res.Checks = append(res.Checks, CheckRun{
			Name:     check,
			Severity: sev,
			Passed:   out.Passed,
			Skipped:  out.Skipped,
			Message:  out.Message,
		})
		if out.Passed {
			continue
		}
		res.Issues = append(res.Issues, models.ValidationIssue{
			Severity: sev,
			Check:    check,
			Message:  out.Message,
			FilePath: name,
			Details:  out.Details,
		})
	}
	return res
}

// ValidateFiles checks every manifest file. locate maps a file to its path on disk; when nil
// SourcePath is used. Results keep manifest order.
func (v *Validator) ValidateFiles(ctx context.Context, files []models.PackageFile, locate func(models.PackageFile) string) ([]FileResult, error) {
	if locate == nil {
		locate = func(f models.PackageFile) string { return f.SourcePath }
	}
	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, f := range files {
		g.Go(func() error {
			r := v.ValidateFile(gctx, locate(f), f.TargetPath)
			r.DocumentID = f.SourceDocumentID
			for j := range r.Issues {
				r.Issues[j].DocumentID = f.SourceDocumentID
			}
			results[i] = r
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ValidatePackage runs per-file checks, package-level checks and cross-reference validation
// over manifest. XML findings are merged later with Report.AddXML.
func (v *Validator) ValidatePackage(ctx context.Context, manifest *models.PackageManifest, locate func(models.PackageFile) string) (*Report, error) {
	files, err := v.ValidateFiles(ctx, manifest.Files, locate)
	if err != nil {
		return nil, fmt.Errorf("failed to validate files: %w", err)
	}
	rep := &Report{
		StudyID:     manifest.StudyID,
		StudyNumber: manifest.StudyNumber,
		GeneratedAt: v.nowFunc().UTC(),
		Files:       files,
		readiness:   manifest.Readiness.Ready,
	}
	for _, f := range files {
		rep.Issues = append(rep.Issues, f.Issues...)
	}
	rep.Issues = append(rep.Issues, PackageIssues(manifest)...)
	rep.CrossReferences = ValidateCrossReferences(manifest)
	rep.finalize()

	v.logger.Info("package validated",
		zap.String("study", manifest.StudyNumber),
		zap.Int("files", len(files)),
		zap.Int("errors", rep.Summary.Errors),
		zap.Int("warnings", rep.Summary.Warnings))
	return rep, nil
}
