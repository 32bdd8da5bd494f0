package hyperlink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/pdfdoc"
)

// Entry statuses used in reports.
const (
	StatusBroken   = "broken"
	StatusExternal = "external"
)

// Entry is one row of the broken or external link lists.
type Entry struct {
	SourceFile string          `json:"source_file"`
	Page       int             `json:"page"`
	LinkType   models.LinkType `json:"link_type"`
	Target     string          `json:"target"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// FileSummary is the per-file part of a report.
type FileSummary struct {
	SourceFile string `json:"source_file"`
	TargetPath string `json:"target_path"`
	LinkCount  int    `json:"link_count"`
	Broken     int    `json:"broken"`
	Error      string `json:"error,omitempty"`
}

// Report is the package-wide hyperlink report.
type Report struct {
	GeneratedAt   time.Time               `json:"generated_at"`
	TotalFiles    int                     `json:"total_files"`
	TotalLinks    int                     `json:"total_links"`
	ValidLinks    int                     `json:"valid_links"`
	ByType        map[models.LinkType]int `json:"by_type"`
	BrokenLinks   []Entry                 `json:"broken_links"`
	ExternalLinks []Entry                 `json:"external_links"`
	Files         []FileSummary           `json:"files"`
	Warnings      []string                `json:"warnings,omitempty"`
}

// Reporter builds hyperlink reports for assembled packages.
type Reporter struct {
	logger  *zap.Logger
	resolve func(models.PackageFile) string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithSourceResolver maps a package file to the PDF that should be scanned. The default is
// the file's SourcePath.
func WithSourceResolver(fn func(models.PackageFile) string) Option {
	return func(r *Reporter) { r.resolve = fn }
}

// NewReporter creates a Reporter.
func NewReporter(opts ...Option) *Reporter {
	r := &Reporter{
		logger:  zap.NewNop(),
		resolve: func(f models.PackageFile) string { return f.SourcePath },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Generate extracts, classifies and validates every link of every manifest file. A file that
// cannot be read adds a warning and the report continues.
func (r *Reporter) Generate(ctx context.Context, manifest *models.PackageManifest) (*Report, error) {
	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		ByType: map[models.LinkType]int{
			models.LinkInternal:      0,
			models.LinkCrossDocument: 0,
			models.LinkExternal:      0,
			models.LinkUnknown:       0,
		},
	}
	for _, f := range manifest.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.TotalFiles++
		summary := r.scanFile(f, manifest.Files, rep)
		rep.Files = append(rep.Files, summary)
	}
	return rep, nil
}

func (r *Reporter) scanFile(f models.PackageFile, files []models.PackageFile, rep *Report) FileSummary {
	summary := FileSummary{SourceFile: f.SourcePath, TargetPath: f.TargetPath}
	fail := func(err error) FileSummary {
		msg := fmt.Sprintf("%s: %v", f.TargetPath, err)
		rep.Warnings = append(rep.Warnings, msg)
		r.logger.Warn("Hyperlink extraction failed", zap.String("path", f.TargetPath), zap.Error(err))
		summary.Error = err.Error()
		return summary
	}

	doc, err := pdfdoc.Open(r.resolve(f))
	if err != nil {
		return fail(err)
	}
	links, err := ExtractLinks(doc, f.TargetPath)
	if err != nil {
		return fail(err)
	}
	pageCount := doc.PageCount()
	named := HasNamedDestinations(doc)

	for _, link := range links {
		link.LinkType = ClassifyLink(link, f.TargetPath)
		rep.ByType[link.LinkType]++
		rep.TotalLinks++
		summary.LinkCount++

		var res models.LinkValidationResult
		switch link.LinkType {
		case models.LinkInternal:
			res = ValidateInternalLink(link, pageCount, named)
		case models.LinkCrossDocument:
			res = ValidateCrossDocumentLink(link, f.TargetPath, files)
		case models.LinkExternal:
			rep.ExternalLinks = append(rep.ExternalLinks, entryFor(link, StatusExternal, ""))
			continue
		default:
			continue
		}
		if res.IsValid {
			rep.ValidLinks++
			continue
		}
		summary.Broken++
		rep.BrokenLinks = append(rep.BrokenLinks, entryFor(link, StatusBroken, res.Error))
	}
	return summary
}

func entryFor(link models.ExtractedLink, status, errMsg string) Entry {
	return Entry{
		SourceFile: link.SourceFile,
		Page:       link.PageNumber,
		LinkType:   link.LinkType,
		Target:     describeTarget(link),
		Status:     status,
		Error:      errMsg,
	}
}

func describeTarget(link models.ExtractedLink) string {
	switch {
	case link.TargetURI != "":
		return link.TargetURI
	case link.TargetDestination != "":
		return "#" + link.TargetDestination
	case link.TargetPage != nil:
		return fmt.Sprintf("page %d", *link.TargetPage)
	}
	return ""
}
