// Package assembler selects the authoritative document version for every structure-node slot
// of a study and turns the selection into an ordered package manifest.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
	"github.com/hyperjump/ectd/internal/storage"
)

var (
	ErrStudyNotFound    = errors.New("study not found")
	ErrNoActiveTemplate = errors.New("no active template")
)

// Options controls document selection.
type Options struct {
	// IncludeDrafts lets DRAFT and PROCESSED documents fill slots that have no approved or
	// published version. Only for previews.
	IncludeDrafts bool `json:"include_drafts"`
}

// Assembler builds manifests from the data store.
type Assembler struct {
	store   storage.Store
	files   *storage.FileStore
	logger  *zap.Logger
	nowFunc func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithFileStore resolves document source paths against the byte store, so manifest source
// paths are absolute.
func WithFileStore(fs *storage.FileStore) Option {
	return func(a *Assembler) { a.files = fs }
}

// New creates an Assembler reading from store.
func New(store storage.Store, opts ...Option) *Assembler {
	a := &Assembler{store: store, logger: zap.NewNop(), nowFunc: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// studyData is everything one assembly reads from the store.
type studyData struct {
	study  *models.Study
	nodes  []*models.StructureNode
	bySlot map[string][]*models.Document
}

func (a *Assembler) load(ctx context.Context, studyID string) (*studyData, error) {
	study, err := a.store.GetStudy(ctx, studyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, studyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load study: %w", err)
	}
	tmpl, err := a.store.GetActiveTemplate(ctx, study.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w for study %s", ErrNoActiveTemplate, study.StudyNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	nodes, err := a.store.ListStructureNodes(ctx, tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load structure nodes: %w", err)
	}
	docs, err := a.store.ListStudyDocuments(ctx, study.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	bySlot := make(map[string][]*models.Document)
	for _, d := range docs {
		bySlot[d.SlotID] = append(bySlot[d.SlotID], d)
	}
	return &studyData{study: study, nodes: nodes, bySlot: bySlot}, nil
}

// CheckReadiness reports whether the study can be submitted.
func (a *Assembler) CheckReadiness(ctx context.Context, studyID string) (*models.ReadinessCheck, error) {
	data, err := a.load(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return a.readiness(ctx, data)
}

func (a *Assembler) readiness(ctx context.Context, data *studyData) (*models.ReadinessCheck, error) {
	rc := &models.ReadinessCheck{
		MissingRequired: []models.MissingNode{},
		PendingApproval: []models.PendingDocument{},
	}
	for _, n := range sortedNodes(data.nodes) {
		docs := data.bySlot[n.ID]
		if n.Required && SelectDocument(docs, false) == nil {
			rc.MissingRequired = append(rc.MissingRequired, models.MissingNode{NodeID: n.ID, Code: n.Code, Title: n.Title})
		}
		for _, d := range sortedByVersion(docs) {
			if d.Status.Pending() {
				rc.PendingApproval = append(rc.PendingApproval, models.PendingDocument{
					DocumentID: d.ID,
					NodeCode:   n.Code,
					NodeTitle:  n.Title,
					Version:    d.Version,
					Status:     d.Status,
				})
			}
		}
	}

	var err error
	if rc.ValidationErrors, err = a.store.CountFailedValidations(ctx, data.study.ID); err != nil {
		return nil, fmt.Errorf("failed to count validation errors: %w", err)
	}
	if rc.UnresolvedAnnotations, err = a.store.CountUnresolvedAnnotations(ctx, data.study.ID); err != nil {
		return nil, fmt.Errorf("failed to count annotations: %w", err)
	}
	rc.Ready = len(rc.MissingRequired) == 0 && rc.ValidationErrors == 0 && rc.UnresolvedAnnotations == 0
	return rc, nil
}

// Assemble selects one document per slot, maps each to its package target path and returns
// the manifest sorted by node code, with a fresh readiness check attached.
func (a *Assembler) Assemble(ctx context.Context, studyID string, opts Options) (*models.PackageManifest, error) {
	data, err := a.load(ctx, studyID)
	if err != nil {
		return nil, err
	}

	files := make([]models.PackageFile, 0, len(data.nodes))
	for _, n := range data.nodes {
		doc := SelectDocument(data.bySlot[n.ID], opts.IncludeDrafts)
		if doc == nil {
			continue
		}
		pf, err := a.packageFile(data.study, n, doc)
		if err != nil {
			a.logger.Warn("Skipping document", zap.String("document", doc.ID), zap.Error(err))
			continue
		}
		files = append(files, pf)
	}
	slices.SortStableFunc(files, func(x, y models.PackageFile) int {
		if c := naming.CompareCodes(x.NodeCode, y.NodeCode); c != 0 {
			return c
		}
		return strings.Compare(x.TargetPath, y.TargetPath)
	})

	rc, err := a.readiness(ctx, data)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Assembled package",
		zap.String("study", data.study.StudyNumber),
		zap.Int("files", len(files)),
		zap.Bool("ready", rc.Ready))

	return &models.PackageManifest{
		StudyID:         data.study.ID,
		StudyNumber:     data.study.StudyNumber,
		GeneratedAt:     a.nowFunc().UTC(),
		Files:           files,
		Readiness:       *rc,
		FolderStructure: naming.BuildFolderTree(files),
	}, nil
}

func (a *Assembler) packageFile(study *models.Study, n *models.StructureNode, d *models.Document) (models.PackageFile, error) {
	source := d.SourcePath
	if a.files != nil {
		full, err := a.files.GetFullPath(d.SourcePath)
		if err != nil {
			return models.PackageFile{}, err
		}
		source = full
	}
	fileName := naming.SanitizeFileName(path.Base(naming.ToSlash(d.SourcePath)))
	return models.PackageFile{
		SourceDocumentID: d.ID,
		SourcePath:       source,
		TargetPath:       naming.TargetPath(n.Code, study.StudyNumber, fileName),
		NodeCode:         n.Code,
		NodeTitle:        n.Title,
		FileName:         fileName,
		Version:          d.Version,
		PageCount:        d.PageCount,
		FileSize:         d.FileSize,
	}, nil
}

// tier ranks a status for selection; zero means the document is not eligible.
func tier(s models.DocumentStatus, includeDrafts bool) int {
	switch s {
	case models.StatusPublished:
		return 3
	case models.StatusApproved:
		return 2
	case models.StatusDraft, models.StatusProcessed:
		if includeDrafts {
			return 1
		}
	}
	return 0
}

// SelectDocument picks the best document of one slot: PUBLISHED over APPROVED over DRAFT or
// PROCESSED (only with includeDrafts), highest version within a tier. Nil when none qualifies.
func SelectDocument(docs []*models.Document, includeDrafts bool) *models.Document {
	var best *models.Document
	bestTier := 0
	for _, d := range docs {
		t := tier(d.Status, includeDrafts)
		if t == 0 {
			continue
		}
		if t > bestTier || (t == bestTier && d.Version > best.Version) {
			best, bestTier = d, t
		}
	}
	return best
}

func sortedNodes(nodes []*models.StructureNode) []*models.StructureNode {
	out := slices.Clone(nodes)
	slices.SortStableFunc(out, func(x, y *models.StructureNode) int {
		return naming.CompareCodes(x.Code, y.Code)
	})
	return out
}

func sortedByVersion(docs []*models.Document) []*models.Document {
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(x, y *models.Document) int { return x.Version - y.Version })
	return out
}
