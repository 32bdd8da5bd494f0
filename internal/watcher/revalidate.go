package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

// Revalidator is a Handler that runs the per-file checks on changed uploads, stores one
// result per check and moves DRAFT documents to PROCESSED or PROCESSING_FAILED.
type Revalidator struct {
	store     storage.ValidationRecorder
	validator *validator.Validator
	filesRoot string
	logger    *zap.Logger
	now       func() time.Time
	onResult  func(Outcome)
}

// Outcome describes one revalidation.
type Outcome struct {
	Path       string
	DocumentID string
	Passed     bool
	Status     models.DocumentStatus
	Results    int
}

// RevalidatorOption configures a Revalidator.
type RevalidatorOption func(*Revalidator)

// WithRevalidatorLogger sets the logger.
func WithRevalidatorLogger(l *zap.Logger) RevalidatorOption {
	return func(r *Revalidator) { r.logger = l }
}

// WithFilesRoot sets the root that stored source paths are relative to.
func WithFilesRoot(root string) RevalidatorOption {
	return func(r *Revalidator) { r.filesRoot = root }
}

// OnResult registers a callback invoked after each completed revalidation.
func OnResult(fn func(Outcome)) RevalidatorOption {
	return func(r *Revalidator) { r.onResult = fn }
}

// NewRevalidator creates a Revalidator recording into store.
func NewRevalidator(store storage.ValidationRecorder, v *validator.Validator, opts ...RevalidatorOption) *Revalidator {
	r := &Revalidator{store: store, validator: v, logger: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// FileChanged validates the document stored at path. Files no document refers to are ignored.
func (r *Revalidator) FileChanged(ctx context.Context, path string) {
	out, err := r.Revalidate(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Debug("No document for changed file", zap.String("path", path))
		return
	}
	if err != nil {
		r.logger.Warn("Revalidation failed", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Info("Revalidated document",
		zap.String("path", path),
		zap.String("document_id", out.DocumentID),
		zap.Bool("passed", out.Passed),
		zap.String("status", string(out.Status)))
	if r.onResult != nil {
		r.onResult(out)
	}
}

// FileRemoved logs the removal; the document keeps its last results until the file returns.
func (r *Revalidator) FileRemoved(_ context.Context, path string) {
	r.logger.Info("Upload removed", zap.String("path", path))
}

// Revalidate runs the checks for the document whose source is path and records the results.
func (r *Revalidator) Revalidate(ctx context.Context, path string) (Outcome, error) {
	doc, err := r.lookup(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	res := r.validator.ValidateFile(ctx, path, "")
	results := res.Results(doc.ID, r.now().UTC())
	if err := r.store.RecordValidationResults(ctx, doc.ID, results); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Path: path, DocumentID: doc.ID, Passed: res.Passed(), Status: doc.Status, Results: len(results)}
	if doc.Status != models.StatusDraft {
		return out, nil
	}
	next := models.StatusProcessed
	if !out.Passed {
		next = models.StatusProcessingFailed
	}
	if err := r.store.TransitionDocumentStatus(ctx, doc.ID, next); err != nil {
		return out, err
	}
	out.Status = next
	return out, nil
}

// lookup finds the document by its path relative to the files root, then by the path itself.
func (r *Revalidator) lookup(ctx context.Context, path string) (*models.Document, error) {
	if r.filesRoot != "" && storage.Within(r.filesRoot, path) {
		if rel, err := filepath.Rel(r.filesRoot, path); err == nil {
			doc, err := r.store.FindDocumentBySourcePath(ctx, filepath.ToSlash(rel))
			if err == nil || !errors.Is(err, storage.ErrNotFound) {
				return doc, err
			}
		}
	}
	return r.store.FindDocumentBySourcePath(ctx, path)
}
