// Package storage persists studies, structure templates, documents and review data, and
// addresses uploaded files on disk.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/ectd/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the read side consumed by package assembly and validation.
type Store interface {
	GetStudy(ctx context.Context, id string) (*models.Study, error)
	GetStudyByNumber(ctx context.Context, studyNumber string) (*models.Study, error)
	ListStudies(ctx context.Context) ([]*models.Study, error)
	GetActiveTemplate(ctx context.Context, studyID string) (*models.Template, error)
	ListStructureNodes(ctx context.Context, templateID string) ([]*models.StructureNode, error)
	ListStudyDocuments(ctx context.Context, studyID string) ([]*models.Document, error)

	// CountFailedValidations counts stored results with passed=false over the study's documents.
	CountFailedValidations(ctx context.Context, studyID string) (int, error)
	// CountUnresolvedAnnotations counts OPEN CORRECTION_REQUIRED annotations over the study's documents.
	CountUnresolvedAnnotations(ctx context.Context, studyID string) (int, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// ValidationRecorder is the write side used by validation runs.
type ValidationRecorder interface {
	FindDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error)
	// RecordValidationResults replaces the stored results of a document with results.
	RecordValidationResults(ctx context.Context, documentID string, results []*models.ValidationResult) error
	// TransitionDocumentStatus moves a document along the workflow, rejecting transitions the
	// workflow does not allow with *models.ErrInvalidTransition.
	TransitionDocumentStatus(ctx context.Context, documentID string, to models.DocumentStatus) error
}

// Seeder writes study definitions.
type Seeder interface {
	CreateStudy(ctx context.Context, s *models.Study) error
	CreateTemplate(ctx context.Context, t *models.Template) error
	CreateStructureNode(ctx context.Context, n *models.StructureNode) error
	CreateDocument(ctx context.Context, d *models.Document) error
	CreateAnnotation(ctx context.Context, a *models.Annotation) error
}

// Database is a store supporting every operation.
type Database interface {
	Store
	ValidationRecorder
	Seeder
}

// Stats holds row counts.
type Stats struct {
	Studies           int64 `json:"studies"`
	Documents         int64 `json:"documents"`
	ValidationResults int64 `json:"validation_results"`
	FailedValidations int64 `json:"failed_validations"`
}

// Open connects to the configured backend: "sqlite" uses path, "postgres" uses url.
func Open(ctx context.Context, driver, path, url string) (Database, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, url)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
