// Package models defines the core data structures shared by the assembly, validation and export
// pipeline: studies, structure nodes, documents, package manifests, bookmarks, links and issues.
package models

import (
	"fmt"
	"time"
)

// DocumentStatus is the workflow state of a document version.
type DocumentStatus string

const (
	StatusDraft             DocumentStatus = "DRAFT"
	StatusProcessed         DocumentStatus = "PROCESSED"
	StatusProcessingFailed  DocumentStatus = "PROCESSING_FAILED"
	StatusInReview          DocumentStatus = "IN_REVIEW"
	StatusCorrectionsNeeded DocumentStatus = "CORRECTIONS_NEEDED"
	StatusApproved          DocumentStatus = "APPROVED"
	StatusPublished         DocumentStatus = "PUBLISHED"
)

// transitions lists the allowed next states for every status.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusDraft:             {StatusProcessed, StatusProcessingFailed},
	StatusProcessingFailed:  {StatusDraft},
	StatusProcessed:         {StatusInReview},
	StatusInReview:          {StatusApproved, StatusCorrectionsNeeded},
	StatusCorrectionsNeeded: {StatusDraft, StatusInReview},
	StatusApproved:          {StatusPublished},
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusProcessed, StatusProcessingFailed, StatusInReview,
		StatusCorrectionsNeeded, StatusApproved, StatusPublished:
		return true
	}
	return false
}

// CanTransition reports whether the workflow allows moving from s to next.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Pending reports whether a document in this status still waits for approval.
func (s DocumentStatus) Pending() bool {
	switch s {
	case StatusDraft, StatusProcessed, StatusInReview, StatusCorrectionsNeeded:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when a status change is not allowed by the workflow.
type ErrInvalidTransition struct {
	From DocumentStatus
	To   DocumentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Document is one uploaded version of an artifact targeting a structure node slot.
type Document struct {
	ID         string         `json:"id" yaml:"id"`
	StudyID    string         `json:"study_id" yaml:"-"`
	SlotID     string         `json:"slot_id" yaml:"slot_id"`
	SourcePath string         `json:"source_path" yaml:"source_path"`
	Version    int            `json:"version" yaml:"version"`
	Status     DocumentStatus `json:"status" yaml:"status"`
	FileSize   int64          `json:"file_size" yaml:"file_size"`
	PageCount  *int           `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	CreatedAt  time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time      `json:"updated_at" yaml:"-"`
}

// AnnotationType classifies a review annotation.
type AnnotationType string

const (
	AnnotationComment            AnnotationType = "COMMENT"
	AnnotationQuestion           AnnotationType = "QUESTION"
	AnnotationCorrectionRequired AnnotationType = "CORRECTION_REQUIRED"
)

// AnnotationStatus is the resolution state of a review annotation.
type AnnotationStatus string

const (
	AnnotationOpen     AnnotationStatus = "OPEN"
	AnnotationResolved AnnotationStatus = "RESOLVED"
)

// Annotation is a reviewer remark attached to a document.
type Annotation struct {
	ID         string           `json:"id" yaml:"id"`
	DocumentID string           `json:"document_id" yaml:"document_id"`
	Type       AnnotationType   `json:"type" yaml:"type"`
	Status     AnnotationStatus `json:"status" yaml:"status"`
	Comment    string           `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// ValidationResult is one stored outcome of a check run against a document.
type ValidationResult struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	CheckName  string    `json:"check_name"`
	Passed     bool      `json:"passed"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
