package models

import "time"

// PackageFile is one document selected for a package, with its place in the eCTD tree.
// It is derived on every assembly and never persisted.
type PackageFile struct {
	SourceDocumentID string `json:"source_document_id"`
	SourcePath       string `json:"source_path"`
	TargetPath       string `json:"target_path"`
	NodeCode         string `json:"node_code"`
	NodeTitle        string `json:"node_title"`
	FileName         string `json:"file_name"`
	Version          int    `json:"version"`
	PageCount        *int   `json:"page_count,omitempty"`
	FileSize         int64  `json:"file_size"`
}

// FolderNode is a directory of the package tree. Children and Files are sorted lexically.
type FolderNode struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Children []*FolderNode `json:"children"`
	Files    []string      `json:"files"`
}

// MissingNode is a required slot with no approved or published document.
type MissingNode struct {
	NodeID string `json:"node_id"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

// PendingDocument is a document still waiting for approval.
type PendingDocument struct {
	DocumentID string         `json:"document_id"`
	NodeCode   string         `json:"node_code"`
	NodeTitle  string         `json:"node_title"`
	Version    int            `json:"version"`
	Status     DocumentStatus `json:"status"`
}

// ReadinessCheck summarises whether a study can be submitted.
type ReadinessCheck struct {
	Ready                 bool              `json:"ready"`
	MissingRequired       []MissingNode     `json:"missing_required"`
	PendingApproval       []PendingDocument `json:"pending_approval"`
	ValidationErrors      int               `json:"validation_errors"`
	UnresolvedAnnotations int               `json:"unresolved_annotations"`
}

// PackageManifest is the root aggregate of an assembly run.
type PackageManifest struct {
	StudyID         string         `json:"study_id"`
	StudyNumber     string         `json:"study_number"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Files           []PackageFile  `json:"files"`
	Readiness       ReadinessCheck `json:"readiness"`
	FolderStructure []*FolderNode  `json:"folder_structure"`
}

// LeafEntry is the XML-bound form of a package file. Href always uses forward slashes.
type LeafEntry struct {
	ID           string `json:"id"`
	Href         string `json:"href"`
	Checksum     string `json:"checksum"`
	ChecksumType string `json:"checksum_type"`
	FileSize     int64  `json:"file_size"`
	Title        string `json:"title"`
	NodeCode     string `json:"node_code"`
	Operation    string `json:"operation,omitempty"`
	ModifiedFile string `json:"modified_file,omitempty"`
}
