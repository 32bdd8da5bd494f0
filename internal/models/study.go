package models

import "time"

// Study is a clinical study whose documents are packaged for submission.
type Study struct {
	ID          string    `json:"id" yaml:"id"`
	StudyNumber string    `json:"study_number" yaml:"study_number"`
	Title       string    `json:"title" yaml:"title"`
	Sponsor     string    `json:"sponsor,omitempty" yaml:"sponsor,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Template is a document-structure template; a study has at most one active template.
type Template struct {
	ID      string `json:"id" yaml:"id"`
	StudyID string `json:"study_id" yaml:"-"`
	Name    string `json:"name" yaml:"name"`
	Active  bool   `json:"active" yaml:"active"`
}

// StructureNode is one slot in a template tree. Code is a dotted hierarchical key such as "16.2.1".
type StructureNode struct {
	ID           string  `json:"id" yaml:"id"`
	TemplateID   string  `json:"template_id" yaml:"-"`
	Code         string  `json:"code" yaml:"code"`
	Title        string  `json:"title" yaml:"title"`
	ParentID     *string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Required     bool    `json:"required" yaml:"required"`
	DocumentType string  `json:"document_type,omitempty" yaml:"document_type,omitempty"`
	SortOrder    int     `json:"sort_order" yaml:"sort_order"`
}
