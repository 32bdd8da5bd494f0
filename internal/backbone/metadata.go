// Package backbone serializes a package manifest into the eCTD index.xml and the US regional
// us-regional.xml backbone documents.
package backbone

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SubmissionType is the submission-type element value.
type SubmissionType string

const (
	SubmissionOriginal       SubmissionType = "original"
	SubmissionAmendment      SubmissionType = "amendment"
	SubmissionSupplement     SubmissionType = "supplement"
	SubmissionResubmission   SubmissionType = "resubmission"
	SubmissionReport         SubmissionType = "report"
	SubmissionCorrespondence SubmissionType = "correspondence"
)

// SubmissionTypes lists every known submission type.
var SubmissionTypes = []SubmissionType{
	SubmissionOriginal, SubmissionAmendment, SubmissionSupplement,
	SubmissionResubmission, SubmissionReport, SubmissionCorrespondence,
}

// Known reports whether t is a known submission type.
func (t SubmissionType) Known() bool {
	for _, k := range SubmissionTypes {
		if t == k {
			return true
		}
	}
	return false
}

// InitialSequence is the sequence number of an original submission.
const InitialSequence = "0000"

var sequencePattern = regexp.MustCompile(`^\d{4}$`)

// ErrSequenceRange is returned for sequence numbers outside 0-9999.
var ErrSequenceRange = errors.New("sequence number out of range")

// FormatSequenceNumber zero-pads n to four digits.
func FormatSequenceNumber(n int) (string, error) {
	if n < 0 || n > 9999 {
		return "", fmt.Errorf("%w: %d", ErrSequenceRange, n)
	}
	return fmt.Sprintf("%04d", n), nil
}

// DetermineSubmissionType derives the type from a sequence number: "0000" is an original
// submission, anything else an amendment. Supplements are only ever set explicitly.
func DetermineSubmissionType(sequence string) SubmissionType {
	if sequence == InitialSequence {
		return SubmissionOriginal
	}
	return SubmissionAmendment
}

// Sequence describes one submission sequence.
type Sequence struct {
	Number          string         `json:"number" yaml:"number"`
	Type            SubmissionType `json:"type" yaml:"type"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	RelatedSequence string         `json:"related_sequence,omitempty" yaml:"related_sequence,omitempty"`
	Date            time.Time      `json:"date" yaml:"date"`
}

// Normalize fills the derived type and today's date when they are missing.
func (s *Sequence) Normalize(now time.Time) {
	if s.Number == "" {
		s.Number = InitialSequence
	}
	if s.Type == "" {
		s.Type = DetermineSubmissionType(s.Number)
	}
	if s.Date.IsZero() {
		s.Date = now
	}
}

// Validate checks the sequence before it is written.
func (s Sequence) Validate() error {
	types := make([]any, len(SubmissionTypes))
	for i, t := range SubmissionTypes {
		types[i] = t
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Number, validation.Required, validation.Match(sequencePattern).Error("must be exactly four digits")),
		validation.Field(&s.Type, validation.Required, validation.In(types...)),
		validation.Field(&s.RelatedSequence, validation.Match(sequencePattern).Error("must be exactly four digits")),
		validation.Field(&s.Date, validation.Required),
	)
}

// Applicant identifies the sponsor submitting the package.
type Applicant struct {
	Name         string `json:"name" yaml:"name"`
	DUNS         string `json:"duns,omitempty" yaml:"duns,omitempty"`
	ContactName  string `json:"contact_name,omitempty" yaml:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty" yaml:"contact_phone,omitempty"`
}

// Product identifies the application the submission belongs to.
type Product struct {
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	ApplicationNumber string `json:"application_number,omitempty" yaml:"application_number,omitempty"`
	ApplicationType   string `json:"application_type,omitempty" yaml:"application_type,omitempty"`
	EstablishmentID   string `json:"establishment_id,omitempty" yaml:"establishment_id,omitempty"`
}

// Metadata is the descriptive content of both backbone documents.
type Metadata struct {
	Applicant   Applicant `json:"applicant" yaml:"applicant"`
	Product     Product   `json:"product" yaml:"product"`
	StudyNumber string    `json:"study_number" yaml:"study_number"`
	StudyTitle  string    `json:"study_title,omitempty" yaml:"study_title,omitempty"`
	// Form356hRef and CoverLetterRef reference documents filed outside the package.
	Form356hRef    string `json:"form_356h_ref,omitempty" yaml:"form_356h_ref,omitempty"`
	CoverLetterRef string `json:"cover_letter_ref,omitempty" yaml:"cover_letter_ref,omitempty"`
}

var dunsPattern = regexp.MustCompile(`^\d{9}$`)

// Validate checks the metadata before it is written.
func (m Metadata) Validate() error {
	if err := validation.ValidateStruct(&m.Applicant,
		validation.Field(&m.Applicant.Name, validation.Required),
		validation.Field(&m.Applicant.DUNS, validation.Match(dunsPattern).Error("must be nine digits")),
	); err != nil {
		return fmt.Errorf("applicant: %w", err)
	}
	if err := validation.ValidateStruct(&m.Product,
		validation.Field(&m.Product.ApplicationType, validation.In("NDA", "ANDA", "BLA", "IND", "DMF", "EUA")),
	); err != nil {
		return fmt.Errorf("product: %w", err)
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.StudyNumber, validation.Required),
	)
}
