package validator

import (
	"time"

	"github.com/hyperjump/ectd/internal/models"
)

// CheckRun is the outcome of one named check on one file.
type CheckRun struct {
	Name     string          `json:"name"`
	Severity models.Severity `json:"severity"`
	Passed   bool            `json:"passed"`
	Skipped  bool            `json:"skipped,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// FileResult holds the check runs and issues of one file.
type FileResult struct {
	Path       string                   `json:"path"`
	Target     string                   `json:"target,omitempty"`
	DocumentID string                   `json:"document_id,omitempty"`
	Accessible bool                     `json:"accessible"`
	Checks     []CheckRun               `json:"checks,omitempty"`
	Issues     []models.ValidationIssue `json:"issues,omitempty"`
}

// Passed reports whether no issue of the file is an error.
func (r FileResult) Passed() bool {
	for _, i := range r.Issues {
		if i.Severity == models.SeverityError {
			return false
		}
	}
	return true
}

// Results converts the check runs into stored validation results. Skipped checks are left out;
// an inaccessible file yields a single failed file-access result.
func (r FileResult) Results(documentID string, now time.Time) []*models.ValidationResult {
	if !r.Accessible {
		msg := ""
		if len(r.Issues) > 0 {
			msg = r.Issues[0].Message
		}
		return []*models.ValidationResult{{DocumentID: documentID, CheckName: CheckFileAccess, Message: msg, CreatedAt: now}}
	}
	out := make([]*models.ValidationResult, 0, len(r.Checks))
	for _, c := range r.Checks {
		if c.Skipped {
			continue
		}
		out = append(out, &models.ValidationResult{
			DocumentID: documentID,
			CheckName:  c.Name,
			Passed:     c.Passed,
			Message:    c.Message,
			CreatedAt:  now,
		})
	}
	return out
}

// CrossReferenceResult counts cross-document references checked during package validation.
type CrossReferenceResult struct {
	Total  int `json:"total"`
	Valid  int `json:"valid"`
	Broken int `json:"broken"`
}

// Summary counts issues by severity.
type Summary struct {
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
	Infos        int `json:"infos"`
	FilesChecked int `json:"files_checked"`
	FilesFailed  int `json:"files_failed"`
}

// Report is the aggregate validation report of a package.
type Report struct {
	StudyID         string                   `json:"study_id"`
	StudyNumber     string                   `json:"study_number"`
	GeneratedAt     time.Time                `json:"generated_at"`
	Valid           bool                     `json:"valid"`
	Ready           bool                     `json:"ready"`
	Summary         Summary                  `json:"summary"`
	Issues          []models.ValidationIssue `json:"issues"`
	Files           []FileResult             `json:"files"`
	CrossReferences CrossReferenceResult     `json:"cross_references"`
	XML             []XMLResult              `json:"xml,omitempty"`

	readiness bool
}

// AddXML merges the findings of an XML check into the report.
func (r *Report) AddXML(res XMLResult) {
	r.XML = append(r.XML, res)
	r.Issues = append(r.Issues, res.Issues...)
	r.finalize()
}

// finalize recounts issues and derives validity: valid means no errors, ready additionally
// requires assembly readiness.
func (r *Report) finalize() {
	s := Summary{FilesChecked: len(r.Files)}
	for _, f := range r.Files {
		if !f.Passed() {
			s.FilesFailed++
		}
	}
	for _, i := range r.Issues {
		switch i.Severity {
		case models.SeverityError:
			s.Errors++
		case models.SeverityWarning:
			s.Warnings++
		default:
			s.Infos++
		}
	}
	r.Summary = s
	r.Valid = s.Errors == 0
	r.Ready = r.Valid && r.readiness
}
