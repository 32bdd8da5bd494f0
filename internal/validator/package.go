package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
)

// Package-level check names.
const (
	CheckEmptyPackage          = "empty-package"
	CheckMissingRequired       = "missing-required"
	CheckPendingApproval       = "pending-approval"
	CheckDocumentValidation    = "document-validation"
	CheckUnresolvedAnnotations = "unresolved-annotations"
	CheckDuplicateFileNames    = "duplicate-file-names"
	CheckStudyNumber           = "study-number"
)

// PackageIssues runs the package-level checks over a manifest and its readiness.
func PackageIssues(m *models.PackageManifest) []models.ValidationIssue {
	var issues []models.ValidationIssue
	add := func(sev models.Severity, check, msg string, details map[string]any) {
		issues = append(issues, models.ValidationIssue{Severity: sev, Check: check, Message: msg, Details: details})
	}

	if len(m.Files) == 0 {
		add(models.SeverityError, CheckEmptyPackage, "package contains no files", nil)
	}
	for _, n := range m.Readiness.MissingRequired {
		add(models.SeverityError, CheckMissingRequired,
			fmt.Sprintf("required section %s %s has no approved or published document", n.Code, n.Title),
			map[string]any{"node_id": n.NodeID, "code": n.Code})
	}
	if n := len(m.Readiness.PendingApproval); n > 0 {
		add(models.SeverityInfo, CheckPendingApproval, fmt.Sprintf("%d document(s) pending approval", n), nil)
	}
	if n := m.Readiness.ValidationErrors; n > 0 {
		add(models.SeverityError, CheckDocumentValidation, fmt.Sprintf("%d stored document validation failure(s)", n), nil)
	}
	if n := m.Readiness.UnresolvedAnnotations; n > 0 {
		add(models.SeverityWarning, CheckUnresolvedAnnotations, fmt.Sprintf("%d unresolved correction annotation(s)", n), nil)
	}
	dups := duplicateNames(m.Files)
	for _, name := range slices.Sorted(maps.Keys(dups)) {
		paths := dups[name]
		add(models.SeverityWarning, CheckDuplicateFileNames,
			fmt.Sprintf("file name %s is used by %d files", name, len(paths)),
			map[string]any{"paths": paths})
	}
	if strings.TrimSpace(m.StudyNumber) == "" {
		add(models.SeverityWarning, CheckStudyNumber, "study number is missing", nil)
	}
	return issues
}

// duplicateNames groups target paths by sanitized file name, keeping names used more than once.
func duplicateNames(files []models.PackageFile) map[string][]string {
	byName := make(map[string][]string)
	for _, f := range files {
		name := f.FileName
		if name == "" {
			name = f.TargetPath[strings.LastIndex(f.TargetPath, "/")+1:]
		}
		key := naming.SanitizeFileName(name)
		byName[key] = append(byName[key], f.TargetPath)
	}
	for k, v := range byName {
		if len(v) < 2 {
			delete(byName, k)
		}
	}
	return byName
}

// ValidateCrossReferences is the hook for cross-document reference checks over a package.
// It reports zero counts: links are resolved by the hyperlink report instead.
func ValidateCrossReferences(_ *models.PackageManifest) CrossReferenceResult {
	return CrossReferenceResult{}
}
