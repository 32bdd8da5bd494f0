// Package checks holds the named per-file compliance checks run by the package validator.
package checks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hyperjump/ectd/internal/models"
)

// Check names.
const (
	FileSize           = "file-size"
	PDFParseable       = "pdf-parseable"
	PDFVersion         = "pdf-version"
	NotEncrypted       = "not-encrypted"
	NamingConvention   = "naming-convention"
	NoJavaScript       = "no-javascript"
	BookmarksExist     = "bookmarks-exist"
	PageSize           = "page-size"
	ExternalHyperlinks = "external-hyperlinks"
	PDFACompliance     = "pdfa-compliance"
)

// DefaultChecks is the ordered list run when no checks are configured.
var DefaultChecks = []string{FileSize, PDFParseable, PDFVersion, NotEncrypted, NamingConvention, NoJavaScript}

var warningChecks = map[string]bool{
	BookmarksExist:     true,
	PageSize:           true,
	ExternalHyperlinks: true,
	PDFACompliance:     true,
}

// DefaultSeverity is the severity a failing check reports unless configured otherwise.
func DefaultSeverity(name string) models.Severity {
	if warningChecks[name] {
		return models.SeverityWarning
	}
	return models.SeverityError
}

// Outcome is the result of one check on one file. Skipped outcomes produce no issue.
type Outcome struct {
	Passed  bool
	Skipped bool
	Message string
	Details map[string]any
}

func pass() Outcome { return Outcome{Passed: true} }

func failf(format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

func skipped(reason string) Outcome {
	return Outcome{Passed: true, Skipped: true, Message: reason}
}

// Func runs a check against one file.
type Func func(ctx context.Context, f *File) Outcome

// Check is a registered, named check.
type Check struct {
	Name        string
	Description string
	Run         Func
}

// Registry maps check names to implementations. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry returns a registry holding every built-in check configured by cfg.
func NewRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := &Registry{checks: make(map[string]Check)}
	for _, c := range builtins(cfg) {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a check.
func (r *Registry) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[c.Name] = c
}

// Lookup returns the check registered under name.
func (r *Registry) Lookup(name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[name]
	return c, ok
}

// Names returns the registered check names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Run runs the named check, converting a panic inside the check into a failed outcome.
func (r *Registry) Run(ctx context.Context, name string, f *File) (out Outcome) {
	c, ok := r.Lookup(name)
	if !ok {
		return failf("unknown check %q", name)
	}
	defer func() {
		if p := recover(); p != nil {
			out = failf("check %s crashed: %v", name, p)
		}
	}()
	return c.Run(ctx, f)
}
