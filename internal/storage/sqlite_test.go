package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ectd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "ectd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_StudyAndTemplate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	study := &models.Study{StudyNumber: "ABC-123", Title: "Phase III", Sponsor: "Acme"}
	if err := store.CreateStudy(ctx, study); err != nil {
		t.Fatal(err)
	}
	if study.ID == "" {
		t.Fatal("ID should be assigned")
	}
	got, err := store.GetStudyByNumber(ctx, "ABC-123")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != study.ID || got.Sponsor != "Acme" {
		t.Errorf("got %+v", got)
	}
	if _, err := store.GetStudy(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.GetActiveTemplate(ctx, study.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without template, got %v", err)
	}
	if err := store.CreateTemplate(ctx, &models.Template{StudyID: study.ID, Name: "old", Active: false}); err != nil {
		t.Fatal(err)
	}
	tmpl := &models.Template{StudyID: study.ID, Name: "CSR", Active: true}
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatal(err)
	}
	active, err := store.GetActiveTemplate(ctx, study.ID)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != tmpl.ID {
		t.Errorf("active template: got %s, want %s", active.Name, tmpl.Name)
	}

	parent := &models.StructureNode{TemplateID: tmpl.ID, Code: "16", Title: "Appendices", SortOrder: 1}
	if err := store.CreateStructureNode(ctx, parent); err != nil {
		t.Fatal(err)
	}
	child := &models.StructureNode{TemplateID: tmpl.ID, Code: "16.1.1", Title: "Protocol", ParentID: &parent.ID, Required: true, SortOrder: 2}
	if err := store.CreateStructureNode(ctx, child); err != nil {
		t.Fatal(err)
	}
	nodes, err := store.ListStructureNodes(ctx, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[0].Code != "16" || nodes[1].ParentID == nil || *nodes[1].ParentID != parent.ID || !nodes[1].Required {
		t.Errorf("unexpected nodes %+v %+v", nodes[0], nodes[len(nodes)-1])
	}
	if nodes[0].ParentID != nil {
		t.Error("root node should have no parent")
	}

	studies, err := store.ListStudies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(studies) != 1 {
		t.Errorf("expected 1 study, got %d", len(studies))
	}
}

func TestSQLiteStore_DocumentsAndReview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	study := &models.Study{StudyNumber: "S-1", Title: "T"}
	if err := store.CreateStudy(ctx, study); err != nil {
		t.Fatal(err)
	}
	pages := 12
	v1 := &models.Document{StudyID: study.ID, SlotID: "slot", SourcePath: "s/csr.pdf", Version: 1, FileSize: 100, PageCount: &pages}
	v2 := &models.Document{StudyID: study.ID, SlotID: "slot", SourcePath: "s/csr.pdf", Version: 2, Status: models.StatusApproved}
	for _, d := range []*models.Document{v1, v2} {
		if err := store.CreateDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if v1.Status != models.StatusDraft {
		t.Errorf("default status: got %s", v1.Status)
	}
	if err := store.CreateDocument(ctx, &models.Document{StudyID: study.ID, Status: "BOGUS"}); err == nil {
		t.Error("expected error for invalid status")
	}

	docs, err := store.ListStudyDocuments(ctx, study.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].PageCount == nil || *docs[0].PageCount != 12 || docs[1].PageCount != nil {
		t.Fatalf("unexpected documents %+v", docs)
	}

	latest, err := store.FindDocumentBySourcePath(ctx, "s/csr.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != v2.ID {
		t.Errorf("expected newest version, got v%d", latest.Version)
	}

	results := []*models.ValidationResult{
		{CheckName: "file-size", Passed: true},
		{CheckName: "not-encrypted", Passed: false, Message: "encrypted"},
	}
	if err := store.RecordValidationResults(ctx, v1.ID, results); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountFailedValidations(ctx, study.ID); n != 1 {
		t.Errorf("failed validations: got %d, want 1", n)
	}
	if err := store.RecordValidationResults(ctx, v1.ID, []*models.ValidationResult{{CheckName: "file-size", Passed: true}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountFailedValidations(ctx, study.ID); n != 0 {
		t.Errorf("a new run replaces old results: got %d failures", n)
	}

	annotations := []*models.Annotation{
		{DocumentID: v1.ID, Type: models.AnnotationCorrectionRequired, Status: models.AnnotationOpen},
		{DocumentID: v1.ID, Type: models.AnnotationCorrectionRequired, Status: models.AnnotationResolved},
		{DocumentID: v2.ID, Type: models.AnnotationComment, Status: models.AnnotationOpen},
	}
	for _, a := range annotations {
		if err := store.CreateAnnotation(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := store.CountUnresolvedAnnotations(ctx, study.ID); n != 1 {
		t.Errorf("unresolved annotations: got %d, want 1", n)
	}

	if err := store.TransitionDocumentStatus(ctx, v1.ID, models.StatusProcessed); err != nil {
		t.Fatal(err)
	}
	var invalid *models.ErrInvalidTransition
	if err := store.TransitionDocumentStatus(ctx, v1.ID, models.StatusPublished); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := store.TransitionDocumentStatus(ctx, "missing", models.StatusProcessed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Studies != 1 || stats.Documents != 2 || stats.ValidationResults != 1 || stats.FailedValidations != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}
