package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/pdfdoc"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

type revalidateFixture struct {
	store *storage.SQLiteStore
	root  string
	study *models.Study
	slot  *models.StructureNode
}

func newRevalidateFixture(t *testing.T) *revalidateFixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ectd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	study := &models.Study{StudyNumber: "ABC-123", Title: "Pivotal"}
	if err := store.CreateStudy(ctx, study); err != nil {
		t.Fatal(err)
	}
	tmpl := &models.Template{StudyID: study.ID, Name: "CSR", Active: true}
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatal(err)
	}
	slot := &models.StructureNode{TemplateID: tmpl.ID, Code: "16.1.1", Title: "Protocol"}
	if err := store.CreateStructureNode(ctx, slot); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "uploads"), 0755); err != nil {
		t.Fatal(err)
	}
	return &revalidateFixture{store: store, root: root, study: study, slot: slot}
}

func (f *revalidateFixture) document(t *testing.T, source string, status models.DocumentStatus) *models.Document {
	t.Helper()
	d := &models.Document{StudyID: f.study.ID, SlotID: f.slot.ID, SourcePath: source, Version: 1, Status: status}
	if err := f.store.CreateDocument(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func (f *revalidateFixture) revalidator(onResult func(Outcome)) *Revalidator {
	return NewRevalidator(f.store, validator.New(), WithFilesRoot(f.root), OnResult(onResult))
}

func writeUpload(t *testing.T, path string) {
	t.Helper()
	doc := pdfdoc.New("1.7")
	if _, err := doc.AppendPage(pdfdoc.Dict{"MediaBox": pdfdoc.NewRect(0, 0, 612, 792)}); err != nil {
		t.Fatal(err)
	}
	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}
}

func TestRevalidate_PassingDraftBecomesProcessed(t *testing.T) {
	f := newRevalidateFixture(t)
	ctx := context.Background()
	f.document(t, "uploads/protocol.pdf", models.StatusDraft)
	path := filepath.Join(f.root, "uploads", "protocol.pdf")
	writeUpload(t, path)

	out, err := f.revalidator(nil).Revalidate(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Passed || out.Status != models.StatusProcessed {
		t.Errorf("outcome = %+v, want passed and PROCESSED", out)
	}
	if out.Results == 0 {
		t.Error("expected stored results")
	}
	doc, err := f.store.FindDocumentBySourcePath(ctx, "uploads/protocol.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.StatusProcessed {
		t.Errorf("stored status = %s", doc.Status)
	}
	failed, err := f.store.CountFailedValidations(ctx, f.study.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Errorf("failed validations = %d, want 0", failed)
	}
}

func TestRevalidate_FailingDraftBecomesProcessingFailed(t *testing.T) {
	f := newRevalidateFixture(t)
	ctx := context.Background()
	f.document(t, "uploads/broken.pdf", models.StatusDraft)
	path := filepath.Join(f.root, "uploads", "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0600); err != nil {
		t.Fatal(err)
	}

	var got []Outcome
	f.revalidator(func(o Outcome) { got = append(got, o) }).FileChanged(ctx, path)

	if len(got) != 1 {
		t.Fatalf("expected one outcome, got %d", len(got))
	}
	if got[0].Passed || got[0].Status != models.StatusProcessingFailed {
		t.Errorf("outcome = %+v, want failed and PROCESSING_FAILED", got[0])
	}
	failed, err := f.store.CountFailedValidations(ctx, f.study.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed == 0 {
		t.Error("expected failed validation rows")
	}

	// A second run replaces the previous results rather than adding to them.
	before, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.revalidator(nil).Revalidate(ctx, path); err != nil {
		t.Fatal(err)
	}
	after, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.ValidationResults != before.ValidationResults {
		t.Errorf("validation results grew from %d to %d", before.ValidationResults, after.ValidationResults)
	}
}

func TestRevalidate_ReviewedDocumentKeepsStatus(t *testing.T) {
	f := newRevalidateFixture(t)
	f.document(t, "uploads/listings.pdf", models.StatusApproved)
	path := filepath.Join(f.root, "uploads", "listings.pdf")
	writeUpload(t, path)

	out, err := f.revalidator(nil).Revalidate(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != models.StatusApproved {
		t.Errorf("status = %s, want APPROVED", out.Status)
	}
}

func TestRevalidate_UnknownFile(t *testing.T) {
	f := newRevalidateFixture(t)
	path := filepath.Join(f.root, "uploads", "stray.pdf")
	writeUpload(t, path)

	r := f.revalidator(func(Outcome) { t.Error("no outcome expected for unknown files") })
	_, err := r.Revalidate(context.Background(), path)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	r.FileChanged(context.Background(), path)
}
