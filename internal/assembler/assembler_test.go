package assembler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/storage"
)

type fixture struct {
	store *storage.SQLiteStore
	study *models.Study
	tmpl  *models.Template
	nodes map[string]*models.StructureNode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ectd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	study := &models.Study{StudyNumber: "ABC 123", Title: "Pivotal"}
	require.NoError(t, store.CreateStudy(ctx, study))
	tmpl := &models.Template{StudyID: study.ID, Name: "CSR", Active: true}
	require.NoError(t, store.CreateTemplate(ctx, tmpl))
	return &fixture{store: store, study: study, tmpl: tmpl, nodes: map[string]*models.StructureNode{}}
}

func (f *fixture) node(t *testing.T, code, title string, required bool) *models.StructureNode {
	t.Helper()
	n := &models.StructureNode{TemplateID: f.tmpl.ID, Code: code, Title: title, Required: required, SortOrder: len(f.nodes)}
	require.NoError(t, f.store.CreateStructureNode(context.Background(), n))
	f.nodes[code] = n
	return n
}

func (f *fixture) doc(t *testing.T, code, source string, version int, status models.DocumentStatus) *models.Document {
	t.Helper()
	d := &models.Document{StudyID: f.study.ID, SlotID: f.nodes[code].ID, SourcePath: source, Version: version, Status: status, FileSize: 1024}
	require.NoError(t, f.store.CreateDocument(context.Background(), d))
	return d
}

func TestSelectDocument(t *testing.T) {
	docs := []*models.Document{
		{ID: "draft", Status: models.StatusDraft, Version: 3},
		{ID: "approved", Status: models.StatusApproved, Version: 1},
		{ID: "published", Status: models.StatusPublished, Version: 2},
	}
	assert.Equal(t, "published", SelectDocument(docs, false).ID)
	assert.Equal(t, "published", SelectDocument(docs, true).ID)

	approved := []*models.Document{
		{ID: "a1", Status: models.StatusApproved, Version: 1},
		{ID: "a4", Status: models.StatusApproved, Version: 4},
		{ID: "review", Status: models.StatusInReview, Version: 5},
	}
	assert.Equal(t, "a4", SelectDocument(approved, false).ID)

	drafts := []*models.Document{
		{ID: "d1", Status: models.StatusDraft, Version: 1},
		{ID: "p2", Status: models.StatusProcessed, Version: 2},
		{ID: "failed", Status: models.StatusProcessingFailed, Version: 3},
	}
	assert.Nil(t, SelectDocument(drafts, false))
	assert.Equal(t, "p2", SelectDocument(drafts, true).ID)
	assert.Nil(t, SelectDocument(nil, true))
}

func TestCheckReadiness_Gating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.node(t, "16.1.1", "Protocol", true)
	a := New(f.store)

	rc, err := a.CheckReadiness(ctx, f.study.ID)
	require.NoError(t, err)
	assert.False(t, rc.Ready)
	require.Len(t, rc.MissingRequired, 1)
	assert.Equal(t, "16.1.1", rc.MissingRequired[0].Code)

	f.doc(t, "16.1.1", "uploads/protocol.pdf", 1, models.StatusPublished)
	rc, err = a.CheckReadiness(ctx, f.study.ID)
	require.NoError(t, err)
	assert.True(t, rc.Ready)
	assert.Empty(t, rc.MissingRequired)
}

func TestCheckReadiness_Blockers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.node(t, "16.1.1", "Protocol", true)
	f.node(t, "16.2", "Listings", false)
	published := f.doc(t, "16.1.1", "uploads/protocol.pdf", 1, models.StatusPublished)
	f.doc(t, "16.2", "uploads/listings.pdf", 1, models.StatusInReview)
	a := New(f.store)

	rc, err := a.CheckReadiness(ctx, f.study.ID)
	require.NoError(t, err)
	assert.True(t, rc.Ready, "pending approval alone does not block readiness")
	require.Len(t, rc.PendingApproval, 1)
	assert.Equal(t, "16.2", rc.PendingApproval[0].NodeCode)

	require.NoError(t, f.store.RecordValidationResults(ctx, published.ID, []*models.ValidationResult{
		{CheckName: "pdf-version", Passed: false},
	}))
	require.NoError(t, f.store.CreateAnnotation(ctx, &models.Annotation{
		DocumentID: published.ID, Type: models.AnnotationCorrectionRequired, Status: models.AnnotationOpen,
	}))
	rc, err = a.CheckReadiness(ctx, f.study.ID)
	require.NoError(t, err)
	assert.False(t, rc.Ready)
	assert.Equal(t, 1, rc.ValidationErrors)
	assert.Equal(t, 1, rc.UnresolvedAnnotations)
}

func TestAssemble(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, code := range []string{"16.10", "16.2", "16.1.1", "2"} {
		f.node(t, code, "Section "+code, false)
	}
	f.node(t, "16.3", "Empty", false)
	f.doc(t, "16.10", "uploads/Other Data.PDF", 1, models.StatusPublished)
	f.doc(t, "16.2", "uploads/listings.pdf", 1, models.StatusApproved)
	f.doc(t, "16.1.1", "uploads/protocol-v1.pdf", 1, models.StatusApproved)
	f.doc(t, "16.1.1", "uploads/protocol-v2.pdf", 2, models.StatusApproved)
	f.doc(t, "2", "uploads/summary.pdf", 1, models.StatusDraft)

	a := New(f.store)
	m, err := a.Assemble(ctx, f.study.ID, Options{})
	require.NoError(t, err)

	var codes, targets []string
	for _, pf := range m.Files {
		codes = append(codes, pf.NodeCode)
		targets = append(targets, pf.TargetPath)
	}
	assert.Equal(t, []string{"16.1.1", "16.2", "16.10"}, codes)
	assert.Equal(t, []string{
		"m5/abc-123/16-1-1/protocol-v2.pdf",
		"m5/abc-123/16-2/listings.pdf",
		"m5/abc-123/16-10/other-data.pdf",
	}, targets)
	assert.Equal(t, 2, m.Files[0].Version)
	assert.Equal(t, "ABC 123", m.StudyNumber)

	require.Len(t, m.FolderStructure, 1)
	assert.Equal(t, "m5", m.FolderStructure[0].Name)

	again, err := a.Assemble(ctx, f.study.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, m.Files, again.Files)
	assert.Equal(t, m.FolderStructure, again.FolderStructure)

	withDrafts, err := a.Assemble(ctx, f.study.ID, Options{IncludeDrafts: true})
	require.NoError(t, err)
	require.Len(t, withDrafts.Files, 4)
	assert.Equal(t, "2", withDrafts.Files[0].NodeCode)
}

func TestAssemble_FileStorePaths(t *testing.T) {
	f := newFixture(t)
	f.node(t, "16.1.1", "Protocol", true)
	f.doc(t, "16.1.1", "uploads/protocol.pdf", 1, models.StatusPublished)
	root := t.TempDir()
	fs, err := storage.NewFileStore(root)
	require.NoError(t, err)

	m, err := New(f.store, WithFileStore(fs)).Assemble(context.Background(), f.study.ID, Options{})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, filepath.Join(root, "uploads", "protocol.pdf"), m.Files[0].SourcePath)
}

func TestAssemble_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := New(f.store)

	_, err := a.Assemble(ctx, "missing", Options{})
	assert.ErrorIs(t, err, ErrStudyNotFound)

	bare := &models.Study{StudyNumber: "NO-TEMPLATE", Title: "x"}
	require.NoError(t, f.store.CreateStudy(ctx, bare))
	_, err = a.CheckReadiness(ctx, bare.ID)
	assert.ErrorIs(t, err, ErrNoActiveTemplate)
}
