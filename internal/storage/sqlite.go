package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ectd/internal/models"
)

// SQLiteStore implements Database using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS studies (
		id TEXT PRIMARY KEY,
		study_number TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		sponsor TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		study_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (study_id) REFERENCES studies(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_templates_study ON templates(study_id, active);

	CREATE TABLE IF NOT EXISTS structure_nodes (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		code TEXT NOT NULL,
		title TEXT NOT NULL,
		parent_id TEXT,
		required INTEGER NOT NULL DEFAULT 0,
		document_type TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE,
		UNIQUE (template_id, code)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		study_id TEXT NOT NULL,
		slot_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (study_id) REFERENCES studies(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_study ON documents(study_id);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_path);

	CREATE TABLE IF NOT EXISTS validation_results (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		check_name TEXT NOT NULL,
		passed INTEGER NOT NULL,
		message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_validation_document ON validation_results(document_id);

	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		comment TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// GetStudy returns a study by ID.
func (s *SQLiteStore) GetStudy(ctx context.Context, id string) (*models.Study, error) {
	return s.scanStudy(s.db.QueryRowContext(ctx,
		`SELECT id, study_number, title, COALESCE(sponsor, ''), created_at FROM studies WHERE id = ?`, id), id)
}

// GetStudyByNumber returns a study by its study number.
func (s *SQLiteStore) GetStudyByNumber(ctx context.Context, studyNumber string) (*models.Study, error) {
	return s.scanStudy(s.db.QueryRowContext(ctx,
		`SELECT id, study_number, title, COALESCE(sponsor, ''), created_at FROM studies WHERE study_number = ?`, studyNumber), studyNumber)
}

func (s *SQLiteStore) scanStudy(row *sql.Row, key string) (*models.Study, error) {
	var st models.Study
	err := row.Scan(&st.ID, &st.StudyNumber, &st.Title, &st.Sponsor, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("study", key)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudies returns all studies ordered by study number.
func (s *SQLiteStore) ListStudies(ctx context.Context) ([]*models.Study, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, study_number, title, COALESCE(sponsor, ''), created_at FROM studies ORDER BY study_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Study
	for rows.Next() {
		var st models.Study
		if err := rows.Scan(&st.ID, &st.StudyNumber, &st.Title, &st.Sponsor, &st.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &st)
	}
	return list, rows.Err()
}

// GetActiveTemplate returns the study's active template.
func (s *SQLiteStore) GetActiveTemplate(ctx context.Context, studyID string) (*models.Template, error) {
	var t models.Template
	err := s.db.QueryRowContext(ctx,
		`SELECT id, study_id, name, active FROM templates
		 WHERE study_id = ? AND active = 1 ORDER BY name LIMIT 1`, studyID,
	).Scan(&t.ID, &t.StudyID, &t.Name, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active template for study", studyID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListStructureNodes returns a template's nodes ordered by sort order and code.
func (s *SQLiteStore) ListStructureNodes(ctx context.Context, templateID string) ([]*models.StructureNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, code, title, parent_id, required, COALESCE(document_type, ''), sort_order
		 FROM structure_nodes WHERE template_id = ? ORDER BY sort_order, code`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.StructureNode
	for rows.Next() {
		var n models.StructureNode
		var parent sql.NullString
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.Code, &n.Title, &parent, &n.Required, &n.DocumentType, &n.SortOrder); err != nil {
			return nil, err
		}
		if parent.Valid && parent.String != "" {
			p := parent.String
			n.ParentID = &p
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

const documentColumns = `id, study_id, slot_id, source_path, version, status, file_size, page_count, created_at, updated_at`

func scanDocument(scan func(dest ...any) error) (*models.Document, error) {
	var d models.Document
	var pages sql.NullInt64
	if err := scan(&d.ID, &d.StudyID, &d.SlotID, &d.SourcePath, &d.Version, &d.Status, &d.FileSize, &pages, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if pages.Valid {
		p := int(pages.Int64)
		d.PageCount = &p
	}
	return &d, nil
}

// ListStudyDocuments returns every document version of a study.
func (s *SQLiteStore) ListStudyDocuments(ctx context.Context, studyID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE study_id = ? ORDER BY slot_id, version`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// CountFailedValidations counts failed validation results of the study's documents.
func (s *SQLiteStore) CountFailedValidations(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM validation_results v JOIN documents d ON d.id = v.document_id
		 WHERE d.study_id = ? AND v.passed = 0`, studyID).Scan(&n)
	return n, err
}

// CountUnresolvedAnnotations counts open correction requests on the study's documents.
func (s *SQLiteStore) CountUnresolvedAnnotations(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM annotations a JOIN documents d ON d.id = a.document_id
		 WHERE d.study_id = ? AND a.status = ? AND a.type = ?`,
		studyID, models.AnnotationOpen, models.AnnotationCorrectionRequired).Scan(&n)
	return n, err
}

// Stats returns row counts.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM studies),
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM validation_results),
		(SELECT COUNT(*) FROM validation_results WHERE passed = 0)`,
	).Scan(&st.Studies, &st.Documents, &st.ValidationResults, &st.FailedValidations)
	return st, err
}

// FindDocumentBySourcePath returns the newest document version stored at sourcePath.
func (s *SQLiteStore) FindDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_path = ? ORDER BY version DESC LIMIT 1`, sourcePath)
	d, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document at", sourcePath)
	}
	return d, err
}

// RecordValidationResults replaces a document's stored results.
func (s *SQLiteStore) RecordValidationResults(ctx context.Context, documentID string, results []*models.ValidationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM validation_results WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO validation_results (id, document_id, check_name, passed, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.DocumentID = documentID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocumentID, r.CheckName, r.Passed, r.Message, r.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TransitionDocumentStatus moves a document to status to.
func (s *SQLiteStore) TransitionDocumentStatus(ctx context.Context, documentID string, to models.DocumentStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var from models.DocumentStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, documentID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("document", documentID)
	}
	if err != nil {
		return err
	}
	if !from.CanTransition(to) {
		return &models.ErrInvalidTransition{From: from, To: to}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, to, time.Now().UTC(), documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateStudy inserts a study, assigning an ID when empty.
func (s *SQLiteStore) CreateStudy(ctx context.Context, st *models.Study) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO studies (id, study_number, title, sponsor, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.StudyNumber, st.Title, st.Sponsor, st.CreatedAt)
	return err
}

// CreateTemplate inserts a template.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, study_id, name, active) VALUES (?, ?, ?, ?)`,
		t.ID, t.StudyID, t.Name, t.Active)
	return err
}

// CreateStructureNode inserts a structure node.
func (s *SQLiteStore) CreateStructureNode(ctx context.Context, n *models.StructureNode) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO structure_nodes (id, template_id, code, title, parent_id, required, document_type, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.TemplateID, n.Code, n.Title, n.ParentID, n.Required, n.DocumentType, n.SortOrder)
	return err
}

// CreateDocument inserts a document version.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.StatusDraft
	}
	if !d.Status.Valid() {
		return fmt.Errorf("invalid document status %q", d.Status)
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.StudyID, d.SlotID, d.SourcePath, d.Version, d.Status, d.FileSize, d.PageCount, d.CreatedAt, d.UpdatedAt)
	return err
}

// CreateAnnotation inserts a review annotation.
func (s *SQLiteStore) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, document_id, type, status, comment) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, a.Type, a.Status, a.Comment)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
