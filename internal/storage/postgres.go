package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/ectd/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS studies (
	id TEXT PRIMARY KEY,
	study_number TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	sponsor TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	study_id TEXT NOT NULL REFERENCES studies(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS structure_nodes (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
	code TEXT NOT NULL,
	title TEXT NOT NULL,
	parent_id TEXT,
	required BOOLEAN NOT NULL DEFAULT FALSE,
	document_type TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	UNIQUE (template_id, code)
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	study_id TEXT NOT NULL REFERENCES studies(id) ON DELETE CASCADE,
	slot_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	page_count INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_study ON documents(study_id);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_path);
CREATE TABLE IF NOT EXISTS validation_results (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	check_name TEXT NOT NULL,
	passed BOOLEAN NOT NULL,
	message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_validation_document ON validation_results(document_id);
CREATE TABLE IF NOT EXISTS annotations (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	comment TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Database on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) getStudy(ctx context.Context, where, key string) (*models.Study, error) {
	var st models.Study
	err := s.pool.QueryRow(ctx,
		`SELECT id, study_number, title, COALESCE(sponsor, ''), created_at FROM studies WHERE `+where+` = $1`, key,
	).Scan(&st.ID, &st.StudyNumber, &st.Title, &st.Sponsor, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("study", key)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStudy returns a study by ID.
func (s *PostgresStore) GetStudy(ctx context.Context, id string) (*models.Study, error) {
	return s.getStudy(ctx, "id", id)
}

// GetStudyByNumber returns a study by its study number.
func (s *PostgresStore) GetStudyByNumber(ctx context.Context, studyNumber string) (*models.Study, error) {
	return s.getStudy(ctx, "study_number", studyNumber)
}

// ListStudies returns all studies ordered by study number.
func (s *PostgresStore) ListStudies(ctx context.Context) ([]*models.Study, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, study_number, title, COALESCE(sponsor, ''), created_at FROM studies ORDER BY study_number`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Study, error) {
		var st models.Study
		err := row.Scan(&st.ID, &st.StudyNumber, &st.Title, &st.Sponsor, &st.CreatedAt)
		return &st, err
	})
}

// GetActiveTemplate returns the study's active template.
func (s *PostgresStore) GetActiveTemplate(ctx context.Context, studyID string) (*models.Template, error) {
	var t models.Template
	err := s.pool.QueryRow(ctx,
		`SELECT id, study_id, name, active FROM templates
		 WHERE study_id = $1 AND active ORDER BY name LIMIT 1`, studyID,
	).Scan(&t.ID, &t.StudyID, &t.Name, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("active template for study", studyID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListStructureNodes returns a template's nodes ordered by sort order and code.
func (s *PostgresStore) ListStructureNodes(ctx context.Context, templateID string) ([]*models.StructureNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, template_id, code, title, parent_id, required, COALESCE(document_type, ''), sort_order
		 FROM structure_nodes WHERE template_id = $1 ORDER BY sort_order, code`, templateID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.StructureNode, error) {
		var n models.StructureNode
		var parent sql.NullString
		if err := row.Scan(&n.ID, &n.TemplateID, &n.Code, &n.Title, &parent, &n.Required, &n.DocumentType, &n.SortOrder); err != nil {
			return nil, err
		}
		if parent.Valid && parent.String != "" {
			p := parent.String
			n.ParentID = &p
		}
		return &n, nil
	})
}

// ListStudyDocuments returns every document version of a study.
func (s *PostgresStore) ListStudyDocuments(ctx context.Context, studyID string) ([]*models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE study_id = $1 ORDER BY slot_id, version`, studyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Document, error) {
		return scanDocument(row.Scan)
	})
}

// CountFailedValidations counts failed validation results of the study's documents.
func (s *PostgresStore) CountFailedValidations(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM validation_results v JOIN documents d ON d.id = v.document_id
		 WHERE d.study_id = $1 AND NOT v.passed`, studyID).Scan(&n)
	return n, err
}

// CountUnresolvedAnnotations counts open correction requests on the study's documents.
func (s *PostgresStore) CountUnresolvedAnnotations(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM annotations a JOIN documents d ON d.id = a.document_id
		 WHERE d.study_id = $1 AND a.status = $2 AND a.type = $3`,
		studyID, string(models.AnnotationOpen), string(models.AnnotationCorrectionRequired)).Scan(&n)
	return n, err
}

// Stats returns row counts.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM studies),
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM validation_results),
		(SELECT COUNT(*) FROM validation_results WHERE NOT passed)`,
	).Scan(&st.Studies, &st.Documents, &st.ValidationResults, &st.FailedValidations)
	return st, err
}

// FindDocumentBySourcePath returns the newest document version stored at sourcePath.
func (s *PostgresStore) FindDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_path = $1 ORDER BY version DESC LIMIT 1`, sourcePath)
	d, err := scanDocument(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("document at", sourcePath)
	}
	return d, err
}

// RecordValidationResults replaces a document's stored results.
func (s *PostgresStore) RecordValidationResults(ctx context.Context, documentID string, results []*models.ValidationResult) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM validation_results WHERE document_id = $1`, documentID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		now := time.Now().UTC()
		for _, r := range results {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			r.DocumentID = documentID
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			batch.Queue(`INSERT INTO validation_results (id, document_id, check_name, passed, message, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`, r.ID, r.DocumentID, r.CheckName, r.Passed, r.Message, r.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// TransitionDocumentStatus moves a document to status to.
func (s *PostgresStore) TransitionDocumentStatus(ctx context.Context, documentID string, to models.DocumentStatus) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var from string
		err := tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&from)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("document", documentID)
		}
		if err != nil {
			return err
		}
		if !models.DocumentStatus(from).CanTransition(to) {
			return &models.ErrInvalidTransition{From: models.DocumentStatus(from), To: to}
		}
		_, err = tx.Exec(ctx, `UPDATE documents SET status = $1, updated_at = now() WHERE id = $2`, string(to), documentID)
		return err
	})
}

// CreateStudy inserts a study, assigning an ID when empty.
func (s *PostgresStore) CreateStudy(ctx context.Context, st *models.Study) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO studies (id, study_number, title, sponsor, created_at) VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.StudyNumber, st.Title, st.Sponsor, st.CreatedAt)
	return err
}

// CreateTemplate inserts a template.
func (s *PostgresStore) CreateTemplate(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (id, study_id, name, active) VALUES ($1, $2, $3, $4)`,
		t.ID, t.StudyID, t.Name, t.Active)
	return err
}

// CreateStructureNode inserts a structure node.
func (s *PostgresStore) CreateStructureNode(ctx context.Context, n *models.StructureNode) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO structure_nodes (id, template_id, code, title, parent_id, required, document_type, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.TemplateID, n.Code, n.Title, n.ParentID, n.Required, n.DocumentType, n.SortOrder)
	return err
}

// CreateDocument inserts a document version.
func (s *PostgresStore) CreateDocument(ctx context.Context, d *models.Document) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.StudyID, d.SlotID, d.SourcePath, d.Version, string(d.Status), d.FileSize, d.PageCount, d.CreatedAt, d.UpdatedAt)
	return err
}

// CreateAnnotation inserts a review annotation.
func (s *PostgresStore) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO annotations (id, document_id, type, status, comment) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.DocumentID, string(a.Type), string(a.Status), a.Comment)
	return err
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
