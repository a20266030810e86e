// Package db - form_templates.go
//
// Form templates are the named JSON schemas a gap's intake form is
// filled in against; the export path is the one consumer that inspects
// a template's schema rather than treating it as opaque.
package db

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/google/uuid"
)

// FormTemplateStore handles database operations for the form_templates table.
type FormTemplateStore struct {
	db *sql.DB
}

// NewFormTemplateStore creates a new FormTemplateStore instance.
func NewFormTemplateStore(db *sql.DB) *FormTemplateStore {
	return &FormTemplateStore{db: db}
}

const formTemplateColumns = `id, name, version, schema, created_at`

func scanFormTemplate(row *sql.Row) (*models.FormTemplate, error) {
	t := &models.FormTemplate{}
	err := row.Scan(&t.ID, &t.Name, &t.Version, &t.Schema, &t.CreatedAt)
	return t, err
}

// Create inserts a new form template, minting its id if one was not supplied.
func (s *FormTemplateStore) Create(ctx context.Context, t *models.FormTemplate) error {
	if t.ID == "" {
		t.ID = "FORM-" + uuid.New().String()[:8]
	}
	t.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO form_templates (id, name, version, schema, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Version, t.Schema, t.CreatedAt,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to create form template", err)
	}
	return nil
}

// Get fetches a form template by id.
func (s *FormTemplateStore) Get(ctx context.Context, id string) (*models.FormTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+formTemplateColumns+` FROM form_templates WHERE id = $1`, id)
	t, err := scanFormTemplate(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("form template")
	}
	if err != nil {
		return nil, apperrors.InternalWrap("failed to fetch form template", err)
	}
	return t, nil
}

// List returns every form template, newest first.
func (s *FormTemplateStore) List(ctx context.Context) ([]models.FormTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+formTemplateColumns+` FROM form_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list form templates", err)
	}
	defer rows.Close()

	var templates []models.FormTemplate
	for rows.Next() {
		t := models.FormTemplate{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Version, &t.Schema, &t.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan form template row", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
