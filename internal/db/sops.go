// Package db - sops.go
//
// This file implements data access for the SOP catalog: the library of
// standard operating procedures AIEnricher ranks against and handlers
// expose for direct browsing and authoring.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
)

// SopStore handles database operations for the sops table.
type SopStore struct {
	db  *sql.DB
	ids *Database
}

// NewSopStore creates a new SopStore instance. database backs both the
// table's own connection and the id_sequences-based minting NextID uses
// for root SOP ids.
func NewSopStore(database *Database) *SopStore {
	return &SopStore{db: database.DB(), ids: database}
}

const sopColumns = `id, parent_sop_id, title, description, body, category, department, version, active, created_by_id, created_at, updated_at`

func scanSop(row *sql.Row) (*models.Sop, error) {
	sop := &models.Sop{}
	err := row.Scan(
		&sop.ID, &sop.ParentSopID, &sop.Title, &sop.Description, &sop.Body,
		&sop.Category, &sop.Department, &sop.Version, &sop.Active,
		&sop.CreatedByID, &sop.CreatedAt, &sop.UpdatedAt,
	)
	return sop, err
}

// Create inserts a new SOP, minting its hierarchical id if one was not
// supplied: a root SOP (ParentSopID nil) gets the next SOP-NNN sequence
// value; a child gets <parentId>-#NN, NN being a 1-based count of the
// parent's existing children (§3's SOP id invariant).
func (s *SopStore) Create(ctx context.Context, sop *models.Sop) error {
	if sop.ID == "" {
		id, err := s.MintID(ctx, sop.ParentSopID)
		if err != nil {
			return err
		}
		sop.ID = id
	}
	sop.Version = "1"
	sop.Active = true
	sop.CreatedAt = time.Now()
	sop.UpdatedAt = sop.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sops (id, parent_sop_id, title, description, body, category, department, version, active, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sop.ID, sop.ParentSopID, sop.Title, sop.Description, sop.Body,
		sop.Category, sop.Department, sop.Version, sop.Active,
		sop.CreatedByID, sop.CreatedAt, sop.UpdatedAt,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to create sop", err)
	}
	return nil
}

// MintID computes the id a SOP should carry given its parent: SOP-NNN
// for a root SOP, <parentID>-#NN for a child. Called on create, and
// again on update whenever ParentSopID changes (§3: "re-minted only if
// parentSopId is changed").
func (s *SopStore) MintID(ctx context.Context, parentID *string) (string, error) {
	if parentID == nil {
		seq, err := s.ids.NextID("SOP")
		if err != nil {
			return "", apperrors.InternalWrap("failed to mint sop id", err)
		}
		return fmt.Sprintf("SOP-%03d", seq), nil
	}

	count, err := s.CountChildren(ctx, *parentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-#%02d", *parentID, count+1), nil
}

// CountChildren returns how many SOPs currently have parentID as their
// parent, the basis for the next <parentID>-#NN child id.
func (s *SopStore) CountChildren(ctx context.Context, parentID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sops WHERE parent_sop_id = $1`, parentID).Scan(&count); err != nil {
		return 0, apperrors.InternalWrap("failed to count sop children", err)
	}
	return count, nil
}

// Rename changes a SOP's primary-key id. Used when ParentSopID changes
// and the hierarchical id must be re-minted to match the new parent.
func (s *SopStore) Rename(ctx context.Context, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sops SET id = $1 WHERE id = $2`, newID, oldID)
	if err != nil {
		return apperrors.InternalWrap("failed to rename sop id", err)
	}
	return nil
}

// Get fetches a SOP by id.
func (s *SopStore) Get(ctx context.Context, id string) (*models.Sop, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sopColumns+` FROM sops WHERE id = $1`, id)
	sop, err := scanSop(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("sop")
	}
	if err != nil {
		return nil, apperrors.InternalWrap("failed to fetch sop", err)
	}
	return sop, nil
}

// List returns every active SOP, the catalog AIEnricher ranks against.
func (s *SopStore) List(ctx context.Context) ([]models.Sop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sopColumns+` FROM sops WHERE active = true ORDER BY title ASC`)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list sops", err)
	}
	defer rows.Close()

	var sops []models.Sop
	for rows.Next() {
		sop := models.Sop{}
		if err := rows.Scan(
			&sop.ID, &sop.ParentSopID, &sop.Title, &sop.Description, &sop.Body,
			&sop.Category, &sop.Department, &sop.Version, &sop.Active,
			&sop.CreatedByID, &sop.CreatedAt, &sop.UpdatedAt,
		); err != nil {
			return nil, apperrors.InternalWrap("failed to scan sop row", err)
		}
		sops = append(sops, sop)
	}
	return sops, rows.Err()
}

// ListAll returns every SOP, active or not, for administration views.
func (s *SopStore) ListAll(ctx context.Context) ([]models.Sop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sopColumns+` FROM sops ORDER BY title ASC`)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list sops", err)
	}
	defer rows.Close()

	var sops []models.Sop
	for rows.Next() {
		sop := models.Sop{}
		if err := rows.Scan(
			&sop.ID, &sop.ParentSopID, &sop.Title, &sop.Description, &sop.Body,
			&sop.Category, &sop.Department, &sop.Version, &sop.Active,
			&sop.CreatedByID, &sop.CreatedAt, &sop.UpdatedAt,
		); err != nil {
			return nil, apperrors.InternalWrap("failed to scan sop row", err)
		}
		sops = append(sops, sop)
	}
	return sops, rows.Err()
}

// Update applies a merge-patch to a SOP, bumping its version string.
func (s *SopStore) Update(ctx context.Context, sop *models.Sop) error {
	sop.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE sops SET title = $1, description = $2, body = $3, category = $4,
			department = $5, version = $6, active = $7, parent_sop_id = $8, updated_at = $9
		WHERE id = $10`,
		sop.Title, sop.Description, sop.Body, sop.Category,
		sop.Department, sop.Version, sop.Active, sop.ParentSopID, sop.UpdatedAt, sop.ID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to update sop", err)
	}
	return nil
}
