// Package db - gap_support.go
//
// This file implements data access for the entities orbiting a gap: the
// POC roster, per-transition assignment/resolution history, TAT
// extension requests, and the AI similarity graph.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
)

// GapPocStore handles the gap_pocs roster table.
type GapPocStore struct {
	db *sql.DB
}

// NewGapPocStore creates a new GapPocStore instance.
func NewGapPocStore(db *sql.DB) *GapPocStore {
	return &GapPocStore{db: db}
}

// List returns every POC on a gap's roster.
func (s *GapPocStore) List(ctx context.Context, gapID int64) ([]*models.GapPoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, user_id, is_primary, added_by_id, created_at
		FROM gap_pocs WHERE gap_id = $1 ORDER BY created_at ASC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list poc roster", err)
	}
	defer rows.Close()

	var pocs []*models.GapPoc
	for rows.Next() {
		p := &models.GapPoc{}
		if err := rows.Scan(&p.ID, &p.GapID, &p.UserID, &p.IsPrimary, &p.AddedByID, &p.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan poc row", err)
		}
		pocs = append(pocs, p)
	}
	return pocs, rows.Err()
}

// UserIDs returns just the user ids on a gap's roster, the shape
// internal/authz.CanReadGap consumes.
func (s *GapPocStore) UserIDs(ctx context.Context, gapID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM gap_pocs WHERE gap_id = $1`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list poc user ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.InternalWrap("failed to scan poc user id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PrimaryPocID returns the current primary POC's user id, if any.
func (s *GapPocStore) PrimaryPocID(ctx context.Context, gapID int64) (*string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM gap_pocs WHERE gap_id = $1 AND is_primary = true`, gapID).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.InternalWrap("failed to look up primary poc", err)
	}
	return &userID, nil
}

// Add inserts (or re-activates, via upsert) a POC on a gap's roster. When
// primary is true, any existing primary row for the gap is cleared first
// so exactly one row holds is_primary=true.
func (s *GapPocStore) Add(ctx context.Context, gapID int64, userID string, primary bool, addedByID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.InternalWrap("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if primary {
		if _, err := tx.ExecContext(ctx, `UPDATE gap_pocs SET is_primary = false WHERE gap_id = $1`, gapID); err != nil {
			return apperrors.InternalWrap("failed to clear existing primary poc", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gap_pocs (gap_id, user_id, is_primary, added_by_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (gap_id, user_id) DO UPDATE SET is_primary = EXCLUDED.is_primary`,
		gapID, userID, primary, addedByID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to add poc", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.InternalWrap("failed to commit poc roster change", err)
	}
	return nil
}

// Remove deletes a user from a gap's POC roster.
func (s *GapPocStore) Remove(ctx context.Context, gapID int64, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM gap_pocs WHERE gap_id = $1 AND user_id = $2`, gapID, userID)
	if err != nil {
		return apperrors.InternalWrap("failed to remove poc", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("poc roster entry")
	}
	return nil
}

// AssignmentStore handles the assignments audit table.
type AssignmentStore struct {
	db *sql.DB
}

// NewAssignmentStore creates a new AssignmentStore instance.
func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

// Create appends a new assignment row.
func (s *AssignmentStore) Create(ctx context.Context, a *models.Assignment) error {
	a.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO assignments (gap_id, assignee_id, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.GapID, a.AssigneeID, a.ActorID, a.Note, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return apperrors.InternalWrap("failed to record assignment", err)
	}
	return nil
}

// ListByGap returns a gap's assignment history, oldest first.
func (s *AssignmentStore) ListByGap(ctx context.Context, gapID int64) ([]*models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, assignee_id, actor_id, note, created_at FROM assignments WHERE gap_id = $1 ORDER BY created_at ASC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list assignments", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		a := &models.Assignment{}
		if err := rows.Scan(&a.ID, &a.GapID, &a.AssigneeID, &a.ActorID, &a.Note, &a.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan assignment row", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ResolutionHistoryStore handles the resolution_history append-only table.
type ResolutionHistoryStore struct {
	db *sql.DB
}

// NewResolutionHistoryStore creates a new ResolutionHistoryStore instance.
func NewResolutionHistoryStore(db *sql.DB) *ResolutionHistoryStore {
	return &ResolutionHistoryStore{db: db}
}

// Archive captures a gap's current resolution (prior to reopenGap
// clearing it) as a closed history row.
func (s *ResolutionHistoryStore) Archive(ctx context.Context, gapID int64, summary string, attachments []models.Attachment, resolvedByID string, resolvedAt time.Time, reopenedByID string, reopenedAt time.Time) error {
	blob, err := json.Marshal(attachments)
	if err != nil {
		return apperrors.InternalWrap("failed to marshal resolution attachments", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolution_history (gap_id, resolution_summary, resolution_attachments, resolved_by_id, resolved_at, reopened_by_id, reopened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		gapID, summary, blob, resolvedByID, resolvedAt, reopenedByID, reopenedAt,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to archive resolution history", err)
	}
	return nil
}

// ListByGap returns a gap's resolution cycles, oldest first.
func (s *ResolutionHistoryStore) ListByGap(ctx context.Context, gapID int64) ([]*models.ResolutionHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, resolution_summary, resolved_by_id, resolved_at, reopened_by_id, reopened_at
		FROM resolution_history WHERE gap_id = $1 ORDER BY resolved_at ASC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list resolution history", err)
	}
	defer rows.Close()

	var history []*models.ResolutionHistory
	for rows.Next() {
		h := &models.ResolutionHistory{}
		if err := rows.Scan(&h.ID, &h.GapID, &h.ResolutionSummary, &h.ResolvedByID, &h.ResolvedAt, &h.ReopenedByID, &h.ReopenedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan resolution history row", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// TatExtensionStore handles the tat_extensions table.
type TatExtensionStore struct {
	db *sql.DB
}

// NewTatExtensionStore creates a new TatExtensionStore instance.
func NewTatExtensionStore(db *sql.DB) *TatExtensionStore {
	return &TatExtensionStore{db: db}
}

// Create inserts a new pending TAT extension request.
func (s *TatExtensionStore) Create(ctx context.Context, e *models.TatExtension) error {
	e.Status = models.TatExtensionPending
	e.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tat_extensions (gap_id, requester_id, reason, proposed_deadline, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.GapID, e.RequesterID, e.Reason, e.ProposedDeadline, e.Status, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return apperrors.InternalWrap("failed to create tat extension", err)
	}
	return nil
}

// Get retrieves a TAT extension by id.
func (s *TatExtensionStore) Get(ctx context.Context, id int64) (*models.TatExtension, error) {
	e := &models.TatExtension{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, gap_id, requester_id, reason, proposed_deadline, status, reviewer_id, reviewed_at, created_at
		FROM tat_extensions WHERE id = $1`, id,
	).Scan(&e.ID, &e.GapID, &e.RequesterID, &e.Reason, &e.ProposedDeadline, &e.Status, &e.ReviewerID, &e.ReviewedAt, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("tat extension")
		}
		return nil, apperrors.InternalWrap("failed to look up tat extension", err)
	}
	return e, nil
}

// Review records a reviewer's decision on a pending extension.
func (s *TatExtensionStore) Review(ctx context.Context, id int64, reviewerID string, decision models.TatExtensionStatus) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tat_extensions SET status = $1, reviewer_id = $2, reviewed_at = $3
		WHERE id = $4 AND status = $5`,
		decision, reviewerID, now, id, models.TatExtensionPending,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to review tat extension", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Conflict("extension has already been reviewed")
	}
	return nil
}

// ListByGap returns every TAT extension filed against a gap, oldest
// first. Used to fold extension request/review audit entries into the
// gap's synthesized timeline (§4.7).
func (s *TatExtensionStore) ListByGap(ctx context.Context, gapID int64) ([]*models.TatExtension, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, requester_id, reason, proposed_deadline, status, reviewer_id, reviewed_at, created_at
		FROM tat_extensions WHERE gap_id = $1 ORDER BY created_at ASC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list tat extensions", err)
	}
	defer rows.Close()

	var extensions []*models.TatExtension
	for rows.Next() {
		e := &models.TatExtension{}
		if err := rows.Scan(&e.ID, &e.GapID, &e.RequesterID, &e.Reason, &e.ProposedDeadline, &e.Status, &e.ReviewerID, &e.ReviewedAt, &e.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan tat extension row", err)
		}
		extensions = append(extensions, e)
	}
	return extensions, rows.Err()
}

// SimilarGapStore handles the similar_gaps AI similarity graph.
type SimilarGapStore struct {
	db *sql.DB
}

// NewSimilarGapStore creates a new SimilarGapStore instance.
func NewSimilarGapStore(db *sql.DB) *SimilarGapStore {
	return &SimilarGapStore{db: db}
}

// Upsert records (or refreshes the score of) a directed similarity edge.
func (s *SimilarGapStore) Upsert(ctx context.Context, gapID, similarGapID int64, score int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO similar_gaps (gap_id, similar_gap_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (gap_id, similar_gap_id) DO UPDATE SET score = EXCLUDED.score`,
		gapID, similarGapID, score,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to upsert similarity edge", err)
	}
	return nil
}

// DeleteForGap removes every similarity edge where gapID appears as
// either endpoint, the invalidation step run before re-enqueuing AI work
// on a content edit (§4.3).
func (s *SimilarGapStore) DeleteForGap(ctx context.Context, gapID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM similar_gaps WHERE gap_id = $1 OR similar_gap_id = $1`, gapID)
	if err != nil {
		return apperrors.InternalWrap("failed to invalidate similarity edges", err)
	}
	return nil
}

// ListByGap returns every similarity edge out of gapID, highest score
// first, the set the gap-detail view renders as "related gaps".
func (s *SimilarGapStore) ListByGap(ctx context.Context, gapID int64) ([]*models.SimilarGap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, similar_gap_id, score, created_at
		FROM similar_gaps WHERE gap_id = $1 ORDER BY score DESC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list similar gaps", err)
	}
	defer rows.Close()

	var edges []*models.SimilarGap
	for rows.Next() {
		e := &models.SimilarGap{}
		if err := rows.Scan(&e.ID, &e.GapID, &e.SimilarGapID, &e.Score, &e.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan similar gap row", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
