// Package db - gaps.go
//
// This file implements data access for the central Gap entity: the
// mutable row plus its two satellite concerns, stored attachments and
// cached AI sop suggestions. Lifecycle guards (who may call which
// method, and in what current state) live in internal/gapcore; GapStore
// itself only executes the column changes a transition calls for.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
)

// GapStore handles database operations for gaps and their attachments.
type GapStore struct {
	db *sql.DB
}

// NewGapStore creates a new GapStore instance.
func NewGapStore(db *sql.DB) *GapStore {
	return &GapStore{db: db}
}

const gapColumns = `
	id, gap_id, title, description, status, priority, severity, department,
	reporter_id, assigned_to_id, updated_by_id, closed_by_id, reopened_by_id,
	form_template_id, form_template_version, form_responses,
	tat_deadline, assigned_at, in_progress_at, resolved_at, closed_at, reopened_at,
	ai_processed, sop_suggestions, resolution_summary, resolution_attachments,
	duplicate_of_id, last_tat_window_notified, created_at, updated_at`

func scanGap(row interface{ Scan(...interface{}) error }) (*models.Gap, error) {
	gap := &models.Gap{}
	var sopSuggestions, resolutionAttachments models.JSONBlob
	err := row.Scan(
		&gap.ID, &gap.GapID, &gap.Title, &gap.Description, &gap.Status, &gap.Priority, &gap.Severity, &gap.Department,
		&gap.ReporterID, &gap.AssignedToID, &gap.UpdatedByID, &gap.ClosedByID, &gap.ReopenedByID,
		&gap.FormTemplateID, &gap.FormTemplateVersion, &gap.FormResponses,
		&gap.TatDeadline, &gap.AssignedAt, &gap.InProgressAt, &gap.ResolvedAt, &gap.ClosedAt, &gap.ReopenedAt,
		&gap.AIProcessed, &sopSuggestions, &gap.ResolutionSummary, &resolutionAttachments,
		&gap.DuplicateOfID, &gap.LastTatWindowNotified, &gap.CreatedAt, &gap.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("gap")
		}
		return nil, err
	}
	if len(sopSuggestions) > 0 {
		_ = json.Unmarshal(sopSuggestions, &gap.SopSuggestions)
	}
	if len(resolutionAttachments) > 0 {
		_ = json.Unmarshal(resolutionAttachments, &gap.ResolutionAttachments)
	}
	return gap, nil
}

// Create inserts a new gap and populates its generated id.
func (s *GapStore) Create(ctx context.Context, gap *models.Gap) error {
	now := time.Now()
	gap.CreatedAt, gap.UpdatedAt = now, now

	query := `
		INSERT INTO gaps (
			gap_id, title, description, status, priority, severity, department,
			reporter_id, form_template_id, form_template_version, form_responses,
			ai_processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		gap.GapID, gap.Title, gap.Description, gap.Status, gap.Priority, gap.Severity, gap.Department,
		gap.ReporterID, gap.FormTemplateID, gap.FormTemplateVersion, gap.FormResponses,
		gap.AIProcessed, gap.CreatedAt, gap.UpdatedAt,
	).Scan(&gap.ID)
	if err != nil {
		return apperrors.InternalWrap("failed to create gap", err)
	}
	return nil
}

// Get retrieves a gap by its numeric id.
func (s *GapStore) Get(ctx context.Context, id int64) (*models.Gap, error) {
	query := fmt.Sprintf(`SELECT %s FROM gaps WHERE id = $1`, gapColumns)
	row := s.db.QueryRowContext(ctx, query, id)
	return scanGap(row)
}

// List returns gaps matching filter, newest first. filter.IDs restricts
// results to that id set (used to apply RBAC read scope); a nil IDs slice
// means "not restricted" (Admin/Management).
func (s *GapStore) List(ctx context.Context, filter models.GapFilter) ([]*models.Gap, error) {
	query := fmt.Sprintf(`SELECT %s FROM gaps`, gapColumns)
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []*models.Gap{}, nil
		}
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, id)
			argIdx++
		}
		conditions = append(conditions, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list gaps", err)
	}
	defer rows.Close()

	var gaps []*models.Gap
	for rows.Next() {
		gap, err := scanGap(rows)
		if err != nil {
			return nil, apperrors.InternalWrap("failed to scan gap row", err)
		}
		gaps = append(gaps, gap)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalWrap("failed to iterate gap rows", err)
	}
	return gaps, nil
}

// ListNonClosed returns every gap not in the terminal Closed status, the
// comparison set for AIEnricher's pairwise similarity pass.
func (s *GapStore) ListNonClosed(ctx context.Context) ([]*models.Gap, error) {
	query := fmt.Sprintf(`SELECT %s FROM gaps WHERE status != $1`, gapColumns)
	rows, err := s.db.QueryContext(ctx, query, models.StatusClosed)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list non-closed gaps", err)
	}
	defer rows.Close()

	var gaps []*models.Gap
	for rows.Next() {
		gap, err := scanGap(rows)
		if err != nil {
			return nil, apperrors.InternalWrap("failed to scan gap row", err)
		}
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}

// ListTatTracked returns gaps with a deadline set, not yet resolved or
// closed — the scheduler's sweep set (§4.6).
func (s *GapStore) ListTatTracked(ctx context.Context) ([]*models.Gap, error) {
	query := fmt.Sprintf(`SELECT %s FROM gaps WHERE tat_deadline IS NOT NULL AND status NOT IN ($1, $2)`, gapColumns)
	rows, err := s.db.QueryContext(ctx, query, models.StatusResolved, models.StatusClosed)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list TAT-tracked gaps", err)
	}
	defer rows.Close()

	var gaps []*models.Gap
	for rows.Next() {
		gap, err := scanGap(rows)
		if err != nil {
			return nil, apperrors.InternalWrap("failed to scan gap row", err)
		}
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}

// IDsReportedBy returns the ids of gaps a given user reported, the read
// scope for the QA/Ops role (§4.2).
func (s *GapStore) IDsReportedBy(ctx context.Context, reporterID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM gaps WHERE reporter_id = $1`, reporterID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list gaps by reporter", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// IDsVisibleToPoc returns the ids of gaps a given user may see as a POC:
// gaps they are primary assignee on, plus gaps they are rostered on
// (§4.2).
func (s *GapStore) IDsVisibleToPoc(ctx context.Context, userID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM gaps WHERE assigned_to_id = $1
		UNION
		SELECT gap_id FROM gap_pocs WHERE user_id = $1`, userID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list gaps visible to poc", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.InternalWrap("failed to scan gap id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalWrap("failed to iterate gap id rows", err)
	}
	return ids, nil
}

// UpdateFields applies an updateGap merge-patch's resulting full row back
// to storage, along with whichever transition timestamps the caller has
// already stamped on gap.
func (s *GapStore) UpdateFields(ctx context.Context, gap *models.Gap) error {
	gap.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE gaps SET
			title = $1, description = $2, status = $3, priority = $4, severity = $5, department = $6,
			updated_by_id = $7, in_progress_at = $8, closed_at = $9, closed_by_id = $10, updated_at = $11
		WHERE id = $12`,
		gap.Title, gap.Description, gap.Status, gap.Priority, gap.Severity, gap.Department,
		gap.UpdatedByID, gap.InProgressAt, gap.ClosedAt, gap.ClosedByID, gap.UpdatedAt, gap.ID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to update gap", err)
	}
	return nil
}

// Assign sets a gap's primary assignee and moves it to Assigned.
func (s *GapStore) Assign(ctx context.Context, gapID int64, assigneeID string, deadline *time.Time, priority *models.Priority) error {
	now := time.Now()
	query := `UPDATE gaps SET assigned_to_id = $1, status = $2, assigned_at = $3, updated_at = $3`
	args := []interface{}{assigneeID, models.StatusAssigned, now}
	argIdx := 4
	if deadline != nil {
		query += fmt.Sprintf(", tat_deadline = $%d", argIdx)
		args = append(args, *deadline)
		argIdx++
	}
	if priority != nil {
		query += fmt.Sprintf(", priority = $%d", argIdx)
		args = append(args, *priority)
		argIdx++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, gapID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.InternalWrap("failed to assign gap", err)
	}
	return nil
}

// Resolve marks a gap Resolved, stamping the summary, resolvedAt, and a
// denormalized copy of the resolution attachments for fast gap-detail
// reads; the normalized gap_attachments rows are the zip export's source.
func (s *GapStore) Resolve(ctx context.Context, gapID int64, summary string, attachments []models.Attachment) error {
	now := time.Now()
	blob, err := json.Marshal(attachments)
	if err != nil {
		return apperrors.InternalWrap("failed to marshal resolution attachments", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE gaps SET status = $1, resolution_summary = $2, resolution_attachments = $3, resolved_at = $4, updated_at = $4
		WHERE id = $5`,
		models.StatusResolved, summary, blob, now, gapID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to resolve gap", err)
	}
	return nil
}

// Reopen clears the current resolution fields and moves a gap to
// Reopened. Callers must have already archived the outgoing resolution
// into resolution_history within the same transaction-equivalent lock.
func (s *GapStore) Reopen(ctx context.Context, gapID int64, actorID string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE gaps SET
			status = $1, resolution_summary = NULL, resolution_attachments = NULL,
			resolved_at = NULL, reopened_at = $2, reopened_by_id = $3, updated_at = $2
		WHERE id = $4`,
		models.StatusReopened, now, actorID, gapID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to reopen gap", err)
	}
	return nil
}

// MarkDuplicate closes a gap as a duplicate of originalID.
func (s *GapStore) MarkDuplicate(ctx context.Context, gapID int64, originalID int64, actorID string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE gaps SET status = $1, duplicate_of_id = $2, closed_at = $3, closed_by_id = $4, updated_at = $3
		WHERE id = $5`,
		models.StatusClosed, originalID, now, actorID, gapID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to mark gap duplicate", err)
	}
	return nil
}

// SetTatDeadline updates a gap's deadline, used when a TAT extension is approved.
func (s *GapStore) SetTatDeadline(ctx context.Context, gapID int64, deadline time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE gaps SET tat_deadline = $1, updated_at = $2 WHERE id = $3`, deadline, time.Now(), gapID)
	if err != nil {
		return apperrors.InternalWrap("failed to update TAT deadline", err)
	}
	return nil
}

// SetAIResult persists AIEnricher's output: ranked sop suggestions and
// the aiProcessed flag, advancing PendingAI to NeedsReview only if the
// gap has not already moved past PendingAI while the job ran.
func (s *GapStore) SetAIResult(ctx context.Context, gapID int64, suggestions []models.SopSuggestion) error {
	blob, err := json.Marshal(suggestions)
	if err != nil {
		return apperrors.InternalWrap("failed to marshal sop suggestions", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE gaps SET
			sop_suggestions = $1,
			ai_processed = true,
			status = CASE WHEN status = $2 THEN $3 ELSE status END,
			updated_at = $4
		WHERE id = $5`,
		blob, models.StatusPendingAI, models.StatusNeedsReview, time.Now(), gapID,
	)
	if err != nil {
		return apperrors.InternalWrap("failed to persist AI result", err)
	}
	return nil
}

// SetTatNotified records the TAT window the scheduler last emitted an
// event for, keeping its sweep idempotent (§4.6).
func (s *GapStore) SetTatNotified(ctx context.Context, gapID int64, window string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE gaps SET last_tat_window_notified = $1 WHERE id = $2`, window, gapID)
	if err != nil {
		return apperrors.InternalWrap("failed to record TAT notification window", err)
	}
	return nil
}

// AddAttachments inserts attachment descriptors for a gap, tagged by kind
// ("gap" or "resolution") so the zip download (§4.7) can group them.
func (s *GapStore) AddAttachments(ctx context.Context, gapID int64, kind string, attachments []models.Attachment) error {
	for _, a := range attachments {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO gap_attachments (gap_id, kind, original_name, filename, size, mime_type)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			gapID, kind, a.OriginalName, a.Filename, a.Size, a.MimeType,
		)
		if err != nil {
			return apperrors.InternalWrap("failed to store attachment", err)
		}
	}
	return nil
}

// ListAttachments returns every stored attachment for a gap (both kinds),
// the source set for the zip download handler.
func (s *GapStore) ListAttachments(ctx context.Context, gapID int64) ([]models.Attachment, []string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original_name, filename, size, mime_type, kind FROM gap_attachments WHERE gap_id = $1 ORDER BY created_at ASC`,
		gapID,
	)
	if err != nil {
		return nil, nil, apperrors.InternalWrap("failed to list attachments", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	var kinds []string
	for rows.Next() {
		var a models.Attachment
		var kind string
		if err := rows.Scan(&a.OriginalName, &a.Filename, &a.Size, &a.MimeType, &kind); err != nil {
			return nil, nil, apperrors.InternalWrap("failed to scan attachment row", err)
		}
		attachments = append(attachments, a)
		kinds = append(kinds, kind)
	}
	return attachments, kinds, rows.Err()
}
