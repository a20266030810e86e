// Package db - comments.go
//
// This file implements data access for gap comment threads and their
// attachments.
package db

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
)

// CommentStore handles the comments and comment_attachments tables.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore creates a new CommentStore instance.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

// Create inserts a comment and its attachments.
func (s *CommentStore) Create(ctx context.Context, c *models.Comment) error {
	c.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (gap_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		c.GapID, c.AuthorID, c.Body, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return apperrors.InternalWrap("failed to create comment", err)
	}

	for _, a := range c.Attachments {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO comment_attachments (comment_id, original_name, filename, size, mime_type)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, a.OriginalName, a.Filename, a.Size, a.MimeType,
		)
		if err != nil {
			return apperrors.InternalWrap("failed to store comment attachment", err)
		}
	}
	return nil
}

// ListByGap returns a gap's non-deleted comments, oldest first, each with
// its attachments populated.
func (s *CommentStore) ListByGap(ctx context.Context, gapID int64) ([]*models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_id, author_id, body, created_at
		FROM comments WHERE gap_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`, gapID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list comments", err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.GapID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan comment row", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalWrap("failed to iterate comment rows", err)
	}

	for _, c := range comments {
		attachments, err := s.attachmentsFor(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Attachments = attachments
	}
	return comments, nil
}

func (s *CommentStore) attachmentsFor(ctx context.Context, commentID int64) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original_name, filename, size, mime_type FROM comment_attachments WHERE comment_id = $1`, commentID)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list comment attachments", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.OriginalName, &a.Filename, &a.Size, &a.MimeType); err != nil {
			return nil, apperrors.InternalWrap("failed to scan comment attachment row", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
