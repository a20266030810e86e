package models

import "time"

// GapPoc is a many-to-many row between a gap and a POC user.
type GapPoc struct {
	ID        int64     `json:"id" db:"id"`
	GapID     int64     `json:"gapId" db:"gap_id"`
	UserID    string    `json:"userId" db:"user_id"`
	IsPrimary bool      `json:"isPrimary" db:"is_primary"`
	AddedByID string    `json:"addedById" db:"added_by_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Comment is a thread entry bound to a gap.
type Comment struct {
	ID          int64        `json:"id" db:"id"`
	GapID       int64        `json:"gapId" db:"gap_id"`
	AuthorID    string       `json:"authorId" db:"author_id"`
	Body        string       `json:"body" db:"body"`
	Attachments []Attachment `json:"attachments,omitempty" db:"-"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	DeletedAt   *time.Time   `json:"-" db:"deleted_at"`
}

// CreateCommentRequest is the payload for POST /gaps/:id/comments.
type CreateCommentRequest struct {
	Body        string       `json:"body" validate:"required,min=1"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ResolutionHistory is an append-only record of a completed resolution cycle.
type ResolutionHistory struct {
	ID                    int64        `json:"id" db:"id"`
	GapID                 int64        `json:"gapId" db:"gap_id"`
	ResolutionSummary     string       `json:"resolutionSummary" db:"resolution_summary"`
	ResolutionAttachments []Attachment `json:"resolutionAttachments,omitempty" db:"-"`
	ResolvedByID          string       `json:"resolvedById" db:"resolved_by_id"`
	ResolvedAt            time.Time    `json:"resolvedAt" db:"resolved_at"`
	ReopenedByID          *string      `json:"reopenedById,omitempty" db:"reopened_by_id"`
	ReopenedAt            *time.Time   `json:"reopenedAt,omitempty" db:"reopened_at"`
}

// Assignment is an audit row of each (re)assignment of a gap.
type Assignment struct {
	ID         int64     `json:"id" db:"id"`
	GapID      int64     `json:"gapId" db:"gap_id"`
	AssigneeID string    `json:"assigneeId" db:"assignee_id"`
	ActorID    string    `json:"actorId" db:"actor_id"`
	Note       *string   `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// TatExtensionStatus is the decision state of a TAT extension request.
type TatExtensionStatus string

const (
	TatExtensionPending  TatExtensionStatus = "Pending"
	TatExtensionApproved TatExtensionStatus = "Approved"
	TatExtensionRejected TatExtensionStatus = "Rejected"
)

// TatExtension is a request for a later deadline on a gap.
type TatExtension struct {
	ID                int64              `json:"id" db:"id"`
	GapID             int64              `json:"gapId" db:"gap_id"`
	RequesterID       string             `json:"requesterId" db:"requester_id"`
	Reason            string             `json:"reason" db:"reason"`
	ProposedDeadline  time.Time          `json:"proposedDeadline" db:"proposed_deadline"`
	Status            TatExtensionStatus `json:"status" db:"status"`
	ReviewerID        *string            `json:"reviewerId,omitempty" db:"reviewer_id"`
	ReviewedAt        *time.Time         `json:"reviewedAt,omitempty" db:"reviewed_at"`
	CreatedAt         time.Time          `json:"createdAt" db:"created_at"`
}

// RequestExtensionRequest is the payload for POST /gaps/:id/extensions.
type RequestExtensionRequest struct {
	Reason           string    `json:"reason" validate:"required,min=1"`
	ProposedDeadline time.Time `json:"proposedDeadline" validate:"required"`
}

// ReviewExtensionRequest is the payload for PATCH /extensions/:id.
type ReviewExtensionRequest struct {
	Decision TatExtensionStatus `json:"decision" validate:"required,oneof=Approved Rejected"`
}

// SimilarGap is a directed similarity edge between two gaps.
type SimilarGap struct {
	ID           int64     `json:"id" db:"id"`
	GapID        int64     `json:"gapId" db:"gap_id"`
	SimilarGapID int64     `json:"similarGapId" db:"similar_gap_id"`
	Score        int       `json:"score" db:"score"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// FormTemplate is a named JSON schema blob referenced by gaps.
type FormTemplate struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Version   string    `json:"version" db:"version"`
	Schema    JSONBlob  `json:"schema" db:"schema"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
