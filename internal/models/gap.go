package models

import "time"

// Status is a gap's position in the lifecycle state machine (§4.1).
type Status string

const (
	StatusPendingAI   Status = "PendingAI"
	StatusNeedsReview Status = "NeedsReview"
	StatusAssigned    Status = "Assigned"
	StatusInProgress  Status = "InProgress"
	StatusResolved    Status = "Resolved"
	StatusClosed      Status = "Closed"
	StatusReopened    Status = "Reopened"
)

// Terminal reports whether no transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// Priority is a gap's urgency classification.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Attachment describes a stored upload, echoed back verbatim on read paths.
//
// Path is a signed download URL, not a filesystem path; resolving it still
// requires ?gapId= and the read predicate in §4.2.
type Attachment struct {
	OriginalName string `json:"originalName"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
	Path         string `json:"path"`
}

// SopSuggestion is one ranked AI suggestion attached to a gap.
type SopSuggestion struct {
	SopID     string `json:"sopId"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Gap is the central record: a reported operational process defect.
type Gap struct {
	ID          int64    `json:"id" db:"id"`
	GapID       string   `json:"gapId" db:"gap_id"`
	Title       string   `json:"title" db:"title"`
	Description string   `json:"description" db:"description"`
	Status      Status   `json:"status" db:"status"`
	Priority    Priority `json:"priority" db:"priority"`
	Severity    *string  `json:"severity,omitempty" db:"severity"`
	Department  *string  `json:"department,omitempty" db:"department"`

	ReporterID     string  `json:"reporterId" db:"reporter_id"`
	AssignedToID   *string `json:"assignedToId,omitempty" db:"assigned_to_id"`
	UpdatedByID    *string `json:"updatedById,omitempty" db:"updated_by_id"`
	ClosedByID     *string `json:"closedById,omitempty" db:"closed_by_id"`
	ReopenedByID   *string `json:"reopenedById,omitempty" db:"reopened_by_id"`

	FormTemplateID        *string `json:"formTemplateId,omitempty" db:"form_template_id"`
	FormTemplateVersion    *string `json:"formTemplateVersion,omitempty" db:"form_template_version"`
	FormResponses          *JSONBlob `json:"formResponses,omitempty" db:"form_responses"`

	TatDeadline *time.Time `json:"tatDeadline,omitempty" db:"tat_deadline"`

	AssignedAt   *time.Time `json:"assignedAt,omitempty" db:"assigned_at"`
	InProgressAt *time.Time `json:"inProgressAt,omitempty" db:"in_progress_at"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
	ClosedAt     *time.Time `json:"closedAt,omitempty" db:"closed_at"`
	ReopenedAt   *time.Time `json:"reopenedAt,omitempty" db:"reopened_at"`

	AIProcessed     bool            `json:"aiProcessed" db:"ai_processed"`
	Attachments     []Attachment    `json:"attachments,omitempty" db:"-"`
	SopSuggestions  []SopSuggestion `json:"sopSuggestions,omitempty" db:"-"`

	ResolutionSummary     *string      `json:"resolutionSummary,omitempty" db:"resolution_summary"`
	ResolutionAttachments []Attachment `json:"resolutionAttachments,omitempty" db:"-"`

	DuplicateOfID *int64 `json:"duplicateOfId,omitempty" db:"duplicate_of_id"`

	// LastTatWindowNotified records the last TAT breach window the scheduler
	// emitted an event for, so the sweep stays idempotent across ticks (§4.6).
	LastTatWindowNotified *string `json:"-" db:"last_tat_window_notified"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateGapRequest is the payload for POST /gaps.
type CreateGapRequest struct {
	Title              string    `json:"title" validate:"required,min=1,max=500"`
	Description        string    `json:"description" validate:"required,min=1"`
	Priority           Priority  `json:"priority"`
	Severity           *string   `json:"severity,omitempty"`
	Department         *string   `json:"department,omitempty"`
	FormTemplateID     *string   `json:"formTemplateId,omitempty"`
	FormResponses      *JSONBlob `json:"formResponses,omitempty"`
}

// UpdateGapRequest is the merge-patch payload for PATCH /gaps/:id.
type UpdateGapRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Severity    *string   `json:"severity,omitempty"`
	Department  *string   `json:"department,omitempty"`
	Status      *Status   `json:"status,omitempty"`
}

// AssignGapRequest is the payload for POST /gaps/:id/assign.
type AssignGapRequest struct {
	AssigneeID string     `json:"assigneeId" validate:"required"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Note       *string    `json:"note,omitempty"`
	Priority   *Priority  `json:"priority,omitempty"`
}

// ResolveGapRequest is the payload for POST /gaps/:id/resolve.
type ResolveGapRequest struct {
	Summary     string       `json:"summary" validate:"required,min=1"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MarkDuplicateRequest is the payload for POST /gaps/:id/mark-duplicate.
type MarkDuplicateRequest struct {
	OriginalID int64 `json:"originalId" validate:"required"`
}

// GapFilter narrows GET /gaps results.
type GapFilter struct {
	Status *Status
	IDs    []int64 // restricts results to this id set when non-nil (RBAC scoping)
}
