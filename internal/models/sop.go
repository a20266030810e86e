package models

import "time"

// Sop is a Standard Operating Procedure document, optionally organized
// hierarchically under a parent SOP (§3).
type Sop struct {
	ID            string    `json:"id" db:"id"`
	ParentSopID   *string   `json:"parentSopId,omitempty" db:"parent_sop_id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	Body          string    `json:"body" db:"body"`
	Category      *string   `json:"category,omitempty" db:"category"`
	Department    *string   `json:"department,omitempty" db:"department"`
	Version       string    `json:"version" db:"version"`
	Active        bool      `json:"active" db:"active"`
	CreatedByID   string    `json:"createdById" db:"created_by_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// CreateSopRequest is the payload for POST /sops.
type CreateSopRequest struct {
	ParentSopID *string `json:"parentSopId,omitempty" validate:"omitempty,sopid"`
	Title       string  `json:"title" validate:"required,min=1,max=300"`
	Description string  `json:"description" validate:"required"`
	Body        string  `json:"body" validate:"required"`
	Category    *string `json:"category,omitempty"`
	Department  *string `json:"department,omitempty"`
}

// UpdateSopRequest is the merge-patch payload for PATCH /sops/:id.
type UpdateSopRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Body        *string `json:"body,omitempty"`
	Category    *string `json:"category,omitempty"`
	Department  *string `json:"department,omitempty"`
	Version     *string `json:"version,omitempty"`
	Active      *bool   `json:"active,omitempty"`
	ParentSopID *string `json:"parentSopId,omitempty" validate:"omitempty,sopid"`
}
