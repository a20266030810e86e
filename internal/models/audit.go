package models

import "time"

// AuditLog is an append-only record of an authenticated mutation.
type AuditLog struct {
	ID         int64     `json:"id" db:"id"`
	ActorID    *string   `json:"actorId,omitempty" db:"actor_id"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entityType" db:"entity_type"`
	EntityID   string    `json:"entityId" db:"entity_id"`
	Changes    JSONBlob  `json:"changes,omitempty" db:"changes"`
	IPAddress  string    `json:"ipAddress" db:"ip_address"`
	UserAgent  string    `json:"userAgent" db:"user_agent"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// TimelineEntryType fixes the tie-break order for entries sharing a
// timestamp during timeline synthesis (§5).
type TimelineEntryType string

const (
	TimelineCreated    TimelineEntryType = "created"
	TimelineAssigned   TimelineEntryType = "assigned"
	TimelineInProgress TimelineEntryType = "in_progress"
	TimelineResolved   TimelineEntryType = "resolved"
	TimelineReopened   TimelineEntryType = "reopened"
	TimelineClosed     TimelineEntryType = "closed"
	TimelineAudit      TimelineEntryType = "audit"
)

// timelineOrder gives each type a fixed sort rank for tie-breaking.
var timelineOrder = map[TimelineEntryType]int{
	TimelineCreated:    0,
	TimelineAssigned:   1,
	TimelineInProgress: 2,
	TimelineResolved:   3,
	TimelineReopened:   4,
	TimelineClosed:     5,
	TimelineAudit:      6,
}

// Rank returns the fixed tie-break rank for t.
func (t TimelineEntryType) Rank() int {
	return timelineOrder[t]
}

// TimelineEntry is one synthesized lifecycle event for GET /gaps/:id/timeline.
type TimelineEntry struct {
	Type      TimelineEntryType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	ActorID   *string           `json:"actorId,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}
