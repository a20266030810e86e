// Package authz implements the role-based read-scope and write-gate
// rules shared by HTTP handlers and realtime room joins.
//
// Read scope over a gap (§4.2):
//
//   - Admin, Management: every gap.
//   - QA/Ops: only gaps they reported.
//   - POC: only gaps where they are the primary assignee or rostered.
//
// The same CanReadGap predicate backs GET /gaps/:id, comments, attachment
// downloads, the timeline endpoint, and the WebSocket join-gap handshake,
// so a user's visibility can never diverge between transports.
package authz

import (
	"github.com/gapopshub/api/internal/models"
)

// GapScope describes the fields CanReadGap needs to decide visibility,
// decoupled from the full models.Gap so callers in internal/realtime
// (which only has a gap ID and a roster lookup) can build one cheaply.
type GapScope struct {
	ReporterID   string
	AssignedToID *string
	PocUserIDs   []string
}

// ScopeFromGap builds a GapScope from a loaded gap and its POC roster.
func ScopeFromGap(gap *models.Gap, pocUserIDs []string) GapScope {
	return GapScope{
		ReporterID:   gap.ReporterID,
		AssignedToID: gap.AssignedToID,
		PocUserIDs:   pocUserIDs,
	}
}

// CanReadGap reports whether a user with the given id and role may read a
// gap matching scope.
func CanReadGap(userID string, role models.Role, scope GapScope) bool {
	switch role {
	case models.RoleAdmin, models.RoleManagement:
		return true
	case models.RoleQAOps:
		return scope.ReporterID == userID
	case models.RolePOC:
		if scope.AssignedToID != nil && *scope.AssignedToID == userID {
			return true
		}
		for _, poc := range scope.PocUserIDs {
			if poc == userID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CanManagePocRoster reports whether actor may add or change primary POC
// status on a gap: Admin, Management, or the gap's current primary POC.
func CanManagePocRoster(actorID string, role models.Role, currentPrimaryPocID *string) bool {
	if role == models.RoleAdmin || role == models.RoleManagement {
		return true
	}
	return currentPrimaryPocID != nil && *currentPrimaryPocID == actorID
}

// CanRemovePoc reports whether actor may remove targetUserID from a gap's
// POC roster: Admin/Management may remove anyone, others only themselves.
func CanRemovePoc(actorID string, role models.Role, targetUserID string) bool {
	if role == models.RoleAdmin || role == models.RoleManagement {
		return true
	}
	return actorID == targetUserID
}

// IsManagementTier reports whether role is Admin or Management — the
// tier authorized to review TAT extensions and SOP publication.
func IsManagementTier(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleManagement
}
