// Package gapcore implements the gap lifecycle state machine (§4.1): the
// single place every status transition, POC roster change, and TAT
// extension decision is applied. Handlers and the scheduler call into
// Core; Core is the only package that writes to the gaps table's status
// column.
//
// Every mutating method takes the per-gap lock returned by gapLocks
// before reading current state, so two concurrent calls against the same
// gap serialize rather than race; calls against different gaps proceed
// fully in parallel. After a transition commits, Core publishes a
// domain event on the bus so internal/notifier can fan out side effects
// without GapCore knowing anything about email or sockets.
package gapcore

import (
	"context"
	"fmt"
	"time"

	"github.com/gapopshub/api/internal/authz"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/models"
)

// AIQueue is the subset of internal/aienricher's worker pool that
// GapCore depends on, kept as an interface here so the two packages
// don't import each other.
type AIQueue interface {
	Enqueue(gapID int64, updatedAt time.Time)
}

// Core wires together the stores and collaborators a gap transition
// touches.
type Core struct {
	ids          *db.Database
	gaps         *db.GapStore
	pocs         *db.GapPocStore
	comments     *db.CommentStore
	assignments  *db.AssignmentStore
	history      *db.ResolutionHistoryStore
	extensions   *db.TatExtensionStore
	similarities *db.SimilarGapStore
	users        *db.UserStore
	bus          *events.Bus
	ai           AIQueue
	locks        *gapLocks
}

// New builds a Core from its collaborating stores. ai may be nil during
// tests that don't exercise enrichment scheduling.
func New(database *db.Database, gaps *db.GapStore, pocs *db.GapPocStore, comments *db.CommentStore, assignments *db.AssignmentStore, history *db.ResolutionHistoryStore, extensions *db.TatExtensionStore, similarities *db.SimilarGapStore, users *db.UserStore, bus *events.Bus, ai AIQueue) *Core {
	return &Core{
		ids: database, gaps: gaps, pocs: pocs, comments: comments,
		assignments: assignments, history: history, extensions: extensions,
		similarities: similarities, users: users, bus: bus, ai: ai,
		locks: newGapLocks(),
	}
}

// CreateGap allocates a monotonic human-readable id, persists a gap in
// PendingAI, enqueues AI enrichment, and emits gap.created.
func (c *Core) CreateGap(ctx context.Context, reporterID string, req *models.CreateGapRequest) (*models.Gap, error) {
	if req.Title == "" || req.Description == "" {
		return nil, apperrors.Invalid("title and description are required")
	}

	seq, err := c.ids.NextID("GAP")
	if err != nil {
		return nil, apperrors.InternalWrap("failed to mint gap id", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	gap := &models.Gap{
		GapID:          fmt.Sprintf("GAP-%04d", seq),
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.StatusPendingAI,
		Priority:       priority,
		Severity:       req.Severity,
		Department:     req.Department,
		ReporterID:     reporterID,
		FormTemplateID: req.FormTemplateID,
		FormResponses:  req.FormResponses,
		AIProcessed:    false,
	}

	if err := c.gaps.Create(ctx, gap); err != nil {
		return nil, err
	}

	c.enqueueAI(gap.ID, gap.UpdatedAt)
	c.publish(ctx, events.GapCreated, gap.ID, reporterID, gap)
	return gap, nil
}

// UpdateGap applies a merge-patch to a gap's mutable fields. Changing
// title or description invalidates the similarity graph and re-enqueues
// AI enrichment (§4.3's cache invalidation rule).
func (c *Core) UpdateGap(ctx context.Context, actorID string, gapID int64, patch *models.UpdateGapRequest) (*models.Gap, error) {
	unlock := c.locks.Lock(gapID)
	defer unlock()

	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}

	contentChanged := false
	if patch.Title != nil && *patch.Title != gap.Title {
		gap.Title = *patch.Title
		contentChanged = true
	}
	if patch.Description != nil && *patch.Description != gap.Description {
		gap.Description = *patch.Description
		contentChanged = true
	}
	if patch.Priority != nil {
		gap.Priority = *patch.Priority
	}
	if patch.Severity != nil {
		gap.Severity = patch.Severity
	}
	if patch.Department != nil {
		gap.Department = patch.Department
	}
	if patch.Status != nil {
		if err := validateManualTransition(gap.Status, *patch.Status); err != nil {
			return nil, err
		}
		gap.Status = *patch.Status
	}

	now := time.Now()
	gap.UpdatedByID = &actorID
	if gap.Status == models.StatusInProgress && gap.InProgressAt == nil {
		gap.InProgressAt = &now
	}
	if gap.Status == models.StatusClosed && gap.ClosedAt == nil {
		gap.ClosedAt = &now
		gap.ClosedByID = &actorID
	}

	if err := c.gaps.UpdateFields(ctx, gap); err != nil {
		return nil, err
	}

	if contentChanged {
		if err := c.similarities.DeleteForGap(ctx, gapID); err != nil {
			logger.Gap().Warn().Err(err).Int64("gapId", gapID).Msg("failed to invalidate similarity edges")
		}
		c.enqueueAI(gapID, gap.UpdatedAt)
	}

	return gap, nil
}

// validateManualTransition restricts the status values a plain patch may
// set directly: only the forward in-place step that has no dedicated
// operation of its own (NeedsReview/Assigned -> InProgress) and the
// direct close from InProgress. All other transitions go through their
// named operation (assignGap, resolveGap, ...) so their guards and
// side effects cannot be bypassed via PATCH.
func validateManualTransition(from, to models.Status) error {
	if from.Terminal() {
		return apperrors.Conflict("gap is closed and cannot be modified")
	}
	switch to {
	case models.StatusInProgress:
		if from != models.StatusAssigned {
			return apperrors.Conflict("gap must be Assigned before it can move to InProgress")
		}
		return nil
	case models.StatusClosed:
		return nil
	case from:
		return nil
	default:
		return apperrors.Conflict(fmt.Sprintf("cannot move a gap from %s to %s directly", from, to))
	}
}

// AssignGap sets the primary assignee and moves the gap to Assigned.
func (c *Core) AssignGap(ctx context.Context, actorID string, actorRole models.Role, gapID int64, req *models.AssignGapRequest) (*models.Gap, error) {
	if !authz.IsManagementTier(actorRole) {
		return nil, apperrors.Forbidden("only Admin or Management may assign a gap")
	}

	unlock := c.locks.Lock(gapID)
	defer unlock()

	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	if gap.Status.Terminal() {
		return nil, apperrors.Conflict("gap is closed and cannot be assigned")
	}
	if _, err := c.users.GetUser(ctx, req.AssigneeID); err != nil {
		return nil, apperrors.InvalidWrap("assignee does not exist", err)
	}

	if err := c.gaps.Assign(ctx, gapID, req.AssigneeID, req.Deadline, req.Priority); err != nil {
		return nil, err
	}
	if err := c.assignments.Create(ctx, &models.Assignment{GapID: gapID, AssigneeID: req.AssigneeID, ActorID: actorID, Note: req.Note}); err != nil {
		return nil, err
	}

	gap, err = c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.GapAssigned, gapID, actorID, gap)
	return gap, nil
}

// ResolveGap marks a gap Resolved. A POC actor must be the primary
// assignee or on the gap's roster; Admin/Management may always resolve.
func (c *Core) ResolveGap(ctx context.Context, actorID string, actorRole models.Role, gapID int64, req *models.ResolveGapRequest) (*models.Gap, error) {
	if req.Summary == "" {
		return nil, apperrors.Invalid("resolution summary is required")
	}

	unlock := c.locks.Lock(gapID)
	defer unlock()

	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	switch gap.Status {
	case models.StatusAssigned, models.StatusInProgress, models.StatusReopened:
	case models.StatusResolved:
		return nil, apperrors.Conflict("gap is already resolved")
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("gap in status %s cannot be resolved", gap.Status))
	}

	if err := c.authorizeResolve(ctx, actorID, actorRole, gap); err != nil {
		return nil, err
	}

	if err := c.gaps.Resolve(ctx, gapID, req.Summary, req.Attachments); err != nil {
		return nil, err
	}
	if len(req.Attachments) > 0 {
		if err := c.gaps.AddAttachments(ctx, gapID, "resolution", req.Attachments); err != nil {
			return nil, err
		}
	}

	gap, err = c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.GapResolved, gapID, actorID, gap)
	return gap, nil
}

func (c *Core) authorizeResolve(ctx context.Context, actorID string, actorRole models.Role, gap *models.Gap) error {
	if authz.IsManagementTier(actorRole) {
		return nil
	}
	if actorRole != models.RolePOC {
		return apperrors.Forbidden("only Admin, Management, or an assigned POC may resolve a gap")
	}
	pocIDs, err := c.pocs.UserIDs(ctx, gap.ID)
	if err != nil {
		return err
	}
	scope := authz.ScopeFromGap(gap, pocIDs)
	if !authz.CanReadGap(actorID, actorRole, scope) {
		return apperrors.Forbidden("only Admin, Management, or an assigned POC may resolve a gap")
	}
	return nil
}

// ReopenGap archives the current resolution cycle (if any) into
// resolution_history, clears the gap's active resolution fields, and
// moves it to Reopened.
func (c *Core) ReopenGap(ctx context.Context, actorID string, actorRole models.Role, gapID int64) (*models.Gap, error) {
	unlock := c.locks.Lock(gapID)
	defer unlock()

	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	if gap.Status != models.StatusResolved && gap.Status != models.StatusClosed {
		return nil, apperrors.Conflict("only a Resolved or Closed gap can be reopened")
	}

	allowed := actorRole == models.RoleQAOps || authz.IsManagementTier(actorRole) ||
		actorID == gap.ReporterID || (gap.AssignedToID != nil && *gap.AssignedToID == actorID)
	if !allowed {
		return nil, apperrors.Forbidden("only the reporter, the assignee, or QA/Ops and above may reopen a gap")
	}

	now := time.Now()
	if gap.ResolutionSummary != nil && gap.ResolvedAt != nil {
		if err := c.history.Archive(ctx, gapID, *gap.ResolutionSummary, gap.ResolutionAttachments, resolvedByOrActor(gap, actorID), *gap.ResolvedAt, actorID, now); err != nil {
			return nil, err
		}
	}

	if err := c.gaps.Reopen(ctx, gapID, actorID); err != nil {
		return nil, err
	}

	gap, err = c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.GapReopened, gapID, actorID, gap)
	return gap, nil
}

// resolvedByOrActor returns the best-known actor for the resolution being
// archived; the gap row doesn't retain a dedicated "resolved by" column,
// so the assignee (the only role permitted to resolve solo) stands in,
// falling back to actorID when no assignee is recorded.
func resolvedByOrActor(gap *models.Gap, actorID string) string {
	if gap.AssignedToID != nil {
		return *gap.AssignedToID
	}
	return actorID
}

// MarkDuplicate closes a gap as a duplicate of another, non-Closed gap.
func (c *Core) MarkDuplicate(ctx context.Context, actorID string, actorRole models.Role, gapID int64, originalID int64) (*models.Gap, error) {
	if !authz.IsManagementTier(actorRole) {
		return nil, apperrors.Forbidden("only Admin or Management may mark a gap as a duplicate")
	}
	if gapID == originalID {
		return nil, apperrors.Invalid("a gap cannot be marked a duplicate of itself")
	}

	unlock := c.locks.Lock(gapID)
	defer unlock()

	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	if gap.DuplicateOfID != nil && *gap.DuplicateOfID == originalID {
		return gap, nil
	}
	if gap.Status.Terminal() {
		return nil, apperrors.Conflict("gap is already closed")
	}

	original, err := c.gaps.Get(ctx, originalID)
	if err != nil {
		return nil, apperrors.InvalidWrap("original gap does not exist", err)
	}
	if original.Status.Terminal() && original.DuplicateOfID != nil {
		return nil, apperrors.Invalid("cannot mark a gap as a duplicate of another duplicate")
	}

	if err := c.gaps.MarkDuplicate(ctx, gapID, originalID, actorID); err != nil {
		return nil, err
	}

	gap, err = c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.GapClosedDuplicate, gapID, actorID, map[string]int64{"gapId": gapID, "originalId": originalID})
	return gap, nil
}

// RequestExtension lets a gap's primary assignee or any rostered POC ask
// for a later TAT deadline.
func (c *Core) RequestExtension(ctx context.Context, actorID string, actorRole models.Role, gapID int64, req *models.RequestExtensionRequest) (*models.TatExtension, error) {
	gap, err := c.gaps.Get(ctx, gapID)
	if err != nil {
		return nil, err
	}

	pocIDs, err := c.pocs.UserIDs(ctx, gapID)
	if err != nil {
		return nil, err
	}
	isAssignee := gap.AssignedToID != nil && *gap.AssignedToID == actorID
	isPoc := false
	for _, id := range pocIDs {
		if id == actorID {
			isPoc = true
			break
		}
	}
	if !isAssignee && !isPoc {
		return nil, apperrors.Forbidden("only the assignee or a rostered POC may request a TAT extension")
	}

	ext := &models.TatExtension{GapID: gapID, RequesterID: actorID, Reason: req.Reason, ProposedDeadline: req.ProposedDeadline}
	if err := c.extensions.Create(ctx, ext); err != nil {
		return nil, err
	}

	c.publish(ctx, events.TatExtensionRequested, gapID, actorID, ext)
	return ext, nil
}

// ReviewExtension lets Admin/Management approve or reject a pending TAT
// extension; approval updates the gap's deadline.
func (c *Core) ReviewExtension(ctx context.Context, actorID string, actorRole models.Role, extensionID int64, decision models.TatExtensionStatus) (*models.TatExtension, error) {
	if !authz.IsManagementTier(actorRole) {
		return nil, apperrors.Forbidden("only Admin or Management may review a TAT extension")
	}

	ext, err := c.extensions.Get(ctx, extensionID)
	if err != nil {
		return nil, err
	}

	if err := c.extensions.Review(ctx, extensionID, actorID, decision); err != nil {
		return nil, err
	}

	if decision == models.TatExtensionApproved {
		if err := c.gaps.SetTatDeadline(ctx, ext.GapID, ext.ProposedDeadline); err != nil {
			return nil, err
		}
	}

	return c.extensions.Get(ctx, extensionID)
}

// AddComment appends a comment to a gap's thread and emits comment.created.
func (c *Core) AddComment(ctx context.Context, actorID string, gapID int64, req *models.CreateCommentRequest) (*models.Comment, error) {
	comment := &models.Comment{GapID: gapID, AuthorID: actorID, Body: req.Body, Attachments: req.Attachments}
	if err := c.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	c.publish(ctx, events.CommentCreated, gapID, actorID, comment)
	return comment, nil
}

// AddPoc adds or promotes a POC on a gap's roster. Only users whose
// role is POC may be added (§3's GapPoc invariant) — authz's read-scope
// predicate trusts roster membership to imply that role.
func (c *Core) AddPoc(ctx context.Context, actorID string, actorRole models.Role, gapID int64, targetUserID string, primary bool) error {
	currentPrimary, err := c.pocs.PrimaryPocID(ctx, gapID)
	if err != nil {
		return err
	}
	if !authz.CanManagePocRoster(actorID, actorRole, currentPrimary) {
		return apperrors.Forbidden("only Admin, Management, or the current primary POC may change the roster")
	}

	target, err := c.users.GetUser(ctx, targetUserID)
	if err != nil {
		return err
	}
	if target.Role != models.RolePOC {
		return apperrors.Invalid("only users with the POC role may be added to a gap's roster")
	}

	return c.pocs.Add(ctx, gapID, targetUserID, primary, actorID)
}

// RemovePoc removes a user from a gap's roster.
func (c *Core) RemovePoc(ctx context.Context, actorID string, actorRole models.Role, gapID int64, targetUserID string) error {
	if !authz.CanRemovePoc(actorID, actorRole, targetUserID) {
		return apperrors.Forbidden("only Admin, Management, or the POC themself may remove a roster entry")
	}
	return c.pocs.Remove(ctx, gapID, targetUserID)
}

// Scope builds the authz.GapScope for gapID, for callers (handlers, the
// realtime join-gap handshake) that only have a gap id and need to
// apply the read predicate.
func (c *Core) Scope(ctx context.Context, gap *models.Gap) (authz.GapScope, error) {
	pocIDs, err := c.pocs.UserIDs(ctx, gap.ID)
	if err != nil {
		return authz.GapScope{}, err
	}
	return authz.ScopeFromGap(gap, pocIDs), nil
}

func (c *Core) enqueueAI(gapID int64, updatedAt time.Time) {
	if c.ai == nil {
		return
	}
	c.ai.Enqueue(gapID, updatedAt)
}

func (c *Core) publish(ctx context.Context, typ events.Type, gapID int64, actorID string, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, events.Event{Type: typ, GapID: gapID, ActorID: actorID, Payload: payload})
}
