// Package handlers wires the HTTP surface onto internal/gapcore and the
// store layer: binding and validating requests, enforcing the read-scope
// rules in internal/authz, delegating every state transition to
// gapcore.Core, and writing an audit trail for mutations. Handlers carry
// no business logic of their own beyond request shaping — a rule that
// needs to hold for WebSocket joins too belongs in gapcore or authz, not
// here.
package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/authz"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/gapcore"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/uploads"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// GapHandler exposes the gap lifecycle and its attached sub-resources
// (POCs, comments, extensions, timeline, attachment bundles).
type GapHandler struct {
	core       *gapcore.Core
	gaps       *db.GapStore
	pocs       *db.GapPocStore
	comments   *db.CommentStore
	history    *db.ResolutionHistoryStore
	extensions *db.TatExtensionStore
	similar    *db.SimilarGapStore
	audit      *middleware.AuditLogger
	uploads    *uploads.Store
}

// NewGapHandler builds a GapHandler from its collaborating stores.
func NewGapHandler(core *gapcore.Core, gaps *db.GapStore, pocs *db.GapPocStore, comments *db.CommentStore, history *db.ResolutionHistoryStore, extensions *db.TatExtensionStore, similar *db.SimilarGapStore, audit *middleware.AuditLogger, store *uploads.Store) *GapHandler {
	return &GapHandler{
		core: core, gaps: gaps, pocs: pocs, comments: comments,
		history: history, extensions: extensions, similar: similar,
		audit: audit, uploads: store,
	}
}

// gapIDParam parses the :id path param, aborting with 400 on a bad value.
func gapIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Invalid("gap id must be numeric"))
		return 0, false
	}
	return id, true
}

// loadScoped fetches a gap and its POC roster and checks the caller may
// read it, aborting the request on any failure. Every gap-scoped
// endpoint in this file goes through here first.
func (h *GapHandler) loadScoped(c *gin.Context, gapID int64) (*models.Gap, bool) {
	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)

	gap, err := h.gaps.Get(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return nil, false
	}

	pocIDs, err := h.pocs.UserIDs(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return nil, false
	}

	if !authz.CanReadGap(userID, role, authz.ScopeFromGap(gap, pocIDs)) {
		apperrors.AbortWithError(c, apperrors.Forbidden("you do not have access to this gap"))
		return nil, false
	}
	return gap, true
}

// Create handles POST /gaps.
func (h *GapHandler) Create(c *gin.Context) {
	var req models.CreateGapRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	gap, err := h.core.CreateGap(c.Request.Context(), userID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.created", "gap", gap.GapID, map[string]interface{}{"title": gap.Title})
	c.JSON(http.StatusCreated, gap)
}

// List handles GET /gaps, scoping results to what the caller's role may
// see before the status filter in the query string is applied.
func (h *GapHandler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)

	filter := models.GapFilter{}
	if status := c.Query("status"); status != "" {
		s := models.Status(status)
		filter.Status = &s
	}

	switch role {
	case models.RoleAdmin, models.RoleManagement:
		// unrestricted: filter.IDs stays nil
	case models.RoleQAOps:
		ids, err := h.gaps.IDsReportedBy(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		filter.IDs = ids
	case models.RolePOC:
		ids, err := h.gaps.IDsVisibleToPoc(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		filter.IDs = ids
	default:
		apperrors.AbortWithError(c, apperrors.Forbidden("unrecognized role"))
		return
	}

	gaps, err := h.gaps.List(c.Request.Context(), filter)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gaps": gaps})
}

// Get handles GET /gaps/:id.
func (h *GapHandler) Get(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	gap, ok := h.loadScoped(c, gapID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gap)
}

// Update handles PATCH /gaps/:id.
func (h *GapHandler) Update(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	var req models.UpdateGapRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	gap, err := h.core.UpdateGap(c.Request.Context(), userID, gapID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.updated", "gap", gap.GapID, nil)
	c.JSON(http.StatusOK, gap)
}

// Assign handles POST /gaps/:id/assign.
func (h *GapHandler) Assign(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	var req models.AssignGapRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	gap, err := h.core.AssignGap(c.Request.Context(), userID, role, gapID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.assigned", "gap", gap.GapID, map[string]interface{}{"assigneeId": req.AssigneeID})
	c.JSON(http.StatusOK, gap)
}

// Resolve handles POST /gaps/:id/resolve.
func (h *GapHandler) Resolve(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	var req models.ResolveGapRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	gap, err := h.core.ResolveGap(c.Request.Context(), userID, role, gapID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.resolved", "gap", gap.GapID, nil)
	c.JSON(http.StatusOK, gap)
}

// Reopen handles POST /gaps/:id/reopen.
func (h *GapHandler) Reopen(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	gap, err := h.core.ReopenGap(c.Request.Context(), userID, role, gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.reopened", "gap", gap.GapID, nil)
	c.JSON(http.StatusOK, gap)
}

// MarkDuplicate handles POST /gaps/:id/mark-duplicate.
func (h *GapHandler) MarkDuplicate(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	var req models.MarkDuplicateRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	gap, err := h.core.MarkDuplicate(c.Request.Context(), userID, role, gapID, req.OriginalID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.marked_duplicate", "gap", gap.GapID, map[string]interface{}{"originalId": req.OriginalID})
	c.JSON(http.StatusOK, gap)
}

// RequestExtension handles POST /gaps/:id/extensions.
func (h *GapHandler) RequestExtension(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	var req models.RequestExtensionRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	ext, err := h.core.RequestExtension(c.Request.Context(), userID, role, gapID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "extension.requested", "tat_extension", strconv.FormatInt(ext.ID, 10), nil)
	c.JSON(http.StatusCreated, ext)
}

// Similar handles GET /gaps/:id/similar.
func (h *GapHandler) Similar(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	edges, err := h.similar.ListByGap(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"similarGaps": edges})
}

// AddAttachments handles POST /gaps/:id/attachments, saving a multipart
// upload directly against a gap's "gap" kind — the path a reporter uses
// to attach evidence at or after creation, since CreateGapRequest itself
// carries no file payload.
func (h *GapHandler) AddAttachments(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Invalid("expected a multipart/form-data request"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		apperrors.AbortWithError(c, apperrors.Invalid("no files provided under the \"files\" field"))
		return
	}

	existing, _, err := h.gaps.ListAttachments(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	attachments, err := h.uploads.Save(len(existing), headers)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	if err := h.gaps.AddAttachments(c.Request.Context(), gapID, "gap", attachments); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "gap.attachments_added", "gap", itoa(gapID), map[string]interface{}{"count": len(attachments)})
	c.JSON(http.StatusCreated, gin.H{"attachments": attachments})
}

// Timeline handles GET /gaps/:id/timeline, merging lifecycle timestamps
// from the gap row, its resolution history, and its audit trail into a
// single chronologically ordered view (§5).
func (h *GapHandler) Timeline(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	gap, ok := h.loadScoped(c, gapID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	history, err := h.history.ListByGap(ctx, gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	// The audit trail records this gap's entity_id under both forms
	// handlers have historically used: the human id (gap.created et al)
	// and the raw numeric id (poc.added/removed, attachments_added).
	audit, err := h.audit.ListForEntities(ctx, "gap", []string{itoa(gapID), gap.GapID})
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	extensions, err := h.extensions.ListByGap(ctx, gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	extIDs := make([]string, len(extensions))
	for i, ext := range extensions {
		extIDs[i] = itoa(ext.ID)
	}
	extAudit, err := h.audit.ListForEntities(ctx, "tat_extension", extIDs)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	entries := buildTimeline(gap, history, append(audit, extAudit...))
	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

// buildTimeline assembles the lifecycle events recorded directly on the
// gap row, every completed resolve/reopen cycle, and the audit trail
// (roster changes, TAT extension request/review), then sorts by
// timestamp with TimelineEntryType.Rank() breaking ties.
func buildTimeline(gap *models.Gap, history []*models.ResolutionHistory, audit []models.AuditLog) []models.TimelineEntry {
	entries := []models.TimelineEntry{
		{Type: models.TimelineCreated, Timestamp: gap.CreatedAt, ActorID: &gap.ReporterID},
	}
	if gap.AssignedAt != nil {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineAssigned, Timestamp: *gap.AssignedAt, ActorID: gap.AssignedToID})
	}
	if gap.InProgressAt != nil {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineInProgress, Timestamp: *gap.InProgressAt})
	}
	if gap.ResolvedAt != nil {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineResolved, Timestamp: *gap.ResolvedAt, Detail: derefStr(gap.ResolutionSummary)})
	}
	if gap.ClosedAt != nil {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineClosed, Timestamp: *gap.ClosedAt, ActorID: gap.ClosedByID})
	}
	if gap.ReopenedAt != nil {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineReopened, Timestamp: *gap.ReopenedAt, ActorID: gap.ReopenedByID})
	}
	for _, h := range history {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineResolved, Timestamp: h.ResolvedAt, ActorID: &h.ResolvedByID, Detail: h.ResolutionSummary})
		if h.ReopenedAt != nil {
			entries = append(entries, models.TimelineEntry{Type: models.TimelineReopened, Timestamp: *h.ReopenedAt, ActorID: h.ReopenedByID})
		}
	}
	for _, entry := range audit {
		entries = append(entries, models.TimelineEntry{Type: models.TimelineAudit, Timestamp: entry.CreatedAt, ActorID: entry.ActorID, Detail: entry.Action})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Type.Rank() < entries[j].Type.Rank()
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return dedupeTimeline(entries)
}

// timelineDedupeWindow is how close two same-type entries must land to
// be treated as the same lifecycle event.
const timelineDedupeWindow = 2 * time.Second

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// dedupeTimeline drops entries that share a type and land within two
// seconds of an entry already kept, so a resolve recorded both on the
// gap row and in resolution_history doesn't double up in the response.
func dedupeTimeline(entries []models.TimelineEntry) []models.TimelineEntry {
	out := make([]models.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		dup := false
		for _, kept := range out {
			if kept.Type == e.Type && absDuration(kept.Timestamp.Sub(e.Timestamp)) <= timelineDedupeWindow {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DownloadAttachments handles GET /gaps/:id/attachments/download,
// streaming every attachment on the gap — originals, resolution
// evidence, and comment uploads — as a single zip (§4.8).
func (h *GapHandler) DownloadAttachments(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	attachments, kinds, err := h.gaps.ListAttachments(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	comments, err := h.comments.ListByGap(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	for _, cm := range comments {
		for _, a := range cm.Attachments {
			attachments = append(attachments, a)
			kinds = append(kinds, "comment-"+strconv.FormatInt(cm.ID, 10))
		}
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", "attachment; filename=\""+c.Param("id")+"-attachments.zip\"")
	if err := h.uploads.WriteZip(c.Writer, attachments, kinds); err != nil {
		apperrors.HandleError(c, err)
		return
	}
}
