package handlers

import (
	"net/http"

	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/authz"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// SopHandler exposes the SOP catalog: publishing is restricted to the
// management tier, browsing is open to every authenticated role.
type SopHandler struct {
	sops  *db.SopStore
	audit *middleware.AuditLogger
}

// NewSopHandler builds a SopHandler.
func NewSopHandler(sops *db.SopStore, audit *middleware.AuditLogger) *SopHandler {
	return &SopHandler{sops: sops, audit: audit}
}

// Create handles POST /sops.
func (h *SopHandler) Create(c *gin.Context) {
	role, _ := auth.GetUserRole(c)
	if !authz.IsManagementTier(role) {
		apperrors.AbortWithError(c, apperrors.Forbidden("only Admin or Management may publish SOPs"))
		return
	}

	var req models.CreateSopRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	sop := &models.Sop{
		ParentSopID: req.ParentSopID,
		Title:       req.Title,
		Description: req.Description,
		Body:        req.Body,
		Category:    req.Category,
		Department:  req.Department,
		CreatedByID: userID,
	}
	if err := h.sops.Create(c.Request.Context(), sop); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "sop.created", "sop", sop.ID, nil)
	c.JSON(http.StatusCreated, sop)
}

// Get handles GET /sops/:id.
func (h *SopHandler) Get(c *gin.Context) {
	sop, err := h.sops.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sop)
}

// List handles GET /sops. Management tiers see the full catalog
// including retired SOPs via ?all=true; everyone else sees active ones.
func (h *SopHandler) List(c *gin.Context) {
	role, _ := auth.GetUserRole(c)
	if c.Query("all") == "true" && authz.IsManagementTier(role) {
		sops, err := h.sops.ListAll(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sops": sops})
		return
	}

	sops, err := h.sops.List(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sops": sops})
}

// Update handles PATCH /sops/:id.
func (h *SopHandler) Update(c *gin.Context) {
	role, _ := auth.GetUserRole(c)
	if !authz.IsManagementTier(role) {
		apperrors.AbortWithError(c, apperrors.Forbidden("only Admin or Management may modify SOPs"))
		return
	}

	sop, err := h.sops.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	var req models.UpdateSopRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	if req.Title != nil {
		sop.Title = *req.Title
	}
	if req.Description != nil {
		sop.Description = *req.Description
	}
	if req.Body != nil {
		sop.Body = *req.Body
	}
	if req.Category != nil {
		sop.Category = req.Category
	}
	if req.Department != nil {
		sop.Department = req.Department
	}
	if req.Version != nil {
		sop.Version = *req.Version
	}
	if req.Active != nil {
		sop.Active = *req.Active
	}

	parentChanged := false
	if req.ParentSopID != nil && (sop.ParentSopID == nil || *sop.ParentSopID != *req.ParentSopID) {
		parentChanged = true
		sop.ParentSopID = req.ParentSopID
	}

	ctx := c.Request.Context()
	if parentChanged {
		newID, err := h.sops.MintID(ctx, sop.ParentSopID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if err := h.sops.Rename(ctx, sop.ID, newID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		sop.ID = newID
	}

	if err := h.sops.Update(ctx, sop); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "sop.updated", "sop", sop.ID, nil)
	c.JSON(http.StatusOK, sop)
}
