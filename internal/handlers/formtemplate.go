package handlers

import (
	"net/http"

	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/authz"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/gin-gonic/gin"
)

// FormTemplateHandler exposes the intake form schemas gaps are filed
// against. Templates are write-once from a handler's perspective: a new
// version is a new row, never an in-place edit, so the export path's
// dynamic column set stays stable for historical gaps.
type FormTemplateHandler struct {
	templates *db.FormTemplateStore
	audit     *middleware.AuditLogger
}

// NewFormTemplateHandler builds a FormTemplateHandler.
func NewFormTemplateHandler(templates *db.FormTemplateStore, audit *middleware.AuditLogger) *FormTemplateHandler {
	return &FormTemplateHandler{templates: templates, audit: audit}
}

// createFormTemplateRequest is the payload for POST /form-templates.
type createFormTemplateRequest struct {
	Name    string          `json:"name" validate:"required,min=1,max=200"`
	Version string          `json:"version" validate:"required"`
	Schema  models.JSONBlob `json:"schema" validate:"required"`
}

// Create handles POST /form-templates.
func (h *FormTemplateHandler) Create(c *gin.Context) {
	role, _ := auth.GetUserRole(c)
	if !authz.IsManagementTier(role) {
		apperrors.AbortWithError(c, apperrors.Forbidden("only Admin or Management may publish form templates"))
		return
	}

	var req createFormTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Version == "" || len(req.Schema) == 0 {
		apperrors.AbortWithError(c, apperrors.Invalid("name, version, and schema are required"))
		return
	}

	template := &models.FormTemplate{Name: req.Name, Version: req.Version, Schema: req.Schema}
	if err := h.templates.Create(c.Request.Context(), template); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "form_template.created", "form_template", template.ID, nil)
	c.JSON(http.StatusCreated, template)
}

// Get handles GET /form-templates/:id.
func (h *FormTemplateHandler) Get(c *gin.Context) {
	template, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, template)
}

// List handles GET /form-templates.
func (h *FormTemplateHandler) List(c *gin.Context) {
	templates, err := h.templates.List(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"formTemplates": templates})
}
