package handlers

import (
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/export"
	"github.com/gapopshub/api/internal/models"
	"github.com/gin-gonic/gin"
)

// ExportHandler renders the gap workbook behind GET /reports/export.
type ExportHandler struct {
	gaps      *db.GapStore
	templates *db.FormTemplateStore
	users     *db.UserStore
}

// NewExportHandler builds an ExportHandler.
func NewExportHandler(gaps *db.GapStore, templates *db.FormTemplateStore, users *db.UserStore) *ExportHandler {
	return &ExportHandler{gaps: gaps, templates: templates, users: users}
}

// Export handles GET /reports/export, restricted to the management tier
// by the router since it returns every gap regardless of reporter/POC.
func (h *ExportHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	var filter models.GapFilter
	if status := c.Query("status"); status != "" {
		s := models.Status(status)
		filter.Status = &s
	}

	gaps, err := h.gaps.List(ctx, filter)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	templates, err := h.templates.List(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	names := map[string]string{}
	lookup := func(userID string) string {
		if name, ok := names[userID]; ok {
			return name
		}
		user, err := h.users.GetUser(ctx, userID)
		if err != nil {
			names[userID] = userID
			return userID
		}
		names[userID] = user.DisplayName
		return user.DisplayName
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\"gap-report.xlsx\"")
	if err := export.WriteWorkbook(c.Writer, gaps, templates, lookup); err != nil {
		apperrors.HandleError(c, err)
		return
	}
}
