package handlers

import (
	"net/http"
	"strconv"

	"github.com/gapopshub/api/internal/auth"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// ReviewExtension handles PATCH /extensions/:id, approving or rejecting a
// TAT extension request.
func (h *GapHandler) ReviewExtension(c *gin.Context) {
	extensionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Invalid("extension id must be numeric"))
		return
	}

	var req models.ReviewExtensionRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	ext, err := h.core.ReviewExtension(c.Request.Context(), userID, role, extensionID, req.Decision)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "extension.reviewed", "tat_extension", itoa(ext.ID), map[string]interface{}{"decision": string(req.Decision)})
	c.JSON(http.StatusOK, ext)
}
