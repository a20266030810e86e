package handlers

import (
	"net/http"

	"github.com/gapopshub/api/internal/auth"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gin-gonic/gin"
)

// addPocRequest is the payload for POST /gaps/:id/pocs.
type addPocRequest struct {
	UserID  string `json:"userId" validate:"required"`
	Primary bool   `json:"primary"`
}

// AddPoc handles POST /gaps/:id/pocs.
func (h *GapHandler) AddPoc(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}

	var req addPocRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		apperrors.AbortWithError(c, apperrors.Invalid("userId is required"))
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	if err := h.core.AddPoc(c.Request.Context(), userID, role, gapID, req.UserID, req.Primary); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "poc.added", "gap", itoa(gapID), map[string]interface{}{"userId": req.UserID, "primary": req.Primary})
	c.Status(http.StatusNoContent)
}

// RemovePoc handles DELETE /gaps/:id/pocs/:userId.
func (h *GapHandler) RemovePoc(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	targetUserID := c.Param("userId")
	if targetUserID == "" {
		apperrors.AbortWithError(c, apperrors.Invalid("userId path segment is required"))
		return
	}

	userID, _ := auth.GetUserID(c)
	role, _ := auth.GetUserRole(c)
	if err := h.core.RemovePoc(c.Request.Context(), userID, role, gapID, targetUserID); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "poc.removed", "gap", itoa(gapID), map[string]interface{}{"userId": targetUserID})
	c.Status(http.StatusNoContent)
}

// ListPocs handles GET /gaps/:id/pocs.
func (h *GapHandler) ListPocs(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	pocs, err := h.pocs.List(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pocs": pocs})
}
