package handlers

import (
	"net/http"

	"github.com/gapopshub/api/internal/auth"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// AddComment handles POST /gaps/:id/comments.
func (h *GapHandler) AddComment(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	var req models.CreateCommentRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	userID, _ := auth.GetUserID(c)
	comment, err := h.core.AddComment(c.Request.Context(), userID, gapID, &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "comment.created", "comment", itoa(comment.ID), nil)
	c.JSON(http.StatusCreated, comment)
}

// ListComments handles GET /gaps/:id/comments.
func (h *GapHandler) ListComments(c *gin.Context) {
	gapID, ok := gapIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.loadScoped(c, gapID); !ok {
		return
	}

	comments, err := h.comments.ListByGap(c.Request.Context(), gapID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}
