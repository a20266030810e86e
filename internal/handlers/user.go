package handlers

import (
	"net/http"

	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// UserHandler exposes admin-only user management. Every route here must
// sit behind auth.RequireRole(models.RoleAdmin) in the router; nothing
// in this file re-checks role.
type UserHandler struct {
	users *db.UserStore
	audit *middleware.AuditLogger
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users *db.UserStore, audit *middleware.AuditLogger) *UserHandler {
	return &UserHandler{users: users, audit: audit}
}

// Create handles POST /users.
func (h *UserHandler) Create(c *gin.Context) {
	var req models.CreateUserRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	if !req.Role.Valid() {
		apperrors.AbortWithError(c, apperrors.Invalid("unrecognized role"))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "user.created", "user", user.ID, map[string]interface{}{"role": string(user.Role)})
	c.JSON(http.StatusCreated, user)
}

// List handles GET /users, optionally filtered by ?role=.
func (h *UserHandler) List(c *gin.Context) {
	var role *models.Role
	if raw := c.Query("role"); raw != "" {
		r := models.Role(raw)
		role = &r
	}

	users, err := h.users.ListUsers(c.Request.Context(), role)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// setActiveRequest is the payload for PATCH /users/:id/active.
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PATCH /users/:id/active, the soft-delete/reinstate
// toggle: users are never hard-deleted once referenced elsewhere.
func (h *UserHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Invalid("invalid request body"))
		return
	}

	userID := c.Param("id")
	if err := h.users.SetActive(c.Request.Context(), userID, req.Active); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.audit.RecordFromContext(c, "user.active_set", "user", userID, map[string]interface{}{"active": req.Active})
	c.Status(http.StatusNoContent)
}
