package handlers

import (
	"context"
	"net/http"
	"time"

	authpkg "github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/config"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/validator"
	"github.com/gin-gonic/gin"
)

// AuthHandler issues and revokes the signed session cookie that fronts
// every other route.
type AuthHandler struct {
	users    *db.UserStore
	jwt      *authpkg.JWTManager
	session  config.SessionConfig
	sessions *middleware.SessionManager
}

// NewAuthHandler builds an AuthHandler. sessions enforces the idle-timeout
// and per-user concurrent-session caps on top of the JWT's own expiry.
func NewAuthHandler(users *db.UserStore, jwt *authpkg.JWTManager, session config.SessionConfig, sessions *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, session: session, sessions: sessions}
}

// loginRequest is the payload for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login: verifies credentials, mints a JWT
// bound to a tracked session, and sets it as an httpOnly cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.VerifyPassword(ctx, req.Email, req.Password)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	token, sessionID, err := h.jwt.GenerateTokenWithContext(ctx, user.ID, user.Email, user.DisplayName, user.Role, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		apperrors.HandleError(c, apperrors.InternalWrap("failed to mint session", err))
		return
	}

	if h.sessions != nil {
		if err := h.sessions.RegisterSession(user.ID, sessionID); err != nil {
			apperrors.HandleError(c, apperrors.Forbidden("maximum concurrent sessions reached, log out of another session first"))
			return
		}
	}

	if err := h.users.TouchLastLogin(ctx, user.ID); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	setSessionCookie(c, token, h.session.TTL)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout handles POST /auth/logout: invalidates the tracked session (if
// any) and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, hasUser := authpkg.GetUserID(c)
	if sessionID, ok := c.Get("sessionID"); ok {
		if id, ok := sessionID.(string); ok && id != "" {
			_ = h.jwt.InvalidateSession(context.Background(), id)
			if h.sessions != nil && hasUser {
				h.sessions.UnregisterSession(userID, id)
			}
		}
	}
	clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

// Me handles GET /auth/me, returning the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := authpkg.GetUserID(c)
	if !ok {
		apperrors.AbortWithError(c, apperrors.Unauthenticated("not authenticated"))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func setSessionCookie(c *gin.Context, token string, ttl time.Duration) {
	secure := gin.Mode() != gin.DebugMode
	c.SetCookie(authpkg.SessionCookieName, token, int(ttl.Seconds()), "/", "", secure, true)
}

func clearSessionCookie(c *gin.Context) {
	secure := gin.Mode() != gin.DebugMode
	c.SetCookie(authpkg.SessionCookieName, "", -1, "/", "", secure, true)
}
