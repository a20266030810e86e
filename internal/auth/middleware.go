// Package auth provides authentication for the Gap Intelligence API.
// This file implements Gin middleware for session-cookie validation and
// role-based access control.
//
// AUTHENTICATION FLOW
//
// 1. Client logs in; the server sets a signed, httpOnly session cookie
//    (see internal/handlers/auth.go).
// 2. Every subsequent request carries the cookie automatically.
// 3. Middleware validates the cookie's signature, expiration, and
//    server-side session record, then loads the user and checks it is
//    still active.
// 4. User identity is stored in the Gin context for handlers and the
//    RBAC predicates in internal/authz to read.
//
// WebSocket upgrade requests cannot set custom headers from a browser,
// so the cookie is still the primary path; a "token" query parameter is
// accepted as a fallback for the handful of clients that need it.
//
// MIDDLEWARE
//
//   - Middleware: required authentication, 401 on missing/invalid
//     session, 403 on disabled account.
//   - OptionalAuth: validates a session if present, continues
//     unauthenticated otherwise.
//   - RequireRole / RequireAnyRole: role-gated authorization, must run
//     after Middleware.
//
// CONTEXT KEYS
//
//   - "userID", "userEmail", "userDisplayName", "userRole", "claims",
//     "sessionID"
package auth

import (
	"net/http"
	"strings"

	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/models"
	"github.com/gin-gonic/gin"
)

// SessionCookieName is the name of the httpOnly session cookie.
const SessionCookieName = "gap_session"

// Middleware creates an authentication middleware that validates the
// session cookie (or, for WebSocket upgrades, a token query parameter)
// and ensures the user account is still active.
func Middleware(jwtManager *JWTManager, userStore *db.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		isWebSocket := isWebSocketUpgrade(c)

		tokenString := extractToken(c, isWebSocket)
		if tokenString == "" {
			abortUnauthenticated(c, isWebSocket, "authentication required")
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			abortUnauthenticated(c, isWebSocket, "invalid or expired session")
			return
		}

		if claims.ID != "" {
			valid, err := jwtManager.ValidateSession(c.Request.Context(), claims.ID)
			if err != nil || !valid {
				abortUnauthenticated(c, isWebSocket, "session expired or invalidated")
				return
			}
		}

		user, err := userStore.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			abortUnauthenticated(c, isWebSocket, "user not found")
			return
		}

		if !user.Active {
			if isWebSocket {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "user account is disabled"})
			c.Abort()
			return
		}

		setUserContext(c, claims)
		c.Next()
	}
}

// OptionalAuth validates a session cookie if present but allows the
// request through either way, useful for routes that behave differently
// for an authenticated caller without requiring one.
func OptionalAuth(jwtManager *JWTManager, userStore *db.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c, false)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.Next()
			return
		}

		if claims.ID != "" {
			valid, err := jwtManager.ValidateSession(c.Request.Context(), claims.ID)
			if err != nil || !valid {
				c.Next()
				return
			}
		}

		user, err := userStore.GetUser(c.Request.Context(), claims.UserID)
		if err == nil && user.Active {
			setUserContext(c, claims)
		}

		c.Next()
	}
}

// RequireRole requires an exact role match.
func RequireRole(requiredRole models.Role) gin.HandlerFunc {
	return RequireAnyRole(requiredRole)
}

// RequireAnyRole requires one of the given roles.
func RequireAnyRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}

func isWebSocketUpgrade(c *gin.Context) bool {
	upgrade := strings.ToLower(c.GetHeader("Upgrade"))
	connection := strings.ToLower(c.GetHeader("Connection"))
	return upgrade == "websocket" && strings.Contains(connection, "upgrade")
}

func extractToken(c *gin.Context, isWebSocket bool) string {
	if isWebSocket {
		if token := c.Query("token"); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

func abortUnauthenticated(c *gin.Context, isWebSocket bool, message string) {
	if isWebSocket {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": message})
	c.Abort()
}

func setUserContext(c *gin.Context, claims *Claims) {
	c.Set("userID", claims.UserID)
	c.Set("userEmail", claims.Email)
	c.Set("userDisplayName", claims.DisplayName)
	c.Set("userRole", claims.Role)
	c.Set("claims", claims)
	c.Set("sessionID", claims.ID)
}

// GetUserID extracts the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok
}

// GetUserRole extracts the authenticated user's role from the Gin context.
func GetUserRole(c *gin.Context) (models.Role, bool) {
	role, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	r, ok := role.(models.Role)
	return r, ok
}

// IsAdmin reports whether the current user is an Admin.
func IsAdmin(c *gin.Context) bool {
	role, ok := GetUserRole(c)
	return ok && role == models.RoleAdmin
}

// IsManagement reports whether the current user is Management or Admin.
func IsManagement(c *gin.Context) bool {
	role, ok := GetUserRole(c)
	return ok && (role == models.RoleAdmin || role == models.RoleManagement)
}
