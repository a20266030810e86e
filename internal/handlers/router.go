package handlers

import (
	"log"
	"os"
	"strings"

	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/gin-gonic/gin"
)

// Handlers bundles every route handler the router needs to wire up.
type Handlers struct {
	Gap          *GapHandler
	Sop          *SopHandler
	FormTemplate *FormTemplateHandler
	User         *UserHandler
	Auth         *AuthHandler
	Export       *ExportHandler
	WebSocket    *WebSocketHandler
	Upload       *UploadHandler
}

// NewRouter assembles the full gin.Engine: the teacher's middleware
// chain (recovery, request id, structured logging, timeouts, method and
// size limits, security headers, gzip, CSRF) ahead of the auth-gated
// route tree.
func NewRouter(h *Handlers, jwtManager *auth.JWTManager, userStore *db.UserStore, rateLimiter *middleware.RateLimiter, sessions *middleware.SessionManager) *gin.Engine {
	router := gin.New()

	router.Use(apperrors.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLoggerWithConfigFunc(middleware.DefaultStructuredLoggerConfig()))
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(middleware.AllowedHTTPMethods())
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimiterWithExclusions(
		middleware.MaxRequestBodySize, middleware.MaxFileUploadSize,
		[]string{"/uploads", "/gaps/"},
	))
	router.Use(middleware.GzipWithExclusions(5, []string{"/ws", "/reports/export"}))
	router.Use(apperrors.ErrorHandler())
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	authGroup := router.Group("/auth")
	{
		if rateLimiter != nil {
			authGroup.POST("/login", rateLimiter.StrictMiddleware(middleware.DefaultMaxAttempts), h.Auth.Login)
		} else {
			authGroup.POST("/login", h.Auth.Login)
		}
		authGroup.POST("/logout", h.Auth.Logout)
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(jwtManager, userStore))
	protected.Use(middleware.CSRFProtection())
	if sessions != nil {
		protected.Use(sessions.IdleTimeoutMiddleware())
		protected.Use(sessions.SessionActivityMiddleware())
	}
	{
		protected.GET("/auth/me", h.Auth.Me)

		protected.GET("/ws", h.WebSocket.Serve)
		protected.POST("/uploads", h.Upload.Upload)

		gaps := protected.Group("/gaps")
		{
			gaps.POST("", h.Gap.Create)
			gaps.GET("", h.Gap.List)
			gaps.GET("/:id", h.Gap.Get)
			gaps.PATCH("/:id", h.Gap.Update)
			gaps.POST("/:id/assign", auth.RequireAnyRole(models.RoleAdmin, models.RoleManagement), h.Gap.Assign)
			gaps.POST("/:id/resolve", h.Gap.Resolve)
			gaps.POST("/:id/reopen", h.Gap.Reopen)
			gaps.POST("/:id/mark-duplicate", h.Gap.MarkDuplicate)
			gaps.GET("/:id/similar", h.Gap.Similar)
			gaps.GET("/:id/timeline", h.Gap.Timeline)
			gaps.GET("/:id/attachments/download", h.Gap.DownloadAttachments)
			gaps.POST("/:id/attachments", h.Gap.AddAttachments)

			gaps.POST("/:id/comments", h.Gap.AddComment)
			gaps.GET("/:id/comments", h.Gap.ListComments)

			gaps.POST("/:id/pocs", h.Gap.AddPoc)
			gaps.DELETE("/:id/pocs/:userId", h.Gap.RemovePoc)
			gaps.GET("/:id/pocs", h.Gap.ListPocs)

			gaps.POST("/:id/extensions", h.Gap.RequestExtension)
		}

		protected.PATCH("/extensions/:id", auth.RequireAnyRole(models.RoleAdmin, models.RoleManagement), h.Gap.ReviewExtension)

		sops := protected.Group("/sops")
		{
			sops.POST("", h.Sop.Create)
			sops.GET("", h.Sop.List)
			sops.GET("/:id", h.Sop.Get)
			sops.PATCH("/:id", h.Sop.Update)
		}

		templates := protected.Group("/form-templates")
		{
			templates.POST("", h.FormTemplate.Create)
			templates.GET("", h.FormTemplate.List)
			templates.GET("/:id", h.FormTemplate.Get)
		}

		admin := protected.Group("/users")
		admin.Use(auth.RequireRole(models.RoleAdmin))
		{
			admin.POST("", h.User.Create)
			admin.GET("", h.User.List)
			admin.GET("/:id", h.User.Get)
			admin.PATCH("/:id/active", h.User.SetActive)
		}

		protected.GET("/reports/export", auth.RequireAnyRole(models.RoleAdmin, models.RoleManagement), h.Export.Export)
	}

	return router
}

// corsMiddleware mirrors the teacher's own CORS setup: an explicit
// allowlist from CORS_ALLOWED_ORIGINS, credentials enabled, and the
// WebSocket upgrade headers the realtime hub's handshake needs.
func corsMiddleware() gin.HandlerFunc {
	allowedOriginsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	var allowedOrigins []string
	if allowedOriginsEnv != "" {
		for _, origin := range strings.Split(allowedOriginsEnv, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(origin))
		}
	}
	if len(allowedOrigins) == 0 {
		log.Println("WARNING: no CORS_ALLOWED_ORIGINS set, defaulting to localhost only")
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8000"}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				break
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Extensions, Sec-WebSocket-Protocol")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
