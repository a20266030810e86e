package handlers

import (
	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/gapcore"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/realtime"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades authenticated connections into the realtime
// hub, which fans out gap updates and comment notifications over
// per-gap and per-user rooms.
type WebSocketHandler struct {
	hub  *realtime.Hub
	gaps *db.GapStore
	core *gapcore.Core
}

// NewWebSocketHandler builds a WebSocketHandler.
func NewWebSocketHandler(hub *realtime.Hub, gaps *db.GapStore, core *gapcore.Core) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, gaps: gaps, core: core}
}

// Serve handles GET /ws.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apperrors.AbortWithError(c, apperrors.Unauthenticated("not authenticated"))
		return
	}
	role, _ := auth.GetUserRole(c)

	if err := h.hub.ServeClient(c.Writer, c.Request, userID, role, h.gaps, h.core); err != nil {
		logger.Realtime().Warn().Err(err).Str("userId", userID).Msg("websocket upgrade failed")
	}
}
