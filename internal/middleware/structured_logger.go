// This file logs every HTTP request as a structured event through the
// zerolog-backed HTTP component logger: request id, route, status,
// duration, and the authenticated caller when one is set. Status >=500
// logs at error level, >=400 at warn, everything else at info, so an
// operator can filter a log stream by severity without parsing text.
package middleware

import (
	"time"

	"github.com/gapopshub/api/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// logRequest builds one log event for the request that just completed.
func logRequest(c *gin.Context, start time.Time, logQuery, logUserAgent bool) {
	duration := time.Since(start)
	status := c.Writer.Status()

	event := logger.HTTP().WithLevel(levelFor(status)).
		Str("requestId", GetRequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Dur("duration", duration)

	if logQuery && c.Request.URL.RawQuery != "" {
		event = event.Str("query", c.Request.URL.RawQuery)
	}
	if logUserAgent {
		event = event.Str("userAgent", c.Request.UserAgent())
	}
	event = event.Str("clientIp", c.ClientIP())

	if userID, exists := c.Get("userID"); exists {
		event = event.Interface("userId", userID)
	}
	if role, exists := c.Get("userRole"); exists {
		event = event.Interface("userRole", role)
	}
	if len(c.Errors) > 0 {
		event = event.Str("errors", c.Errors.String())
	}

	event.Msg("http request")
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// StructuredLogger provides structured logging for all requests with
// the default field set (query string and user agent included).
func StructuredLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logRequest(c, start, true, true)
	}
}

// StructuredLoggerWithConfig allows customization of structured logging
type StructuredLoggerConfig struct {
	// SkipPaths is a list of paths to skip logging (e.g., health checks)
	SkipPaths []string

	// SkipHealthCheck if true, skips logging for /health endpoint
	SkipHealthCheck bool

	// LogQuery if false, skips logging query parameters (for privacy)
	LogQuery bool

	// LogUserAgent if false, skips logging user agent
	LogUserAgent bool
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:       []string{},
		SkipHealthCheck: true,
		LogQuery:        true,
		LogUserAgent:    true,
	}
}

// StructuredLoggerWithConfigFunc creates a structured logger with custom config
func StructuredLoggerWithConfigFunc(config StructuredLoggerConfig) gin.HandlerFunc {
	// Build skip map for fast lookup
	skipMap := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}
	if config.SkipHealthCheck {
		skipMap["/healthz"] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		logRequest(c, start, config.LogQuery, config.LogUserAgent)
	}
}
