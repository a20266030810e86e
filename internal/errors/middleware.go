// Package errors provides standardized error handling for the Gap
// Intelligence API.
//
// This file implements error handling middleware for Gin.
//
// Middleware Functions:
//   - ErrorHandler: converts AppError (or any error) left on c.Errors into
//     a consistent JSON response
//   - Recovery: recovers from panics
//   - HandleError: helper for error responses in handlers
//   - AbortWithError: helper to abort request with error
package errors

import (
	"net/http"

	"github.com/gapopshub/api/internal/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler is a middleware that handles errors consistently.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		log := logger.HTTP()
		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			event := log.Warn()
			if appErr.StatusCode >= 500 {
				event = log.Error()
			}
			event.
				Str("kind", string(appErr.Kind)).
				Str("details", appErr.Details).
				Str("path", c.Request.URL.Path).
				Msg(appErr.Message)

			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   string(KindInternal),
			Message: "an unexpected error occurred",
		})
	}
}

// Recovery is a middleware that recovers from panics.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   string(KindInternal),
					Message: "an unexpected error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}

// HandleError is a helper function to handle errors in handlers.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internalErr := InternalWrap("unexpected error", err)
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// AbortWithError is a helper to abort request with error.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
