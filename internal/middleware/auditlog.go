// Package middleware - auditlog.go
//
// This file implements the audit_logs writer used by handlers that mutate
// a gap, comment, assignment, or roster. Unlike a generic request logger,
// each entry is entity-scoped (action + entityType + entityId) so the
// timeline endpoint (§5) can pull a gap's audit trail with a single
// indexed query instead of grepping request logs.
//
// Handlers call Record (or RecordFromContext) after a successful
// mutation; the write happens in a goroutine so a slow or unavailable
// database never adds latency to a response already sent to the caller.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/models"
	"github.com/gin-gonic/gin"
)

// sensitiveFields are redacted recursively before Changes is persisted.
var sensitiveFields = []string{"password", "token", "secret", "apiKey", "api_key"}

// AuditLogger writes entries to the audit_logs table. A nil *db.Database
// disables logging entirely, which keeps handler tests from needing one.
type AuditLogger struct {
	database *db.Database
}

// NewAuditLogger returns an AuditLogger backed by database.
func NewAuditLogger(database *db.Database) *AuditLogger {
	return &AuditLogger{database: database}
}

// Record persists one audit entry. actorID is nil for system-initiated
// actions (e.g. the scheduler's TAT breach notice). changes is redacted
// and marshaled to JSONB; it may be nil.
func (a *AuditLogger) Record(actorID *string, action, entityType, entityID string, changes map[string]interface{}, ipAddress, userAgent string) {
	if a == nil || a.database == nil {
		return
	}

	if changes != nil {
		changes = redact(changes)
	}

	go func() {
		blob, err := json.Marshal(changes)
		if err != nil {
			logger.Database().Error().Err(err).Str("action", action).Msg("failed to marshal audit changes")
			return
		}

		_, err = a.database.DB().ExecContext(context.Background(),
			`INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, changes, ip_address, user_agent)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			actorID, action, entityType, entityID, blob, ipAddress, userAgent,
		)
		if err != nil {
			logger.Database().Error().Err(err).
				Str("action", action).Str("entityType", entityType).Str("entityId", entityID).
				Msg("failed to write audit log")
		}
	}()
}

// RecordFromContext is a convenience wrapper that pulls the actor, client
// IP, and user agent from a Gin request context.
func (a *AuditLogger) RecordFromContext(c *gin.Context, action, entityType, entityID string, changes map[string]interface{}) {
	var actorID *string
	if id, ok := c.Get("userID"); ok {
		if s, ok := id.(string); ok && s != "" {
			actorID = &s
		}
	}
	a.Record(actorID, action, entityType, entityID, changes, c.ClientIP(), c.Request.UserAgent())
}

// ListForEntities reads back every audit entry recorded against the
// given entityType for any of entityIDs, oldest first. Used by the
// gap timeline endpoint (§4.7) to fold audited actions — roster
// changes, extension request/review — alongside gap columns and
// ResolutionHistory. Returns nil without error when logging is
// disabled or entityIDs is empty.
func (a *AuditLogger) ListForEntities(ctx context.Context, entityType string, entityIDs []string) ([]models.AuditLog, error) {
	if a == nil || a.database == nil || len(entityIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(entityIDs))
	args := make([]interface{}, 0, len(entityIDs)+1)
	args = append(args, entityType)
	for i, id := range entityIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, actor_id, action, entity_type, entity_id, changes, ip_address, user_agent, created_at
		FROM audit_logs WHERE entity_type = $1 AND entity_id IN (%s) ORDER BY created_at ASC`,
		strings.Join(placeholders, ", "))
	rows, err := a.database.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to read audit log", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Changes, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, apperrors.InternalWrap("failed to scan audit log row", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// redact replaces sensitive field values recursively, matching field
// names case-sensitively against sensitiveFields. Arrays are not
// recursed into, matching the teacher's own known limitation.
func redact(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if isSensitiveField(key) {
			out[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = redact(nested)
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveField(key string) bool {
	for _, field := range sensitiveFields {
		if key == field {
			return true
		}
	}
	return false
}
