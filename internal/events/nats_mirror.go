package events

import (
	"context"
	"encoding/json"

	"github.com/gapopshub/api/internal/logger"
	"github.com/nats-io/nats.go"
)

// NATSMirror forwards published events to a NATS subject for durable,
// cross-instance consumers (e.g. a separate audit-archival service).
// It is entirely optional: the in-process Bus already delivers every
// event synchronously to internal/notifier, so a NATS outage degrades
// mirroring only, never the primary delivery path.
type NATSMirror struct {
	conn    *nats.Conn
	subject string
}

// NewNATSMirror connects to url and returns a Mirror publishing to
// subject. Returns an error if the connection cannot be established;
// callers should treat that as "NATS mirroring unavailable" and run
// without a mirror rather than failing startup.
func NewNATSMirror(url, subject string) (*NATSMirror, error) {
	conn, err := nats.Connect(url, nats.Name("gap-intel-api"))
	if err != nil {
		return nil, err
	}
	return &NATSMirror{conn: conn, subject: subject}, nil
}

// Publish forwards evt as JSON. Marshal or publish failures are logged
// and swallowed per §7's ExternalUnavailable policy for background paths.
func (m *NATSMirror) Publish(ctx context.Context, evt Event) {
	data, err := json.Marshal(struct {
		Type    Type        `json:"type"`
		GapID   int64       `json:"gapId"`
		ActorID string      `json:"actorId"`
		Payload interface{} `json:"payload"`
	}{evt.Type, evt.GapID, evt.ActorID, evt.Payload})
	if err != nil {
		logger.GetLogger().Error().Err(err).Str("event", string(evt.Type)).Msg("failed to marshal event for NATS mirror")
		return
	}

	if err := m.conn.Publish(m.subject, data); err != nil {
		logger.GetLogger().Warn().Err(err).Str("event", string(evt.Type)).Msg("failed to mirror event to NATS")
	}
}

// Close drains and closes the NATS connection.
func (m *NATSMirror) Close() error {
	return m.conn.Drain()
}
