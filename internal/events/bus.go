// Package events implements the in-process domain event bus that
// decouples GapCore's state transitions from their side effects (email,
// realtime broadcast, audit logging).
//
// GapCore publishes an Event after a transition commits; internal/notifier
// subscribes and fans each event out to its side effects per §4.4. Delivery
// is synchronous and best-effort: a panicking or erroring subscriber is
// isolated so it cannot prevent other subscribers, or the publishing
// goroutine, from proceeding.
package events

import (
	"context"

	"github.com/gapopshub/api/internal/logger"
)

// Type identifies a domain event kind (§4.4).
type Type string

const (
	GapCreated            Type = "gap.created"
	GapAssigned           Type = "gap.assigned"
	GapResolved           Type = "gap.resolved"
	GapReopened           Type = "gap.reopened"
	GapClosedDuplicate    Type = "gap.closed.duplicate"
	TatExtensionRequested Type = "tat.extension.requested"
	TatBreachApproaching  Type = "tat.breach.approaching"
	CommentCreated        Type = "comment.created"
)

// Event is a single domain occurrence published after a GapCore
// transition commits. Payload is one of the Gap* structs below,
// concrete to the event Type.
type Event struct {
	Type    Type
	GapID   int64
	ActorID string
	Payload interface{}
}

// Handler processes a published event. It must not block indefinitely;
// long-running side effects should hand off to their own goroutine.
type Handler func(ctx context.Context, evt Event)

// Bus is a synchronous, in-process publish/subscribe bus with
// per-subscriber failure isolation.
type Bus struct {
	handlers []Handler
	mirror   Mirror
}

// Mirror optionally forwards events to a durable external transport
// (see NewNATSMirror). A nil Mirror is a valid no-op.
type Mirror interface {
	Publish(ctx context.Context, evt Event)
	Close() error
}

// NewBus creates an event bus with no mirror attached.
func NewBus() *Bus {
	return &Bus{}
}

// WithMirror attaches a durable mirror; nil disables mirroring.
func (b *Bus) WithMirror(m Mirror) *Bus {
	b.mirror = m
	return b
}

// Subscribe registers a handler. Handlers are invoked in registration
// order for every published event; subscription is not safe to call
// concurrently with Publish.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Publish delivers evt to every subscriber, isolating panics and
// continuing to the next handler on failure, then forwards to the
// mirror if one is attached.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	for _, h := range b.handlers {
		b.dispatch(ctx, h, evt)
	}
	if b.mirror != nil {
		b.mirror.Publish(ctx, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error().
				Interface("panic", r).
				Str("event", string(evt.Type)).
				Int64("gapId", evt.GapID).
				Msg("event subscriber panicked")
		}
	}()
	h(ctx, evt)
}
