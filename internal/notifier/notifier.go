package notifier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
)

// RoomPublisher is the subset of internal/realtime's Hub that Notifier
// depends on, kept as an interface so the two packages don't import
// each other.
type RoomPublisher interface {
	Publish(room string, eventType string, payload interface{})
}

// Notifier subscribes to the domain event bus and executes §4.4's
// per-event side effects. Subscribe registers it; it is never called
// directly by GapCore.
type Notifier struct {
	mailer Mailer
	rooms  RoomPublisher
	audit  *middleware.AuditLogger

	gaps  *db.GapStore
	pocs  *db.GapPocStore
	users *db.UserStore
}

// New builds a Notifier. rooms may be nil before internal/realtime is
// wired up; socket publishes are then silently skipped.
func New(mailer Mailer, rooms RoomPublisher, audit *middleware.AuditLogger, gaps *db.GapStore, pocs *db.GapPocStore, users *db.UserStore) *Notifier {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &Notifier{mailer: mailer, rooms: rooms, audit: audit, gaps: gaps, pocs: pocs, users: users}
}

// Subscribe registers the notifier's Handle method on the bus.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(n.Handle)
}

// Handle dispatches one event to its email/socket/audit side effects.
// Each branch is independently recovered so a panic in one never stops
// the others (teacher's per-channel isolation idiom in the websocket
// notifier, generalized from one path to three).
func (n *Notifier) Handle(ctx context.Context, evt events.Event) {
	n.safely("email", func() { n.sendEmail(ctx, evt) })
	n.safely("socket", func() { n.publishRoom(evt) })
	n.safely("audit", func() { n.writeAudit(evt) })
}

func (n *Notifier) safely(channel string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Notifier().Error().Interface("panic", r).Str("channel", channel).Msg("notifier channel panicked")
		}
	}()
	fn()
}

func (n *Notifier) sendEmail(ctx context.Context, evt events.Event) {
	var to, cc []string
	var subject, body string

	switch evt.Type {
	case events.GapAssigned:
		gap, ok := evt.Payload.(*models.Gap)
		if !ok || gap.AssignedToID == nil {
			return
		}
		assignee, err := n.users.GetUser(ctx, *gap.AssignedToID)
		if err != nil {
			return
		}
		to = []string{assignee.Email}
		cc = n.pocEmails(ctx, evt.GapID, *gap.AssignedToID)
		subject = fmt.Sprintf("%s assigned to you", gap.GapID)
		body = fmt.Sprintf("%s has been assigned to you: %s", gap.GapID, gap.Title)

	case events.GapResolved:
		gap, ok := evt.Payload.(*models.Gap)
		if !ok {
			return
		}
		reporter, err := n.users.GetUser(ctx, gap.ReporterID)
		if err != nil {
			return
		}
		to = []string{reporter.Email}
		cc = n.pocEmails(ctx, evt.GapID, "")
		subject = fmt.Sprintf("%s resolved", gap.GapID)
		body = fmt.Sprintf("%s has been resolved: %s", gap.GapID, derefSummary(gap.ResolutionSummary))

	case events.GapClosedDuplicate:
		gap, err := n.gaps.Get(ctx, evt.GapID)
		if err != nil {
			return
		}
		reporter, err := n.users.GetUser(ctx, gap.ReporterID)
		if err != nil {
			return
		}
		to = []string{reporter.Email}
		subject = fmt.Sprintf("%s marked as duplicate", gap.GapID)
		body = fmt.Sprintf("%s has been closed as a duplicate.", gap.GapID)

	case events.TatExtensionRequested:
		reviewers, err := n.users.ListByRoles(ctx, models.RoleAdmin, models.RoleManagement)
		if err != nil {
			return
		}
		for _, u := range reviewers {
			to = append(to, u.Email)
		}
		subject = fmt.Sprintf("TAT extension requested for gap %d", evt.GapID)
		body = "A turnaround-time extension has been requested and needs review."

	case events.TatBreachApproaching:
		gap, ok := evt.Payload.(*models.Gap)
		if !ok || gap.AssignedToID == nil {
			return
		}
		assignee, err := n.users.GetUser(ctx, *gap.AssignedToID)
		if err != nil {
			return
		}
		to = []string{assignee.Email}
		subject = fmt.Sprintf("%s is approaching its TAT deadline", gap.GapID)
		body = fmt.Sprintf("%s is approaching or has breached its turnaround-time deadline.", gap.GapID)

	default:
		return
	}

	if len(to) == 0 {
		return
	}
	if err := n.mailer.Send(to, cc, subject, body); err != nil {
		logger.Notifier().Error().Err(err).Str("event", string(evt.Type)).Msg("failed to send notification email")
	}
}

func (n *Notifier) pocEmails(ctx context.Context, gapID int64, exclude string) []string {
	ids, err := n.pocs.UserIDs(ctx, gapID)
	if err != nil {
		return nil
	}
	var emails []string
	for _, id := range ids {
		if id == exclude {
			continue
		}
		u, err := n.users.GetUser(ctx, id)
		if err != nil {
			continue
		}
		emails = append(emails, u.Email)
	}
	return emails
}

func (n *Notifier) publishRoom(evt events.Event) {
	if n.rooms == nil {
		return
	}
	room := fmt.Sprintf("gap-%d", evt.GapID)

	switch evt.Type {
	case events.GapAssigned, events.GapResolved, events.GapReopened, events.GapClosedDuplicate:
		n.rooms.Publish(room, "gap:updated", evt.Payload)
	case events.CommentCreated:
		comment, ok := evt.Payload.(*models.Comment)
		if !ok {
			return
		}
		n.rooms.Publish(room, "new-comment", comment)
		ids, err := n.pocs.UserIDs(context.Background(), evt.GapID)
		if err != nil {
			return
		}
		for _, id := range ids {
			n.rooms.Publish("user-"+id, "poc-comment-notification", comment)
		}
	}
}

func (n *Notifier) writeAudit(evt events.Event) {
	if n.audit == nil {
		return
	}
	action, ok := auditActions[evt.Type]
	if !ok || action == "" {
		return
	}
	actorID := evt.ActorID
	entityID := strconv.FormatInt(evt.GapID, 10)
	n.audit.Record(&actorID, action, "gap", entityID, nil, "", "")
}

var auditActions = map[events.Type]string{
	events.GapCreated:            "CREATE_GAP",
	events.GapAssigned:           "ASSIGN_GAP",
	events.GapResolved:           "UPDATE_GAP_STATUS",
	events.GapReopened:           "gap_reopened",
	events.GapClosedDuplicate:    "gap_marked_duplicate",
	events.TatExtensionRequested: "CREATE_TAT_EXTENSION",
}

func derefSummary(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
