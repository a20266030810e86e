package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	to, cc         []string
	subject, body  string
	calls          int
}

func (m *captureMailer) Send(to, cc []string, subject, body string) error {
	m.calls++
	m.to, m.cc, m.subject, m.body = to, cc, subject, body
	return nil
}

type captureRooms struct {
	room, eventType string
	calls           int
}

func (r *captureRooms) Publish(room, eventType string, payload interface{}) {
	r.calls++
	r.room, r.eventType = room, eventType
}

func userRow(id, email string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "employee_code", "display_name", "role", "department", "active", "created_at", "updated_at", "last_login_at",
	}).AddRow(id, email, "EMP1", "Name", models.RolePOC, nil, true, time.Now(), time.Now(), nil)
}

func TestNotifier_GapAssignedSendsEmailAndPublishesRoom(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	assignee := "poc-1"
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(assignee).
		WillReturnRows(userRow(assignee, "poc1@example.com"))
	mock.ExpectQuery("SELECT user_id FROM gap_pocs").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	mailer := &captureMailer{}
	rooms := &captureRooms{}
	n := New(mailer, rooms, nil, db.NewGapStore(sqlDB), db.NewGapPocStore(sqlDB), db.NewUserStore(sqlDB))

	n.Handle(context.Background(), events.Event{
		Type: events.GapAssigned, GapID: 7, ActorID: "mgmt-1",
		Payload: &models.Gap{GapID: "GAP-0007", Title: "Something broke", AssignedToID: &assignee},
	})

	assert.Equal(t, 1, mailer.calls)
	assert.Equal(t, []string{"poc1@example.com"}, mailer.to)
	assert.Equal(t, 1, rooms.calls)
	assert.Equal(t, "gap-7", rooms.room)
	assert.Equal(t, "gap:updated", rooms.eventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifier_SkipsEmailWhenPayloadIsWrongType(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mailer := &captureMailer{}
	n := New(mailer, nil, nil, db.NewGapStore(sqlDB), db.NewGapPocStore(sqlDB), db.NewUserStore(sqlDB))

	n.Handle(context.Background(), events.Event{Type: events.GapAssigned, GapID: 1, Payload: "not-a-gap"})

	assert.Equal(t, 0, mailer.calls)
}

func TestNotifier_CommentCreatedNotifiesPocRooms(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT user_id FROM gap_pocs").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("poc-1").AddRow("poc-2"))

	rooms := &captureRooms{}
	n := New(&captureMailer{}, rooms, nil, db.NewGapStore(sqlDB), db.NewGapPocStore(sqlDB), db.NewUserStore(sqlDB))

	n.Handle(context.Background(), events.Event{
		Type: events.CommentCreated, GapID: 3, ActorID: "reporter-1",
		Payload: &models.Comment{GapID: 3, Body: "update"},
	})

	assert.Equal(t, 3, rooms.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
