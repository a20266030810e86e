package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/require"
)

func gapCols() []string {
	return []string{
		"id", "gap_id", "title", "description", "status", "priority", "severity", "department",
		"reporter_id", "assigned_to_id", "updated_by_id", "closed_by_id", "reopened_by_id",
		"form_template_id", "form_template_version", "form_responses",
		"tat_deadline", "assigned_at", "in_progress_at", "resolved_at", "closed_at", "reopened_at",
		"ai_processed", "sop_suggestions", "resolution_summary", "resolution_attachments",
		"duplicate_of_id", "last_tat_window_notified", "created_at", "updated_at",
	}
}

func gapRowWithDeadline(id int64, deadline time.Time, notified interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(gapCols()).AddRow(
		id, "GAP-0001", "title", "description", models.StatusAssigned, models.PriorityMedium, nil, nil,
		"reporter-1", nil, nil, nil, nil,
		nil, nil, nil,
		deadline, nil, nil, nil, nil, nil,
		true, nil, nil, nil,
		nil, notified, time.Now(), time.Now(),
	)
}

func TestSweep_EmitsBreachForPastDeadline(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE tat_deadline").
		WillReturnRows(gapRowWithDeadline(1, past, nil))
	mock.ExpectExec("UPDATE gaps SET last_tat_window_notified").
		WithArgs("breach", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	bus := events.NewBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(func(ctx context.Context, evt events.Event) { received <- evt })

	s := New(db.NewGapStore(sqlDB), bus, 24*time.Hour)
	s.sweep(context.Background())

	select {
	case evt := <-received:
		require.Equal(t, events.TatBreachApproaching, evt.Type)
		require.Equal(t, int64(1), evt.GapID)
	default:
		t.Fatal("expected a tat.breach.approaching event")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_SkipsAlreadyNotifiedWindow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE tat_deadline").
		WillReturnRows(gapRowWithDeadline(1, past, "breach"))

	bus := events.NewBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(func(ctx context.Context, evt events.Event) { received <- evt })

	s := New(db.NewGapStore(sqlDB), bus, 24*time.Hour)
	s.sweep(context.Background())

	select {
	case <-received:
		t.Fatal("should not re-emit for a window already notified")
	default:
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_OnTrackGapIsIgnored(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	farFuture := time.Now().Add(72 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE tat_deadline").
		WillReturnRows(gapRowWithDeadline(1, farFuture, nil))

	s := New(db.NewGapStore(sqlDB), nil, 24*time.Hour)
	s.sweep(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}
