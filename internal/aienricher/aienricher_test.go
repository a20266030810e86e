package aienricher

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/require"
)

type fixedScorer struct{ score int }

func (f fixedScorer) Score(ctx context.Context, a, b *models.Gap) (int, error) {
	return f.score, nil
}

type fixedRanker struct{ suggestions []models.SopSuggestion }

func (f fixedRanker) RankSops(ctx context.Context, gap *models.Gap, sops []models.Sop) ([]models.SopSuggestion, error) {
	return f.suggestions, nil
}

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

func gapRow(id int64, updatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(gapCols()).AddRow(
		id, "GAP-0001", "title", "description", models.StatusPendingAI, models.PriorityMedium, nil, nil,
		"reporter-1", nil, nil, nil, nil,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		false, nil, nil, nil,
		nil, nil, updatedAt, updatedAt,
	)
}

func TestPool_EnrichesAndAdvancesStatus(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(gapRow(1, now))
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE status").
		WillReturnRows(gapRow(2, now))
	mock.ExpectExec("DELETE FROM similar_gaps").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO similar_gaps").
		WithArgs(int64(1), int64(2), 75).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO similar_gaps").
		WithArgs(int64(2), int64(1), 75).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE gaps SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pool := New(db.NewGapStore(sqlDB), db.NewSimilarGapStore(sqlDB), nil,
		fixedScorer{score: 75}, nil, Config{Concurrency: 1})
	pool.Enqueue(1, now)
	pool.Stop()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_DiscardsStaleResult(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	enqueuedAt := time.Now().Add(-time.Minute)
	freshUpdatedAt := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(gapRow(9, freshUpdatedAt))
	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE status").
		WillReturnRows(sqlmock.NewRows(gapCols()))

	pool := New(db.NewGapStore(sqlDB), db.NewSimilarGapStore(sqlDB), nil, nil, nil, Config{Concurrency: 1})
	pool.Enqueue(9, enqueuedAt)
	pool.Stop()

	// No UPDATE gaps SET should have been issued since the gap changed
	// after this job was enqueued.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_DropsJobWhenQueueFull(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	pool := &Pool{
		gaps:         db.NewGapStore(sqlDB),
		similarities: db.NewSimilarGapStore(sqlDB),
		threshold:    60,
		topK:         5,
		jobs:         make(chan job),
	}
	pool.Enqueue(1, time.Now())
	require.NoError(t, mock.ExpectationsWereMet())
}
