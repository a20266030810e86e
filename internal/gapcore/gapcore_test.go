package gapcore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gapopshub/api/internal/db"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) (*Core, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	database := db.NewDatabaseForTesting(sqlDB)
	core := New(
		database,
		db.NewGapStore(sqlDB),
		db.NewGapPocStore(sqlDB),
		db.NewCommentStore(sqlDB),
		db.NewAssignmentStore(sqlDB),
		db.NewResolutionHistoryStore(sqlDB),
		db.NewTatExtensionStore(sqlDB),
		db.NewSimilarGapStore(sqlDB),
		db.NewUserStore(sqlDB),
		nil,
		nil,
	)
	return core, mock
}

func TestCreateGap_Success(t *testing.T) {
	core, mock := newTestCore(t)

	mock.ExpectQuery("INSERT INTO id_sequences").
		WithArgs("GAP").
		WillReturnRows(sqlmock.NewRows([]string{"next_value"}).AddRow(int64(1)))

	mock.ExpectQuery("INSERT INTO gaps").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	gap, err := core.CreateGap(context.Background(), "reporter-1", &models.CreateGapRequest{
		Title:       "Checkout fails for EU customers",
		Description: "Step 4 of checkout silently 500s for EU billing addresses",
	})

	require.NoError(t, err)
	assert.Equal(t, "GAP-0001", gap.GapID)
	assert.Equal(t, models.StatusPendingAI, gap.Status)
	assert.Equal(t, models.PriorityMedium, gap.Priority)
	assert.False(t, gap.AIProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGap_RejectsEmptyTitle(t *testing.T) {
	core, _ := newTestCore(t)

	_, err := core.CreateGap(context.Background(), "reporter-1", &models.CreateGapRequest{Description: "body"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))
}

func TestAssignGap_RequiresManagementRole(t *testing.T) {
	core, _ := newTestCore(t)

	_, err := core.AssignGap(context.Background(), "qa-1", models.RoleQAOps, 1, &models.AssignGapRequest{AssigneeID: "poc-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func gapRow(id int64, status models.Status, reporterID string, assignedToID *string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "gap_id", "title", "description", "status", "priority", "severity", "department",
		"reporter_id", "assigned_to_id", "updated_by_id", "closed_by_id", "reopened_by_id",
		"form_template_id", "form_template_version", "form_responses",
		"tat_deadline", "assigned_at", "in_progress_at", "resolved_at", "closed_at", "reopened_at",
		"ai_processed", "sop_suggestions", "resolution_summary", "resolution_attachments",
		"duplicate_of_id", "last_tat_window_notified", "created_at", "updated_at",
	}).AddRow(
		id, "GAP-0001", "title", "description", status, models.PriorityMedium, nil, nil,
		reporterID, assignedToID, nil, nil, nil,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		true, nil, nil, nil,
		nil, nil, time.Now(), time.Now(),
	)
}

func TestResolveGap_ForbidsUnrelatedPoc(t *testing.T) {
	core, mock := newTestCore(t)
	assignee := "poc-1"

	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(gapRow(7, models.StatusAssigned, "reporter-1", &assignee))

	mock.ExpectQuery("SELECT user_id FROM gap_pocs").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := core.ResolveGap(context.Background(), "poc-2", models.RolePOC, 7, &models.ResolveGapRequest{Summary: "fixed it"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveGap_RejectsAlreadyResolved(t *testing.T) {
	core, mock := newTestCore(t)

	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(gapRow(7, models.StatusResolved, "reporter-1", nil))

	_, err := core.ResolveGap(context.Background(), "mgmt-1", models.RoleManagement, 7, &models.ResolveGapRequest{Summary: "fixed it"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDuplicate_RejectsSelfReference(t *testing.T) {
	core, _ := newTestCore(t)

	_, err := core.MarkDuplicate(context.Background(), "admin-1", models.RoleAdmin, 5, 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))
}

func TestReopenGap_RequiresResolvedOrClosed(t *testing.T) {
	core, mock := newTestCore(t)

	mock.ExpectQuery("SELECT (.+) FROM gaps WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(gapRow(3, models.StatusInProgress, "reporter-1", nil))

	_, err := core.ReopenGap(context.Background(), "reporter-1", models.RoleQAOps, 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}
