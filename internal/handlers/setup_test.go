package handlers

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/models"
)

// gapRow builds a sqlmock row matching gapColumns' order for a minimal,
// freshly-created gap owned by reporterID.
func gapRow(id int64, reporterID string, status models.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "gap_id", "title", "description", "status", "priority", "severity", "department",
		"reporter_id", "assigned_to_id", "updated_by_id", "closed_by_id", "reopened_by_id",
		"form_template_id", "form_template_version", "form_responses",
		"tat_deadline", "assigned_at", "in_progress_at", "resolved_at", "closed_at", "reopened_at",
		"ai_processed", "sop_suggestions", "resolution_summary", "resolution_attachments",
		"duplicate_of_id", "last_tat_window_notified", "created_at", "updated_at",
	}).AddRow(
		id, "GAP-0001", "title", "description", status, models.PriorityMedium, nil, nil,
		reporterID, nil, nil, nil, nil,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		false, nil, nil, nil,
		nil, nil, now, now,
	)
}

// testGapHandler wires a GapHandler against a sqlmock-backed *sql.DB,
// leaving every collaborator beyond GapStore/GapPocStore nil — fine for
// the handlers under test here, which never reach them.
func testGapHandler(t *testing.T) (*GapHandler, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	gaps := db.NewGapStore(mockDB)
	pocs := db.NewGapPocStore(mockDB)
	h := NewGapHandler(nil, gaps, pocs, nil, nil, nil, nil, nil, nil)

	cleanup := func() { mockDB.Close() }
	return h, mock, cleanup
}

// sqlmockEmptyStringRows is a one-column empty result set, used for
// GapPocStore.UserIDs calls where the gap has no rostered POCs.
func sqlmockEmptyStringRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id"})
}
