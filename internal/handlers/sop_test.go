package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
)

func testSopHandler(t *testing.T) (*SopHandler, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sops := db.NewSopStore(db.NewDatabaseForTesting(mockDB))
	h := NewSopHandler(sops, middleware.NewAuditLogger(db.NewDatabaseForTesting(mockDB)))

	cleanup := func() { mockDB.Close() }
	return h, mock, cleanup
}

func TestSopHandler_Create_ForbiddenForQAOps(t *testing.T) {
	h, _, cleanup := testSopHandler(t)
	defer cleanup()

	body, _ := json.Marshal(models.CreateSopRequest{Title: "Title", Description: "Desc", Body: "Body"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/sops", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("userID", "user-1")
	c.Set("userRole", models.RoleQAOps)

	h.Create(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSopHandler_List_DefaultsToActiveOnly(t *testing.T) {
	h, mock, cleanup := testSopHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM sops WHERE active = true`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "parent_sop_id", "title", "description", "body", "category", "department", "version", "active", "created_by_id", "created_at", "updated_at",
		}))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/sops", nil)
	c.Set("userRole", models.RoleQAOps)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
