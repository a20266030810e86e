package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestGapHandler_RemovePoc_MissingUserIDParam(t *testing.T) {
	h, _, cleanup := testGapHandler(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("DELETE", "/gaps/1/pocs/", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}, {Key: "userId", Value: ""}}

	h.RemovePoc(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGapHandler_AddPoc_InvalidBody(t *testing.T) {
	h, _, cleanup := testGapHandler(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/gaps/1/pocs", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	h.AddPoc(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGapHandler_ListPocs_ReturnsRoster(t *testing.T) {
	h, mock, cleanup := testGapHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM gaps WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(gapRow(1, "reporter-a", models.StatusAssigned))
	mock.ExpectQuery(`SELECT user_id FROM gap_pocs WHERE gap_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("poc-1"))
	mock.ExpectQuery(`SELECT id, gap_id, user_id, is_primary, added_by_id, created_at FROM gap_pocs WHERE gap_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "gap_id", "user_id", "is_primary", "added_by_id", "created_at"}))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/gaps/1/pocs", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set("userID", "poc-1")
	c.Set("userRole", models.RolePOC)

	h.ListPocs(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
