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

func newTestContext(method, path string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	return c, w
}

func TestGapHandler_Get_ForbiddenForUnrelatedReporter(t *testing.T) {
	h, mock, cleanup := testGapHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM gaps WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(gapRow(1, "reporter-a", models.StatusNeedsReview))
	mock.ExpectQuery(`SELECT user_id FROM gap_pocs WHERE gap_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmockEmptyStringRows())

	c, w := newTestContext("GET", "/gaps/1")
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set("userID", "reporter-b")
	c.Set("userRole", models.RoleQAOps)

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGapHandler_Get_AllowsOwnReport(t *testing.T) {
	h, mock, cleanup := testGapHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM gaps WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(gapRow(1, "reporter-a", models.StatusNeedsReview))
	mock.ExpectQuery(`SELECT user_id FROM gap_pocs WHERE gap_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmockEmptyStringRows())

	c, w := newTestContext("GET", "/gaps/1")
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set("userID", "reporter-a")
	c.Set("userRole", models.RoleQAOps)

	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGapHandler_Get_BadID(t *testing.T) {
	h, _, cleanup := testGapHandler(t)
	defer cleanup()

	c, w := newTestContext("GET", "/gaps/not-a-number")
	c.Params = gin.Params{{Key: "id", Value: "not-a-number"}}

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGapHandler_List_ScopesToReportedGaps(t *testing.T) {
	h, mock, cleanup := testGapHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id FROM gaps WHERE reporter_id = \$1`).
		WithArgs("reporter-a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectQuery(`SELECT .* FROM gaps`).
		WillReturnRows(gapRow(1, "reporter-a", models.StatusNeedsReview))

	c, w := newTestContext("GET", "/gaps")
	c.Set("userID", "reporter-a")
	c.Set("userRole", models.RoleQAOps)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGapHandler_List_UnrecognizedRoleForbidden(t *testing.T) {
	h, _, cleanup := testGapHandler(t)
	defer cleanup()

	c, w := newTestContext("GET", "/gaps")
	c.Set("userID", "someone")
	c.Set("userRole", models.Role("Bogus"))

	h.List(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGapHandler_Similar_ForbiddenWhenUnrelated(t *testing.T) {
	h, mock, cleanup := testGapHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM gaps WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(gapRow(1, "reporter-a", models.StatusNeedsReview))
	mock.ExpectQuery(`SELECT user_id FROM gap_pocs WHERE gap_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmockEmptyStringRows())

	c, w := newTestContext("GET", "/gaps/1/similar")
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set("userID", "someone-else")
	c.Set("userRole", models.RolePOC)

	h.Similar(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
