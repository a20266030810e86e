package handlers

import (
	"bytes"
	"database/sql"
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

func testUserHandler(t *testing.T) (*UserHandler, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	users := db.NewUserStore(mockDB)
	h := NewUserHandler(users, middleware.NewAuditLogger(db.NewDatabaseForTesting(mockDB)))

	cleanup := func() { mockDB.Close() }
	return h, mock, cleanup
}

func TestUserHandler_Create_RejectsUnrecognizedRole(t *testing.T) {
	h, _, cleanup := testUserHandler(t)
	defer cleanup()

	body, _ := json.Marshal(models.CreateUserRequest{
		Email: "new@example.com", DisplayName: "New User", Password: "longenoughpassword", Role: models.Role("NotARole"),
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/users", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_SetActive_InvalidBody(t *testing.T) {
	h, _, cleanup := testUserHandler(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("PATCH", "/users/u1/active", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}

	h.SetActive(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_Get_NotFound(t *testing.T) {
	h, mock, cleanup := testUserHandler(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/users/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
