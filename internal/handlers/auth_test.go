package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gapopshub/api/internal/auth"
	"github.com/gapopshub/api/internal/config"
	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/middleware"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	users := db.NewUserStore(mockDB)
	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		SecretKey: "test-secret", Issuer: "gap-intel-api-test", TokenDuration: time.Hour,
	})
	sessions := middleware.NewSessionManager(30*time.Minute, 5)
	h := NewAuthHandler(users, jwtManager, config.SessionConfig{TTL: time.Hour}, sessions)

	cleanup := func() { mockDB.Close() }
	return h, mock, cleanup
}

func TestAuthHandler_Login_Success(t *testing.T) {
	h, mock, cleanup := testAuthHandler(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, employee_code, display_name, role, department, password_hash, active, created_at, updated_at, last_login_at FROM users WHERE email = \$1`).
		WithArgs("qa@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "employee_code", "display_name", "role", "department", "password_hash", "active", "created_at", "updated_at", "last_login_at",
		}).AddRow("user-1", "qa@example.com", "E001", "QA User", models.RoleQAOps, nil, string(hash), true, now, now, nil))
	mock.ExpectExec(`UPDATE users SET last_login_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(loginRequest{Email: "qa@example.com", Password: "correcthorse"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Cookies())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Login_RejectsOverMaxConcurrentSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	users := db.NewUserStore(mockDB)
	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		SecretKey: "test-secret", Issuer: "gap-intel-api-test", TokenDuration: time.Hour,
	})
	sessions := middleware.NewSessionManager(30*time.Minute, 1)
	require.NoError(t, sessions.RegisterSession("user-1", "existing-session"))
	h := NewAuthHandler(users, jwtManager, config.SessionConfig{TTL: time.Hour}, sessions)

	hash, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, employee_code, display_name, role, department, password_hash, active, created_at, updated_at, last_login_at FROM users WHERE email = \$1`).
		WithArgs("qa@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "employee_code", "display_name", "role", "department", "password_hash", "active", "created_at", "updated_at", "last_login_at",
		}).AddRow("user-1", "qa@example.com", "E001", "QA User", models.RoleQAOps, nil, string(hash), true, now, now, nil))

	body, _ := json.Marshal(loginRequest{Email: "qa@example.com", Password: "correcthorse"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	h, mock, cleanup := testAuthHandler(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, employee_code, display_name, role, department, password_hash, active, created_at, updated_at, last_login_at FROM users WHERE email = \$1`).
		WithArgs("qa@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "employee_code", "display_name", "role", "department", "password_hash", "active", "created_at", "updated_at", "last_login_at",
		}).AddRow("user-1", "qa@example.com", "E001", "QA User", models.RoleQAOps, nil, string(hash), true, now, now, nil))

	body, _ := json.Marshal(loginRequest{Email: "qa@example.com", Password: "wrong-password"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Me_RequiresAuthentication(t *testing.T) {
	h, _, cleanup := testAuthHandler(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/auth/me", nil)

	h.Me(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	h, _, cleanup := testAuthHandler(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/auth/logout", nil)

	h.Logout(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	found := false
	for _, ck := range w.Result().Cookies() {
		if ck.Name == auth.SessionCookieName {
			found = true
			assert.True(t, ck.MaxAge < 0)
		}
	}
	assert.True(t, found, "expected the session cookie to be cleared")
}
