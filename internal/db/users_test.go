package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db)
	ctx := context.Background()

	req := &models.CreateUserRequest{
		Email:       "alice@example.com",
		DisplayName: "Alice Smith",
		Password:    "securepassword",
		Role:        models.RoleQAOps,
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), req.Email, req.EmployeeCode, req.DisplayName,
			req.Role, req.Department, sqlmock.AnyArg(), true,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := store.CreateUser(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice Smith", user.DisplayName)
	assert.Equal(t, models.RoleQAOps, user.Role)
	assert.True(t, user.Active)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_InvalidRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db)
	req := &models.CreateUserRequest{
		Email:       "bob@example.com",
		DisplayName: "Bob",
		Password:    "securepassword",
		Role:        "NotARole",
	}

	_, err = store.CreateUser(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetUser(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestVerifyPassword_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db)
	hashed, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "email", "employee_code", "display_name", "role", "department",
		"password_hash", "active", "created_at", "updated_at", "last_login_at",
	}).AddRow("u1", "alice@example.com", nil, "Alice", models.RoleQAOps, nil, string(hashed), true, time.Now(), time.Now(), nil)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	user, err := store.VerifyPassword(context.Background(), "alice@example.com", "correcthorse")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Empty(t, user.PasswordHash)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db)
	hashed, err := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.DefaultCost)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "email", "employee_code", "display_name", "role", "department",
		"password_hash", "active", "created_at", "updated_at", "last_login_at",
	}).AddRow("u1", "alice@example.com", nil, "Alice", models.RoleQAOps, nil, string(hashed), true, time.Now(), time.Now(), nil)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	_, err = store.VerifyPassword(context.Background(), "alice@example.com", "wrongpassword")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthenticated))
}
