// Package db provides PostgreSQL database access and management for the
// Gap Intelligence API.
//
// This file implements user account data access: authentication lookups,
// roster listing for POC assignment, and password verification.
//
// Dependencies:
// - golang.org/x/crypto/bcrypt for password hashing
// - github.com/google/uuid for ID generation
// - internal/models for data structures
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserStore handles database operations for users.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore instance.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, employee_code, display_name, role, department, active, created_at, updated_at, last_login_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.EmployeeCode, &user.DisplayName,
		&user.Role, &user.Department, &user.Active, &user.CreatedAt,
		&user.UpdatedAt, &user.LastLoginAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("user")
		}
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user account.
func (s *UserStore) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if !req.Role.Valid() {
		return nil, apperrors.Invalid("invalid role")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to hash password", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		EmployeeCode: req.EmployeeCode,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		Department:   req.Department,
		PasswordHash: string(hashedPassword),
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	query := `
		INSERT INTO users (id, email, employee_code, display_name, role, department, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.EmployeeCode, user.DisplayName,
		user.Role, user.Department, user.PasswordHash, user.Active,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to create user", err)
	}

	return user, nil
}

// GetUser retrieves a user by ID, without the password hash.
func (s *UserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	row := s.db.QueryRowContext(ctx, query, userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, without the password hash.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	row := s.db.QueryRowContext(ctx, query, email)
	return scanUser(row)
}

// VerifyPassword authenticates a user by email and password, returning the
// user (without the password hash populated) on success.
func (s *UserStore) VerifyPassword(ctx context.Context, email, password string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, employee_code, display_name, role, department, password_hash, active, created_at, updated_at, last_login_at
		FROM users WHERE email = $1
	`
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.EmployeeCode, &user.DisplayName,
		&user.Role, &user.Department, &user.PasswordHash, &user.Active,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Unauthenticated("invalid email or password")
		}
		return nil, apperrors.InternalWrap("failed to look up user", err)
	}

	if !user.Active {
		return nil, apperrors.Unauthenticated("account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}

	user.PasswordHash = ""
	return user, nil
}

// TouchLastLogin stamps last_login_at to now for userID.
func (s *UserStore) TouchLastLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, time.Now(), userID)
	if err != nil {
		return apperrors.InternalWrap("failed to record last login", err)
	}
	return nil
}

// ListByRoles returns every active user holding one of the given roles,
// the roster Notifier emails for tat.extension.requested (all Admin and
// Management users).
func (s *UserStore) ListByRoles(ctx context.Context, roles ...models.Role) ([]*models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roles))
	args := make([]interface{}, len(roles))
	for i, r := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = r
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role IN (%s) AND active = true ORDER BY display_name ASC`,
		userColumns, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list users by role", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID, &user.Email, &user.EmployeeCode, &user.DisplayName,
			&user.Role, &user.Department, &user.Active, &user.CreatedAt,
			&user.UpdatedAt, &user.LastLoginAt,
		); err != nil {
			return nil, apperrors.InternalWrap("failed to scan user row", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListUsers returns the full user roster, optionally filtered by role, for
// POC assignment pickers and admin management screens.
func (s *UserStore) ListUsers(ctx context.Context, role *models.Role) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users`, userColumns)
	args := []interface{}{}
	if role != nil {
		query += ` WHERE role = $1`
		args = append(args, *role)
	}
	query += ` ORDER BY display_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.InternalWrap("failed to list users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(
			&user.ID, &user.Email, &user.EmployeeCode, &user.DisplayName,
			&user.Role, &user.Department, &user.Active, &user.CreatedAt,
			&user.UpdatedAt, &user.LastLoginAt,
		); err != nil {
			return nil, apperrors.InternalWrap("failed to scan user row", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalWrap("failed to iterate user rows", err)
	}
	return users, nil
}

// SetActive enables or disables a user account.
func (s *UserStore) SetActive(ctx context.Context, userID string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`, active, time.Now(), userID)
	if err != nil {
		return apperrors.InternalWrap("failed to update user status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.InternalWrap("failed to confirm update", err)
	}
	if rows == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}
