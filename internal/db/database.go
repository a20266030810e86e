// Package db provides PostgreSQL database access and management for the
// Gap Intelligence API.
//
// This file implements the core database connection and lifecycle
// management.
//
// Purpose:
// - Establish and maintain PostgreSQL connection pool
// - Initialize database schema on startup
// - Provide centralized database instance for all stores
// - Validate database configuration for security
//
// Features:
// - Connection pooling with configurable limits (25 max open, 5 max idle)
// - Schema migrations for the gap lifecycle domain
// - Health check and ping capabilities
// - Graceful connection cleanup on shutdown
// - Configuration validation (prevents SQL injection in connection strings)
// - SSL/TLS warnings for production security
//
// Dependencies:
// - PostgreSQL 12+ (required)
// - lib/pq driver for database/sql
package db

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gapopshub/api/internal/logger"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Database represents the database connection
type Database struct {
	db *sql.DB
}

// validateConfig validates database configuration to prevent SQL injection
func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(config.Host) {
			return fmt.Errorf("invalid database host: %s", config.Host)
		}
	}

	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(config.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}

	if config.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	userRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !userRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s (only alphanumeric, underscore, and hyphen allowed)", config.User)
	}

	if config.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	dbNameRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !dbNameRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s (only alphanumeric, underscore, and hyphen allowed)", config.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	if config.SSLMode == "" || config.SSLMode == "disable" {
		logger.Database().Warn().Msg("database SSL/TLS is disabled - insecure for production; set DB_SSL_MODE to require, verify-ca, or verify-full")
	}

	return nil
}

// NewDatabase creates a new database connection with connection pooling
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabaseForTesting creates a Database from an existing sql.DB connection.
// This constructor is intended ONLY FOR TESTING to enable dependency injection
// with mock databases (e.g., sqlmock).
//
// DO NOT use this in production code. Use NewDatabase() instead.
func NewDatabaseForTesting(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrate runs database migrations, creating every table the gap
// lifecycle domain needs if it does not already exist.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			employee_code VARCHAR(100),
			display_name VARCHAR(255) NOT NULL,
			role VARCHAR(50) NOT NULL DEFAULT 'QA/Ops',
			department VARCHAR(255),
			password_hash VARCHAR(255) NOT NULL,
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_login_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS form_templates (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			version VARCHAR(50) NOT NULL DEFAULT '1',
			schema JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS id_sequences (
			prefix VARCHAR(50) PRIMARY KEY,
			next_value BIGINT NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS gaps (
			id BIGSERIAL PRIMARY KEY,
			gap_id VARCHAR(50) UNIQUE NOT NULL,
			title VARCHAR(500) NOT NULL,
			description TEXT NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'PendingAI',
			priority VARCHAR(20) NOT NULL DEFAULT 'Medium',
			severity VARCHAR(100),
			department VARCHAR(255),

			reporter_id VARCHAR(255) NOT NULL REFERENCES users(id),
			assigned_to_id VARCHAR(255) REFERENCES users(id),
			updated_by_id VARCHAR(255) REFERENCES users(id),
			closed_by_id VARCHAR(255) REFERENCES users(id),
			reopened_by_id VARCHAR(255) REFERENCES users(id),

			form_template_id VARCHAR(255) REFERENCES form_templates(id),
			form_template_version VARCHAR(50),
			form_responses JSONB,

			tat_deadline TIMESTAMP,

			assigned_at TIMESTAMP,
			in_progress_at TIMESTAMP,
			resolved_at TIMESTAMP,
			closed_at TIMESTAMP,
			reopened_at TIMESTAMP,

			ai_processed BOOLEAN DEFAULT false,
			sop_suggestions JSONB,

			resolution_summary TEXT,
			resolution_attachments JSONB,
			duplicate_of_id BIGINT REFERENCES gaps(id),

			last_tat_window_notified VARCHAR(50),

			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_status ON gaps(status)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_reporter ON gaps(reporter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_assigned_to ON gaps(assigned_to_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_tat_deadline ON gaps(tat_deadline) WHERE tat_deadline IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS gap_attachments (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			kind VARCHAR(20) NOT NULL DEFAULT 'gap',
			original_name VARCHAR(500) NOT NULL,
			filename VARCHAR(500) NOT NULL,
			size BIGINT NOT NULL,
			mime_type VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gap_attachments_gap ON gap_attachments(gap_id)`,

		`CREATE TABLE IF NOT EXISTS gap_pocs (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL REFERENCES users(id),
			is_primary BOOLEAN DEFAULT false,
			added_by_id VARCHAR(255) NOT NULL REFERENCES users(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(gap_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gap_pocs_user ON gap_pocs(user_id)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			author_id VARCHAR(255) NOT NULL REFERENCES users(id),
			body TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_gap ON comments(gap_id)`,

		`CREATE TABLE IF NOT EXISTS comment_attachments (
			id BIGSERIAL PRIMARY KEY,
			comment_id BIGINT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
			original_name VARCHAR(500) NOT NULL,
			filename VARCHAR(500) NOT NULL,
			size BIGINT NOT NULL,
			mime_type VARCHAR(255) NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resolution_history (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			resolution_summary TEXT NOT NULL,
			resolution_attachments JSONB,
			resolved_by_id VARCHAR(255) NOT NULL REFERENCES users(id),
			resolved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			reopened_by_id VARCHAR(255) REFERENCES users(id),
			reopened_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolution_history_gap ON resolution_history(gap_id)`,

		`CREATE TABLE IF NOT EXISTS assignments (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			assignee_id VARCHAR(255) NOT NULL REFERENCES users(id),
			actor_id VARCHAR(255) NOT NULL REFERENCES users(id),
			note TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_gap ON assignments(gap_id)`,

		`CREATE TABLE IF NOT EXISTS tat_extensions (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			requester_id VARCHAR(255) NOT NULL REFERENCES users(id),
			reason TEXT NOT NULL,
			proposed_deadline TIMESTAMP NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'Pending',
			reviewer_id VARCHAR(255) REFERENCES users(id),
			reviewed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tat_extensions_gap ON tat_extensions(gap_id)`,

		`CREATE TABLE IF NOT EXISTS similar_gaps (
			id BIGSERIAL PRIMARY KEY,
			gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			similar_gap_id BIGINT NOT NULL REFERENCES gaps(id) ON DELETE CASCADE,
			score INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(gap_id, similar_gap_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_similar_gaps_gap ON similar_gaps(gap_id)`,

		`CREATE TABLE IF NOT EXISTS sops (
			id VARCHAR(50) PRIMARY KEY,
			parent_sop_id VARCHAR(50) REFERENCES sops(id),
			title VARCHAR(300) NOT NULL,
			description TEXT NOT NULL,
			body TEXT NOT NULL,
			category VARCHAR(255),
			department VARCHAR(255),
			version VARCHAR(50) NOT NULL DEFAULT '1',
			active BOOLEAN DEFAULT true,
			created_by_id VARCHAR(255) NOT NULL REFERENCES users(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sops_parent ON sops(parent_sop_id)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			actor_id VARCHAR(255) REFERENCES users(id),
			action VARCHAR(100) NOT NULL,
			entity_type VARCHAR(100) NOT NULL,
			entity_id VARCHAR(100) NOT NULL,
			changes JSONB,
			ip_address VARCHAR(100),
			user_agent VARCHAR(500),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nQuery: %s", err, migration)
		}
	}

	if err := d.bootstrapAdmin(); err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	return nil
}

// bootstrapAdmin ensures a single Admin user exists so a fresh deployment
// is never locked out. Adapted from the teacher's admin-password
// bootstrap: the admin row itself is created here (the teacher seeded it
// via migration and only reset its password in this step).
func (d *Database) bootstrapAdmin() error {
	var count int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'Admin'").Scan(&count); err != nil {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := "ChangeMe123!"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO users (id, email, display_name, role, password_hash, active)
		 VALUES ('admin', 'admin@gapintel.local', 'Administrator', 'Admin', $1, true)
		 ON CONFLICT (id) DO NOTHING`,
		string(hashed),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bootstrap admin: %w", err)
	}

	logger.Database().Warn().Msg("bootstrapped default admin user (admin@gapintel.local / ChangeMe123!) - change this password immediately")
	return nil
}

// NextID atomically mints the next monotonic sequence value for prefix,
// backing human-readable ids like GAP-0001 and SOP-001.
func (d *Database) NextID(prefix string) (int64, error) {
	var next int64
	err := d.db.QueryRow(
		`INSERT INTO id_sequences (prefix, next_value) VALUES ($1, 2)
		 ON CONFLICT (prefix) DO UPDATE SET next_value = id_sequences.next_value + 1
		 RETURNING next_value - 1`,
		prefix,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to mint next id for prefix %s: %w", prefix, err)
	}
	return next, nil
}
