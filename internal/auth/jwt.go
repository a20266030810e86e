// Package auth provides authentication for the Gap Intelligence API.
//
// This file implements signed session tokens using HMAC-SHA256 (JWT),
// carried in an httpOnly session cookie rather than an Authorization
// header. The cookie holds the same signed claims a bearer token would;
// only the transport changes, which is why the claims machinery below
// still speaks JWT internally.
//
// TOKEN LIFECYCLE
//
// 1. User authenticates with email/password.
// 2. GenerateToken mints a signed token and a Redis-backed session record.
// 3. The token is set as an httpOnly, SameSite cookie (see middleware.go).
// 4. Middleware validates the cookie on each request and loads the user.
// 5. Tokens expire after TokenDuration (default 8h); within the last 7
//    days before expiry, RefreshToken mints a replacement without
//    re-authentication.
//
// SECURITY
//
//   - HS256 signing catches tampering; the parser explicitly rejects any
//     algorithm other than HMAC, closing the "alg: none" and asymmetric
//     substitution attacks.
//   - SecretKey must be a cryptographically random value of at least 32
//     bytes, loaded from SESSION_SECRET, never hardcoded.
//   - Claims are visible to holders of the cookie (base64, not
//     encrypted) — never put secrets in them, only identity and role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gapopshub/api/internal/cache"
	"github.com/gapopshub/api/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds session token configuration.
type JWTConfig struct {
	// SecretKey is the HMAC signing key. Minimum 32 bytes for HS256.
	SecretKey string

	// Issuer identifies this service in the "iss" claim.
	Issuer string

	// TokenDuration is how long a session token remains valid before
	// requiring refresh or re-authentication.
	TokenDuration time.Duration
}

// Claims are the custom JWT claims carried by a Gap Intelligence session
// cookie.
type Claims struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`

	jwt.RegisteredClaims
}

// JWTManager issues and validates session tokens, optionally backed by a
// Redis session store for server-side revocation.
type JWTManager struct {
	config       *JWTConfig
	sessionStore *SessionStore
}

// NewJWTManager creates a new JWTManager.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.TokenDuration == 0 {
		config.TokenDuration = 8 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "gap-intel-api"
	}
	return &JWTManager{config: config}
}

// SetSessionStore attaches server-side session tracking.
func (m *JWTManager) SetSessionStore(store *SessionStore) {
	m.sessionStore = store
}

// NewJWTManagerWithSessions creates a JWTManager with session tracking
// already wired to cacheClient.
func NewJWTManagerWithSessions(config *JWTConfig, cacheClient *cache.Cache) *JWTManager {
	manager := NewJWTManager(config)
	manager.sessionStore = NewSessionStore(cacheClient)
	return manager
}

// GetSessionStore returns the session store.
func (m *JWTManager) GetSessionStore() *SessionStore {
	return m.sessionStore
}

// GenerateToken mints a signed session token for a user.
func (m *JWTManager) GenerateToken(userID, email, displayName string, role models.Role) (string, error) {
	token, _, err := m.GenerateTokenWithContext(context.Background(), userID, email, displayName, role, "", "")
	return token, err
}

// GenerateTokenWithContext mints a signed session token and, when a
// session store is attached, records the session in Redis keyed by a
// fresh session ID so it can be individually revoked on logout. It
// returns that session ID alongside the token so callers can register
// it with other session-tracking layers (e.g. concurrent-session caps).
func (m *JWTManager) GenerateTokenWithContext(ctx context.Context, userID, email, displayName string, role models.Role, ipAddress, userAgent string) (string, string, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.TokenDuration)

	sessionID, err := GenerateSessionID()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate session ID: %w", err)
	}

	claims := &Claims{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,

		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    m.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	if m.sessionStore != nil && m.sessionStore.IsEnabled() {
		session := &SessionData{
			SessionID: sessionID,
			UserID:    userID,
			Username:  displayName,
			Role:      string(role),
			CreatedAt: now,
			ExpiresAt: expiresAt,
			IPAddress: ipAddress,
			UserAgent: userAgent,
		}

		if err := m.sessionStore.CreateSession(ctx, session, m.config.TokenDuration); err != nil {
			fmt.Printf("warning: failed to store session in Redis: %v\n", err)
		}
	}

	return tokenString, sessionID, nil
}

// InvalidateSession invalidates a session by its ID (logout).
func (m *JWTManager) InvalidateSession(ctx context.Context, sessionID string) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.DeleteSession(ctx, sessionID)
}

// InvalidateUserSessions invalidates all sessions for a user.
func (m *JWTManager) InvalidateUserSessions(ctx context.Context, userID string) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.DeleteUserSessions(ctx, userID)
}

// ValidateSession checks whether a session is still live in Redis.
func (m *JWTManager) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	if m.sessionStore == nil {
		return true, nil
	}
	return m.sessionStore.ValidateSession(ctx, sessionID)
}

// ClearAllSessions drops every tracked session (forces re-login on restart).
func (m *JWTManager) ClearAllSessions(ctx context.Context) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.ClearAllSessions(ctx)
}

// ValidateToken verifies a token's signature, algorithm, and expiration,
// returning its claims.
//
// The signing-method check below is the critical defense against
// algorithm-substitution attacks: without it, a token with "alg": "none"
// or an asymmetric algorithm could be accepted without real verification.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// RefreshToken mints a replacement token carrying the same claims, but
// only within the 7-day window before the current token's expiration.
// This bounds how long a stolen token can stay alive through repeated
// refresh: at most TokenDuration + 7 days from issuance.
func (m *JWTManager) RefreshToken(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	timeRemaining := time.Until(claims.ExpiresAt.Time)
	if timeRemaining < 0 {
		return "", errors.New("token has already expired")
	}
	if timeRemaining > 7*24*time.Hour {
		return "", errors.New("token not eligible for refresh yet (more than 7 days remaining)")
	}

	return m.GenerateToken(claims.UserID, claims.Email, claims.DisplayName, claims.Role)
}

// ExtractUserID extracts the user ID from a token without a separate
// validation call.
func (m *JWTManager) ExtractUserID(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// GetTokenDuration returns the configured token duration.
func (m *JWTManager) GetTokenDuration() time.Duration {
	return m.config.TokenDuration
}
