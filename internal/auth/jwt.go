// Package auth issues and checks the session tokens of the exam archive.
//
// SESSION FLOW:
//  1. A student signs in with Google (/auth/google/login → /auth/google/callback);
//     the server upserts the user and sets a user-role JWT in the "token" cookie.
//  2. A moderator signs in with the admin username/password (/api/monitor/login);
//     the server sets an admin-role JWT in the separate "admin_token" cookie.
//  3. Middleware reads the cookie of the route's audience, validates the JWT
//     and puts the subject into the request context.
//
// Both kinds of token are HS256 with the same secret. The "role" claim keeps
// them apart: a user token is never accepted as an admin token, or the reverse.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "exam-archive"

// Default session lifetimes, used when the caller passes zero.
const (
	DefaultUserTTL  = 7 * 24 * time.Hour
	DefaultAdminTTL = 12 * time.Hour
)

// Role tells a student session from a moderator session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is what a valid token says about its bearer.
type Identity struct {
	Subject string // user ID, or the admin username
	Role    Role
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// A zero TTL selects the default for that role.
func NewTokenService(secret string, userTTL, adminTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if userTTL <= 0 {
		userTTL = DefaultUserTTL
	}
	if adminTTL <= 0 {
		adminTTL = DefaultAdminTTL
	}
	return &TokenService{secret: []byte(secret), userTTL: userTTL, adminTTL: adminTTL}, nil
}

// claims is the JWT payload: the registered claims plus our role.
type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// UserTTL is the lifetime of user tokens; handlers use it as the cookie Max-Age.
func (s *TokenService) UserTTL() time.Duration { return s.userTTL }

// AdminTTL is the lifetime of admin tokens.
func (s *TokenService) AdminTTL() time.Duration { return s.adminTTL }

// Generate signs a user-role token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, RoleUser, s.userTTL)
}

// GenerateAdmin signs an admin-role token for the moderator account.
func (s *TokenService) GenerateAdmin(username string) (string, error) {
	return s.GenerateWithDuration(username, RoleAdmin, s.adminTTL)
}

// GenerateWithDuration creates a token with a custom expiry. Tests use it
// with negative durations to get expired tokens.
func (s *TokenService) GenerateWithDuration(subject string, role Role, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired, and carries an expiry at all
//   - Issuer is "exam-archive"
//   - Algorithm is HS256 (no "none", no RS/HS confusion)
//
// On top of that the subject must be present and the role must be known.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if c.Role != RoleUser && c.Role != RoleAdmin {
		return nil, fmt.Errorf("auth: unknown role %q", c.Role)
	}

	return &Identity{Subject: c.Subject, Role: c.Role}, nil
}
