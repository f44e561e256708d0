package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

// AuthService turns a verified Google profile into a local user and a
// session token.
//
//	AuthHandler (HTTP) → AuthService (domain rule, upsert) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
type AuthService struct {
	users         repository.UserRepository
	tokens        *auth.TokenService
	allowedDomain string
	logger        *slog.Logger
}

// NewAuthService creates an AuthService. allowedDomain is the email domain
// that may sign in, without the "@"; empty allows any verified address.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	allowedDomain string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		allowedDomain: strings.ToLower(strings.TrimPrefix(allowedDomain, "@")),
		logger:        logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGoogle handles the OAuth callback after the code exchange.
//
//  1. Reject unverified addresses and addresses outside the allowed domain
//  2. Upsert the user by email (first sign-in creates, later ones refresh)
//  3. Issue a user-role JWT
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, gu *auth.GoogleUser) (*AuthResult, error) {
	if gu == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}

	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if !gu.EmailVerified || !s.emailAllowed(email) {
		s.logger.Warn("sign-in rejected", slog.String("email", email))
		return nil, apperror.Forbidden(s.rejectMessage())
	}

	user := &model.User{
		GoogleID:  gu.Sub,
		Email:     email,
		Name:      gu.Name,
		AvatarURL: gu.Picture,
	}
	if err := s.users.UpsertByEmail(ctx, user); err != nil {
		return nil, apperror.DependencyFailed("saving user", fmt.Errorf("service/auth: upserting %s: %w", email, err))
	}

	s.logger.Info("user authenticated via Google",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// CurrentUser returns the signed-in user for /api/me.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return requireUser(ctx, s.users, userID)
}

func (s *AuthService) emailAllowed(email string) bool {
	if email == "" {
		return false
	}
	if s.allowedDomain == "" {
		return true
	}
	return strings.HasSuffix(email, "@"+s.allowedDomain)
}

func (s *AuthService) rejectMessage() string {
	if s.allowedDomain == "" {
		return "a verified email address is required"
	}
	return "only @" + s.allowedDomain + " accounts may sign in"
}
