package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/service"
)

// GoogleAuthenticator is the part of auth.GoogleProvider the handler needs.
type GoogleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

var _ GoogleAuthenticator = (*auth.GoogleProvider)(nil)

// AuthHandler manages the Google OAuth login flow and the student session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → check state, exchange the code, set the session cookie
//   - HandleLogout         → clear the session cookie
//   - HandleMe             → return the signed-in user
type AuthHandler struct {
	google        GoogleAuthenticator
	auth          *service.AuthService
	sessionTTL    time.Duration
	cookies       CookieConfig
	loginRedirect string
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. loginRedirect is where the browser
// lands after the callback, e.g. the front-end's home page.
func NewAuthHandler(
	google GoogleAuthenticator,
	authService *service.AuthService,
	sessionTTL time.Duration,
	cookies CookieConfig,
	loginRedirect string,
	logger *slog.Logger,
) *AuthHandler {
	if loginRedirect == "" {
		loginRedirect = "/"
	}
	return &AuthHandler{
		google:        google,
		auth:          authService,
		sessionTTL:    sessionTTL,
		cookies:       cookies,
		loginRedirect: loginRedirect,
		logger:        logger,
	}
}

// HandleGoogleLogin redirects the user to Google's authorization page.
//
// HTTP: GET /auth/google/login
//
// A random state goes into a short-lived cookie and into the auth URL; the
// callback only proceeds when both match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	h.cookies.set(w, stateCookie, state, 10*time.Minute)
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google profile
//  3. Sign in or register through AuthService (domain restriction lives there)
//  4. Store the JWT in an HttpOnly cookie and redirect to the app
//
// Outcomes the user should see (denied consent, wrong domain, Google down)
// redirect back to the app with ?auth=<outcome>.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || query.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	h.cookies.clear(w, stateCookie)

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		h.redirect(w, r, "denied")
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	gu, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		h.redirect(w, r, "error")
		return
	}

	result, err := h.auth.LoginOrRegisterGoogle(r.Context(), gu)
	if err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			h.redirect(w, r, "forbidden")
			return
		}
		logFailure(h.logger, r, err)
		h.redirect(w, r, "error")
		return
	}

	h.cookies.set(w, auth.UserCookie, result.Token, h.sessionTTL)
	http.Redirect(w, r, h.loginRedirect, http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so "logout" only removes the cookie; the token
// itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, auth.UserCookie)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) redirect(w http.ResponseWriter, r *http.Request, outcome string) {
	target, err := url.Parse(h.loginRedirect)
	if err != nil {
		http.Redirect(w, r, "/?auth="+outcome, http.StatusSeeOther)
		return
	}
	q := target.Query()
	q.Set("auth", outcome)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
