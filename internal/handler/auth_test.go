package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/handler"
	"github.com/sakif/exam-archive/internal/model"
)

// fakeGoogle stands in for auth.GoogleProvider.
type fakeGoogle struct {
	user *auth.GoogleUser
	err  error
	code string
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.test/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGoogle) Exchange(_ context.Context, code string) (*auth.GoogleUser, error) {
	f.code = code
	return f.user, f.err
}

func (e *testEnv) authHandler(g handler.GoogleAuthenticator) *handler.AuthHandler {
	return handler.NewAuthHandler(g, e.authService, 24*time.Hour, handler.CookieConfig{}, "https://app.test/home", e.logger)
}

// callback sends the OAuth callback with a matching state cookie.
func callback(h *handler.AuthHandler, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=s1&"+query, nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
	rr := httptest.NewRecorder()
	h.HandleGoogleCallback(rr, req)
	return rr
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_HandleGoogleLogin(t *testing.T) {
	env := newTestEnv(t)
	h := env.authHandler(&fakeGoogle{})

	rr := httptest.NewRecorder()
	h.HandleGoogleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := cookieNamed(rr, "oauth_state")
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)
}

func TestAuthHandler_HandleGoogleCallback(t *testing.T) {
	t.Run("signs in and sets the session cookie", func(t *testing.T) {
		env := newTestEnv(t)
		g := &fakeGoogle{user: &auth.GoogleUser{Sub: "g-1", Email: "B10901001@g.ntu.edu.tw", EmailVerified: true, Name: "Student"}}
		h := env.authHandler(g)

		rr := callback(h, "code=abc")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "https://app.test/home", rr.Header().Get("Location"))
		assert.Equal(t, "abc", g.code)

		session := cookieNamed(rr, auth.UserCookie)
		require.NotNil(t, session)
		assert.True(t, session.HttpOnly)
		assert.Equal(t, int((24 * time.Hour).Seconds()), session.MaxAge)

		id, err := env.tokens.Validate(session.Value)
		require.NoError(t, err)
		user, err := env.db.GetUserByID(context.Background(), id.Subject)
		require.NoError(t, err)
		assert.Equal(t, "b10901001@g.ntu.edu.tw", user.Email)

		cleared := cookieNamed(rr, "oauth_state")
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("state mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		h := env.authHandler(&fakeGoogle{})

		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=evil&code=abc", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()
		h.HandleGoogleCallback(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, cookieNamed(rr, auth.UserCookie))
	})

	t.Run("missing state cookie", func(t *testing.T) {
		env := newTestEnv(t)
		h := env.authHandler(&fakeGoogle{})

		rr := httptest.NewRecorder()
		h.HandleGoogleCallback(rr, httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=&code=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	tests := []struct {
		name    string
		google  *fakeGoogle
		query   string
		outcome string
	}{
		{"user denied consent", &fakeGoogle{}, "error=access_denied", "denied"},
		{"exchange fails", &fakeGoogle{err: errors.New("google down")}, "code=abc", "error"},
		{
			"outside the allowed domain",
			&fakeGoogle{user: &auth.GoogleUser{Sub: "g-2", Email: "someone@gmail.com", EmailVerified: true}},
			"code=abc",
			"forbidden",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := callback(env.authHandler(tt.google), tt.query)

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, "https://app.test/home?auth="+tt.outcome, rr.Header().Get("Location"))
			assert.Nil(t, cookieNamed(rr, auth.UserCookie))
		})
	}
}

func TestAuthHandler_HandleLogoutAndMe(t *testing.T) {
	env := newTestEnv(t)
	h := env.authHandler(&fakeGoogle{})
	student := env.user(t, "student")

	rr := httptest.NewRecorder()
	h.HandleMe(rr, request(http.MethodGet, "/api/me", nil, student.ID))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, student.Email, decode[model.User](t, rr).Email)

	rr = httptest.NewRecorder()
	h.HandleMe(rr, request(http.MethodGet, "/api/me", nil, "deleted-user"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	session := cookieNamed(rr, auth.UserCookie)
	require.NotNil(t, session)
	assert.Less(t, session.MaxAge, 0)
}
