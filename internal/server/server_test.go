package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/config"
	sqliteRepo "github.com/sakif/exam-archive/internal/repository/sqlite"
	"github.com/sakif/exam-archive/internal/storage"
)

type stubGoogle struct{ user *auth.GoogleUser }

func (s stubGoogle) AuthURL(state string) string {
	return "https://accounts.test/auth?state=" + url.QueryEscape(state)
}

func (s stubGoogle) Exchange(context.Context, string) (*auth.GoogleUser, error) {
	return s.user, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("moderator-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Database.Path = ":memory:"
	cfg.Auth.JWTSecret = "server-test-secret-0123456789"
	cfg.Auth.SessionTTL = time.Hour
	cfg.Auth.AdminSessionTTL = time.Hour
	cfg.Auth.AllowedEmailDomain = "g.ntu.edu.tw"
	cfg.Auth.LoginRedirect = "/"
	cfg.Admin.Username = "moderator"
	cfg.Admin.PasswordHash = string(hash)
	cfg.Storage.Driver = config.StorageLocal
	cfg.Storage.Local.Dir = t.TempDir()
	cfg.Storage.Local.BaseURL = "/files"
	cfg.Upload.MaxBytes = 1 << 20
	return cfg
}

// newTestServer returns the server's root handler over an in-memory
// database and a temp-dir local store.
func newTestServer(t *testing.T, opts ...Option) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewLocalProvider(cfg.Storage.Local.Dir, cfg.Storage.Local.BaseURL, logger)
	require.NoError(t, err)

	srv, err := New(cfg, logger, db, files, opts...)
	require.NoError(t, err)
	return srv.Handler(), cfg
}

func do(h http.Handler, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(h, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestPublicRoutes(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(h, http.MethodPost, "/api/exams/search", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"exams":[],"total":0}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/exams/trending", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodGet, "/api/exams/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h, _ := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/me/profile"},
		{http.MethodPost, "/api/exams"},
		{http.MethodPost, "/api/exams/report"},
		{http.MethodPatch, "/api/exams/x"},
		{http.MethodDelete, "/api/exams/x"},
		{http.MethodPost, "/api/exams/x/lightning"},
		{http.MethodPost, "/api/exams/x/bookmark"},
		{http.MethodDelete, "/api/exams/x/bookmark"},
		{http.MethodPut, "/api/exams/x/folders"},
		{http.MethodGet, "/api/folders"},
		{http.MethodPost, "/api/folders"},
		{http.MethodPut, "/api/folders/f"},
		{http.MethodDelete, "/api/folders/f"},
		{http.MethodDelete, "/api/folders/f/exams/x"},
		{http.MethodGet, "/api/monitor/reported"},
		{http.MethodGet, "/api/monitor/recent"},
		{http.MethodGet, "/api/monitor/exams/x"},
		{http.MethodPatch, "/api/monitor/exams/x"},
		{http.MethodDelete, "/api/monitor/exams/x"},
		{http.MethodPost, "/api/monitor/exams/x/clear-reports"},
		{http.MethodPost, "/api/monitor/exams/x/files"},
		{http.MethodPut, "/api/monitor/exams/x/files/f"},
		{http.MethodDelete, "/api/monitor/exams/x/files/f"},
	}

	for _, rt := range routes {
		rr := do(h, rt.method, rt.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", rt.method, rt.path)
	}
}

func TestGoogleSignInFlow(t *testing.T) {
	google := stubGoogle{user: &auth.GoogleUser{Sub: "g-1", Email: "r12@g.ntu.edu.tw", EmailVerified: true, Name: "R12"}}
	h, _ := newTestServer(t, WithGoogle(google))

	rr := do(h, http.MethodGet, "/auth/google/login", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := responseCookie(rr, "oauth_state")
	require.NotNil(t, state)

	rr = do(h, http.MethodGet, "/auth/google/callback?code=c&state="+state.Value, nil, state)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	session := responseCookie(rr, auth.UserCookie)
	require.NotNil(t, session)

	rr = do(h, http.MethodGet, "/api/me", nil, session)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"r12@g.ntu.edu.tw"`)

	rr = do(h, http.MethodPost, "/api/folders", strings.NewReader(`{"name":"Midterm Prep"}`), session)
	assert.Equal(t, http.StatusCreated, rr.Code)

	// A student session never opens the moderation panel.
	rr = do(h, http.MethodGet, "/api/monitor/reported", nil,
		&http.Cookie{Name: auth.AdminCookie, Value: session.Value})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGoogleRoutesDisabledWithoutConfig(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(h, http.MethodGet, "/auth/google/login", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestModeratorFlow(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(h, http.MethodPost, "/api/monitor/login", strings.NewReader(`{"username":"moderator","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(h, http.MethodPost, "/api/monitor/login", strings.NewReader(`{"username":"moderator","password":"moderator-pass"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	admin := responseCookie(rr, auth.AdminCookie)
	require.NotNil(t, admin)

	rr = do(h, http.MethodGet, "/api/monitor/reported", nil, admin)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"exams":[]}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/monitor/recent?range=bogus", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// An admin session is not a student session.
	rr = do(h, http.MethodGet, "/api/me", nil, &http.Cookie{Name: auth.UserCookie, Value: admin.Value})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLocalFilesAreServed(t *testing.T) {
	h, cfg := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.Local.Dir, "abc.pdf"), []byte("%PDF-1.7"), 0o644))

	rr := do(h, http.MethodGet, "/files/abc.pdf", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "%PDF-1.7", rr.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/folders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
