package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/handler"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository/sqlite"
	"github.com/sakif/exam-archive/internal/search"
	"github.com/sakif/exam-archive/internal/service"
	"github.com/sakif/exam-archive/internal/storage"
)

// =========================================================================
// TEST HARNESS
// =========================================================================

// memStorage is an in-memory storage.Provider.
type memStorage struct {
	mu    sync.Mutex
	blobs map[string]string
	next  int
}

var _ storage.Provider = (*memStorage)(nil)

func (m *memStorage) Store(_ context.Context, r io.Reader, name, _ string) (*storage.StoredObject, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("blob-%d", m.next)
	m.blobs[id] = string(body)
	return &storage.StoredObject{ExternalID: id, ViewURL: "https://files.test/" + id + "/" + name}, nil
}

func (m *memStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

func (m *memStorage) content(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.blobs[id]
	return body, ok
}

const adminPassword = "correct horse battery"

type testEnv struct {
	db          *sqlite.DB
	files       *memStorage
	tokens      *auth.TokenService
	collections *service.CollectionService
	exams       *service.ExamService
	moderation  *service.ModerationService
	authService *service.AuthService
	engine      *search.Engine
	logger      *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0, 0)
	require.NoError(t, err)

	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	hash, err := passwords.Hash(adminPassword)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	files := &memStorage{blobs: map[string]string{}}
	collections := service.NewCollectionService(db, db, db, files, logger)

	return &testEnv{
		db:          db,
		files:       files,
		tokens:      tokens,
		collections: collections,
		exams:       service.NewExamService(db, db, db, db, files, collections, logger),
		moderation: service.NewModerationService(db, db, files, tokens, passwords,
			service.AdminAccount{Username: "admin", PasswordHash: hash}, logger),
		authService: service.NewAuthService(db, tokens, "g.ntu.edu.tw", logger),
		engine:      search.NewEngine(db, db, logger),
		logger:      logger,
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Email: name + "@g.ntu.edu.tw", Name: name}
	require.NoError(t, e.db.UpsertByEmail(context.Background(), u))
	return u
}

func (e *testEnv) exam(t *testing.T, owner *model.User, title string, files ...model.UploadFile) *model.Exam {
	t.Helper()
	exam, err := e.exams.Upload(context.Background(), owner.ID,
		model.ExamInput{Title: title, CourseName: "Linear Algebra", Semester: "112-2"}, files)
	require.NoError(t, err)
	return exam
}

func pdfFile(kind model.FileType, name string) model.UploadFile {
	return model.UploadFile{Type: kind, Name: name, MimeType: "application/pdf", Content: strings.NewReader("%PDF-" + name)}
}

func (e *testEnv) examHandler() *handler.ExamHandler {
	return handler.NewExamHandler(e.exams, e.collections, 1<<20, e.logger)
}

// =========================================================================
// REQUEST HELPERS
// =========================================================================

// request builds a request as chi and RequireAuth would hand it to a
// handler: userID (may be empty) in the context and URL params from kv pairs.
func request(method, target string, body io.Reader, userID string, kv ...string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.ContextWithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func errorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[handler.ErrorResponse](t, rr).Error
}

type formFile struct {
	field, name, contentType, body string
}

// multipartBody encodes text fields and files; it returns the body and its
// Content-Type.
func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{
			fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name),
		}
		if f.contentType != "" {
			h["Content-Type"] = []string{f.contentType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
