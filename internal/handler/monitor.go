package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/service"
)

// MonitorHandler serves the moderation panel. Everything except login and
// logout sits behind auth.RequireAdmin.
type MonitorHandler struct {
	moderation *service.ModerationService
	sessionTTL time.Duration
	cookies    CookieConfig
	maxUpload  int64
	logger     *slog.Logger
}

func NewMonitorHandler(
	moderation *service.ModerationService,
	sessionTTL time.Duration,
	cookies CookieConfig,
	maxUpload int64,
	logger *slog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		moderation: moderation,
		sessionTTL: sessionTTL,
		cookies:    cookies,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

// HandleLogin checks the moderator credentials and sets the admin cookie.
//
// HTTP: POST /api/monitor/login
//
//	{"username": "...", "password": "..."}
func (h *MonitorHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.moderation.Login(req.Username, req.Password)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	h.cookies.set(w, auth.AdminCookie, token, h.sessionTTL)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged in"})
}

// HTTP: POST /api/monitor/logout
func (h *MonitorHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, auth.AdminCookie)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleReported lists exams with open reports.
//
// HTTP: GET /api/monitor/reported
func (h *MonitorHandler) HandleReported(w http.ResponseWriter, r *http.Request) {
	exams, err := h.moderation.ReportedExams(r.Context())
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeExamList(w, exams)
}

// HandleRecent lists recent uploads.
//
// HTTP: GET /api/monitor/recent?range=today|3days|week|month|all
func (h *MonitorHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	rng := model.MonitorRange(r.URL.Query().Get("range"))
	exams, err := h.moderation.RecentExams(r.Context(), rng)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeExamList(w, exams)
}

// HTTP: GET /api/monitor/exams/{id}
func (h *MonitorHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	exam, err := h.moderation.ExamForAdmin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

// HTTP: PATCH /api/monitor/exams/{id}
func (h *MonitorHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.ExamPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	exam, err := h.moderation.UpdateExam(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

// HTTP: DELETE /api/monitor/exams/{id}
func (h *MonitorHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.moderation.DeleteExam(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/monitor/exams/{id}/clear-reports
func (h *MonitorHandler) HandleClearReports(w http.ResponseWriter, r *http.Request) {
	if err := h.moderation.ClearReports(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddFile attaches a file. Form fields: fileType, file.
//
// HTTP: POST /api/monitor/exams/{id}/files
func (h *MonitorHandler) HandleAddFile(w http.ResponseWriter, r *http.Request) {
	form, ok := readMultipart(w, r, h.maxUpload)
	if !ok {
		return
	}
	defer form.RemoveAll()

	var opened openedUploads
	defer opened.Close()
	up, err := opened.single(form, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	fileType := model.FileType(formValue(form, "fileType"))
	file, err := h.moderation.AddFile(r.Context(), chi.URLParam(r, "id"), fileType, up)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// HandleReplaceFile swaps the blob behind a file entry. Form field: file.
//
// HTTP: PUT /api/monitor/exams/{id}/files/{fileID}
func (h *MonitorHandler) HandleReplaceFile(w http.ResponseWriter, r *http.Request) {
	form, ok := readMultipart(w, r, h.maxUpload)
	if !ok {
		return
	}
	defer form.RemoveAll()

	var opened openedUploads
	defer opened.Close()
	up, err := opened.single(form, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	file, err := h.moderation.ReplaceFile(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "fileID"), up)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// HTTP: DELETE /api/monitor/exams/{id}/files/{fileID}
func (h *MonitorHandler) HandleRemoveFile(w http.ResponseWriter, r *http.Request) {
	if err := h.moderation.RemoveFile(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "fileID")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeExamList(w http.ResponseWriter, exams []model.Exam) {
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Exam{"exams": exams})
}
