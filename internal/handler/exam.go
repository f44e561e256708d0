package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/service"
)

// ExamHandler serves the exam pages and everything a signed-in student
// does to an exam: upload, edit, delete, lightning, bookmark, report.
type ExamHandler struct {
	exams       *service.ExamService
	collections *service.CollectionService
	maxUpload   int64
	logger      *slog.Logger
}

// NewExamHandler creates an ExamHandler. maxUpload bounds a whole multipart
// upload request in bytes.
func NewExamHandler(
	exams *service.ExamService,
	collections *service.CollectionService,
	maxUpload int64,
	logger *slog.Logger,
) *ExamHandler {
	return &ExamHandler{
		exams:       exams,
		collections: collections,
		maxUpload:   maxUpload,
		logger:      logger,
	}
}

// HandleGet returns one exam with its files. Signed-in viewers also get
// isSaved, isFlashed and savedInFolders.
//
// HTTP: GET /api/exams/{id}
// Auth: Optional
func (h *ExamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	detail, err := h.exams.Get(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleUpload creates an exam from a multipart form.
//
// HTTP: POST /api/exams
// Auth: Required
//
// FORM FIELDS:
//
//	title, courseName, instructor, department, semester, examType,
//	hasAnswers, description          text
//	file_question, file_official,
//	file_unofficial                  files, each key may repeat
func (h *ExamHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	form, ok := readMultipart(w, r, h.maxUpload)
	if !ok {
		return
	}
	defer form.RemoveAll()

	var opened openedUploads
	defer opened.Close()
	uploads, err := opened.examUploads(form)
	if err != nil {
		writeError(w, err)
		return
	}

	in := model.ExamInput{
		Title:       formValue(form, "title"),
		CourseName:  formValue(form, "courseName"),
		Instructor:  formValue(form, "instructor"),
		Department:  formValue(form, "department"),
		Semester:    formValue(form, "semester"),
		ExamType:    formValue(form, "examType"),
		HasAnswers:  formValue(form, "hasAnswers"),
		Description: formValue(form, "description"),
	}

	exam, err := h.exams.Upload(r.Context(), userID, in, uploads)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

// HandleUpdate applies a partial edit. Only the uploader may edit.
//
// HTTP: PATCH /api/exams/{id}
// Auth: Required
func (h *ExamHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var patch model.ExamPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	exam, err := h.exams.Update(r.Context(), chi.URLParam(r, "id"), userID, patch)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

// HandleDelete removes an exam and its files. Only the uploader may delete.
//
// HTTP: DELETE /api/exams/{id}
// Auth: Required
func (h *ExamHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.exams.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLightning toggles the viewer's lightning on an exam.
//
// HTTP: POST /api/exams/{id}/lightning
// Auth: Required
func (h *ExamHandler) HandleLightning(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	flashed, lightning, err := h.exams.ToggleLightning(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lightningResponse{Flashed: flashed, Lightning: lightning})
}

type lightningResponse struct {
	Flashed   bool `json:"flashed"`
	Lightning int  `json:"lightning"`
}

// HandleToggleBookmark saves or unsaves an exam. Unsaving also takes it out
// of every folder.
//
// HTTP: POST /api/exams/{id}/bookmark
// Auth: Required
func (h *ExamHandler) HandleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	saved, err := h.collections.ToggleBookmark(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

// HandleUnbookmark removes the bookmark and every folder edge.
//
// HTTP: DELETE /api/exams/{id}/bookmark
// Auth: Required
func (h *ExamHandler) HandleUnbookmark(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.collections.Unbookmark(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetFolders replaces the folders an exam is filed under.
//
// HTTP: PUT /api/exams/{id}/folders
// Auth: Required
//
//	{"folderIds": ["f1", "f2"]}
func (h *ExamHandler) HandleSetFolders(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		FolderIDs []string `json:"folderIds"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	examID := chi.URLParam(r, "id")
	if err := h.collections.SetFolderAssignment(r.Context(), userID, examID, req.FolderIDs); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReport flags an exam for moderation.
//
// HTTP: POST /api/exams/report
// Auth: Required
//
//	{"examId": "...", "note": "wrong course"}
func (h *ExamHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		ExamID string `json:"examId"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := h.exams.Report(r.Context(), userID, req.ExamID, req.Note)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleProfile returns the signed-in user's uploads, saved exams and
// folders.
//
// HTTP: GET /api/me/profile
// Auth: Required
func (h *ExamHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	profile, err := h.exams.Profile(r.Context(), userID)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
