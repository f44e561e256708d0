package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/service"
)

// CollectionHandler manages the signed-in user's folders.
type CollectionHandler struct {
	collections *service.CollectionService
	logger      *slog.Logger
}

func NewCollectionHandler(collections *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, logger: logger}
}

type folderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleList returns the user's folders with their exam ids.
//
// HTTP: GET /api/folders
func (h *CollectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	folders, err := h.collections.ListFolders(r.Context(), userID)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Folder{"folders": folders})
}

// HandleCreate creates an empty folder.
//
// HTTP: POST /api/folders
//
//	{"name": "Midterm Prep", "description": "optional"}
func (h *CollectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	folder, err := h.collections.CreateFolder(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// HandleUpdate renames a folder and replaces its description.
//
// HTTP: PUT /api/folders/{id}
func (h *CollectionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.collections.RenameFolder(r.Context(), userID, chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a folder. Bookmarks of its exams stay.
//
// HTTP: DELETE /api/folders/{id}
func (h *CollectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.collections.DeleteFolder(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveExam takes one exam out of one folder.
//
// HTTP: DELETE /api/folders/{id}/exams/{examID}
func (h *CollectionHandler) HandleRemoveExam(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	err := h.collections.RemoveExamFromFolder(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "examID"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
