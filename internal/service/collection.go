package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
	"github.com/sakif/exam-archive/internal/storage"
)

const (
	MaxFolderNameLength        = 100
	MaxFolderDescriptionLength = 500
)

// CollectionService manages a user's bookmarks and folders, and the owner
// path of exam deletion.
//
// A folder can only contain exams the user has bookmarked. The store
// enforces this with a foreign key from folder membership to the bookmark
// row, so unbookmarking (or deleting the exam) removes the exam from every
// folder without any bookkeeping here.
type CollectionService struct {
	users       repository.UserRepository
	exams       repository.ExamRepository
	collections repository.CollectionRepository
	files       storage.Provider
	logger      *slog.Logger
}

func NewCollectionService(
	users repository.UserRepository,
	exams repository.ExamRepository,
	collections repository.CollectionRepository,
	files storage.Provider,
	logger *slog.Logger,
) *CollectionService {
	return &CollectionService{
		users:       users,
		exams:       exams,
		collections: collections,
		files:       files,
		logger:      logger,
	}
}

// ToggleBookmark saves or unsaves the exam and returns the new state.
func (s *CollectionService) ToggleBookmark(ctx context.Context, userID, examID string) (bool, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return false, err
	}
	saved, err := s.collections.ToggleBookmark(ctx, userID, examID)
	if err != nil {
		return false, storeError("toggling bookmark", err)
	}

	s.logger.Info("bookmark toggled",
		slog.String("userID", userID),
		slog.String("examID", examID),
		slog.Bool("saved", saved),
	)
	return saved, nil
}

// SetFolderAssignment makes folderIDs the exact set of the user's folders
// containing the exam. Ids that are unknown or belong to someone else are
// dropped. The exam is bookmarked if it was not already.
func (s *CollectionService) SetFolderAssignment(ctx context.Context, userID, examID string, folderIDs []string) error {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return err
	}

	seen := make(map[string]bool, len(folderIDs))
	ids := make([]string, 0, len(folderIDs))
	for _, id := range folderIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if err := s.collections.SetFolderAssignment(ctx, userID, examID, ids); err != nil {
		return storeError("assigning folders", err)
	}
	return nil
}

// CreateFolder creates an empty folder and returns it with its new id.
func (s *CollectionService) CreateFolder(ctx context.Context, userID, name, description string) (*model.Folder, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	name, description, err := validateFolder(name, description)
	if err != nil {
		return nil, err
	}

	folder := &model.Folder{Name: name, Description: description}
	if err := s.collections.CreateFolder(ctx, userID, folder); err != nil {
		return nil, storeError("creating folder", err)
	}

	s.logger.Info("folder created",
		slog.String("userID", userID),
		slog.String("folderID", folder.ID),
	)
	return folder, nil
}

// RenameFolder changes a folder's name and description. A folder the user
// does not own is reported as NotFound.
func (s *CollectionService) RenameFolder(ctx context.Context, userID, folderID, name, description string) error {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return err
	}
	name, description, err := validateFolder(name, description)
	if err != nil {
		return err
	}

	folder := &model.Folder{ID: folderID, Name: name, Description: description}
	if err := s.collections.UpdateFolder(ctx, userID, folder); err != nil {
		return storeError("renaming folder", err)
	}
	return nil
}

// DeleteFolder removes the folder. Its exams stay bookmarked.
func (s *CollectionService) DeleteFolder(ctx context.Context, userID, folderID string) error {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return err
	}
	if err := s.collections.DeleteFolder(ctx, userID, folderID); err != nil {
		return storeError("deleting folder", err)
	}
	s.logger.Info("folder deleted",
		slog.String("userID", userID),
		slog.String("folderID", folderID),
	)
	return nil
}

func (s *CollectionService) RemoveExamFromFolder(ctx context.Context, userID, folderID, examID string) error {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return err
	}
	if err := s.collections.RemoveExamFromFolder(ctx, userID, folderID, examID); err != nil {
		return storeError("removing exam from folder", err)
	}
	return nil
}

// Unbookmark removes the bookmark and with it every folder membership of
// the exam. Unbookmarking an exam that is not saved is a no-op.
func (s *CollectionService) Unbookmark(ctx context.Context, userID, examID string) error {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return err
	}
	if err := s.collections.Unbookmark(ctx, userID, examID); err != nil {
		return storeError("removing bookmark", err)
	}
	return nil
}

func (s *CollectionService) ListFolders(ctx context.Context, userID string) ([]model.Folder, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	folders, err := s.collections.ListFolders(ctx, userID)
	if err != nil {
		return nil, storeError("listing folders", err)
	}
	return folders, nil
}

// DeleteExam removes an exam on behalf of its uploader. Every user's
// bookmarks and folder entries for it disappear with the row; stored files
// are deleted best-effort afterwards.
func (s *CollectionService) DeleteExam(ctx context.Context, examID, requesterID string) error {
	if _, err := requireUser(ctx, s.users, requesterID); err != nil {
		return err
	}
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return err
	}
	if exam.UploadedBy != requesterID {
		return apperror.Forbidden("only the uploader can delete this exam")
	}

	if err := purgeExam(ctx, s.exams, s.files, s.logger, exam); err != nil {
		return err
	}

	s.logger.Info("exam deleted",
		slog.String("examID", exam.ID),
		slog.String("userID", requesterID),
		slog.Int("files", len(exam.Files)),
	)
	return nil
}

func validateFolder(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return "", "", apperror.ValidationFailed("name", "folder name is required")
	}
	if utf8.RuneCountInString(name) > MaxFolderNameLength {
		return "", "", apperror.ValidationFailed("name", "folder name must be at most 100 characters")
	}
	if utf8.RuneCountInString(description) > MaxFolderDescriptionLength {
		return "", "", apperror.ValidationFailed("description", "folder description must be at most 500 characters")
	}
	return name, description, nil
}
