// Package repository declares the store interfaces the services depend on.
// internal/repository/sqlite is the only implementation; services and tests
// only ever see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/exam-archive/internal/model"
)

type UserRepository interface {
	// UpsertByEmail creates the user on first sign-in and refreshes the
	// profile fields afterwards. The email is the natural key.
	UpsertByEmail(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type ExamRepository interface {
	// CreateExam inserts the exam and its files. A zero CreatedAt is set to now.
	CreateExam(ctx context.Context, exam *model.Exam) error
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	// UpdateExam writes the descriptive fields only. Counters, files and
	// ownership are changed by their own operations.
	UpdateExam(ctx context.Context, exam *model.Exam) error
	// DeleteExam removes the exam row. Files, bookmarks, folder edges,
	// flashes and reports go with it through ON DELETE CASCADE.
	DeleteExam(ctx context.Context, id string) error

	ListByUploader(ctx context.Context, userID string) ([]model.ExamSummary, error)
	ListTrending(ctx context.Context, limit int) ([]model.ExamSummary, error)
	ListReported(ctx context.Context, limit int) ([]model.Exam, error)
	ListRecent(ctx context.Context, since *time.Time, limit int) ([]model.Exam, error)

	AddFile(ctx context.Context, examID string, file *model.ExamFile) error
	ReplaceFile(ctx context.Context, examID string, file *model.ExamFile) error
	DeleteFile(ctx context.Context, examID, fileID string) error
}

// SearchRepository runs the store-side half of a search: keyword, the
// categorical IN filters and the sort. Year bounds and paging in the query
// are ignored here; the search engine applies them to the returned list.
type SearchRepository interface {
	ListForSearch(ctx context.Context, q model.SearchQuery) ([]model.ExamSummary, error)
}

type EngagementRepository interface {
	// ToggleFlash flips the user's lightning on the exam and returns the new
	// state and counter.
	ToggleFlash(ctx context.Context, userID, examID string) (bool, int, error)
	IsFlashed(ctx context.Context, userID, examID string) (bool, error)

	AddReport(ctx context.Context, report *model.Report) (*model.ReportReceipt, error)
	ListReports(ctx context.Context, examID string) ([]model.Report, error)
	ClearReports(ctx context.Context, examID string) error
}

// CollectionRepository keeps one user's bookmarks and folders. Every method
// is scoped to userID; rows of other users are never visible or touched.
type CollectionRepository interface {
	ToggleBookmark(ctx context.Context, userID, examID string) (bool, error)
	// SetFolderAssignment replaces the exam's folder set with the given ids
	// that belong to the user, and bookmarks the exam if needed.
	SetFolderAssignment(ctx context.Context, userID, examID string, folderIDs []string) error
	Unbookmark(ctx context.Context, userID, examID string) error
	// GetBookmark returns nil, nil when the exam is not bookmarked.
	GetBookmark(ctx context.Context, userID, examID string) (*model.Bookmark, error)
	ListSaved(ctx context.Context, userID string) ([]model.ExamSummary, error)

	CreateFolder(ctx context.Context, userID string, folder *model.Folder) error
	UpdateFolder(ctx context.Context, userID string, folder *model.Folder) error
	DeleteFolder(ctx context.Context, userID, folderID string) error
	RemoveExamFromFolder(ctx context.Context, userID, folderID, examID string) error
	ListFolders(ctx context.Context, userID string) ([]model.Folder, error)
}
