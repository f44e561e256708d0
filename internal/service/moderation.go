package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
	"github.com/sakif/exam-archive/internal/storage"
)

// ModerationListLimit caps the reported and recent lists of the panel.
const ModerationListLimit = 200

// AdminAccount is the single moderator login, taken from config.
type AdminAccount struct {
	Username     string
	PasswordHash string // bcrypt
}

// ModerationService backs the moderation panel. Callers are authenticated
// by the admin middleware; nothing here checks ownership.
type ModerationService struct {
	exams      repository.ExamRepository
	engagement repository.EngagementRepository
	files      storage.Provider
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	account    AdminAccount
	validate   *validator.Validate
	now        func() time.Time
	logger     *slog.Logger
}

func NewModerationService(
	exams repository.ExamRepository,
	engagement repository.EngagementRepository,
	files storage.Provider,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	account AdminAccount,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		exams:      exams,
		engagement: engagement,
		files:      files,
		tokens:     tokens,
		passwords:  passwords,
		account:    account,
		validate:   newValidator(),
		now:        time.Now,
		logger:     logger,
	}
}

// Login checks the moderator credentials and returns an admin token.
// Any mismatch, including an unconfigured account, is ErrUnauthenticated.
func (s *ModerationService) Login(username, password string) (string, error) {
	if s.account.Username == "" || s.account.PasswordHash == "" {
		s.logger.Warn("admin login attempted but no admin account is configured")
		return "", apperror.Unauthenticated()
	}

	err := s.passwords.VerifyLogin(s.account.Username, s.account.PasswordHash, username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Warn("admin login failed", slog.String("username", username))
		return "", apperror.Unauthenticated()
	}
	if err != nil {
		return "", apperror.DependencyFailed("checking admin password", err)
	}

	token, err := s.tokens.GenerateAdmin(s.account.Username)
	if err != nil {
		return "", apperror.DependencyFailed("issuing admin token", err)
	}
	s.logger.Info("admin signed in", slog.String("username", username))
	return token, nil
}

// ReportedExams lists exams with at least one open report, most recently
// reported first.
func (s *ModerationService) ReportedExams(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.exams.ListReported(ctx, ModerationListLimit)
	if err != nil {
		return nil, storeError("listing reported exams", err)
	}
	return exams, nil
}

// RecentExams lists uploads inside the window, newest first. An empty range
// means all; an unknown one is a validation error.
func (s *ModerationService) RecentExams(ctx context.Context, rng model.MonitorRange) ([]model.Exam, error) {
	switch rng {
	case "":
		rng = model.RangeAll
	case model.RangeToday, model.RangeThreeDays, model.RangeWeek, model.RangeMonth, model.RangeAll:
	default:
		return nil, apperror.ValidationFailed("range", "range must be one of: today 3days week month all")
	}

	exams, err := s.exams.ListRecent(ctx, rng.Since(s.now()), ModerationListLimit)
	if err != nil {
		return nil, storeError("listing recent exams", err)
	}
	return exams, nil
}

// ExamForAdmin returns the exam with its full report history.
func (s *ModerationService) ExamForAdmin(ctx context.Context, examID string) (*model.ModeratedExam, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	reports, err := s.engagement.ListReports(ctx, examID)
	if err != nil {
		return nil, storeError("listing reports", err)
	}
	return &model.ModeratedExam{Exam: *exam, Reports: reports}, nil
}

// UpdateExam applies the same edit rules as the owner path, without the
// owner check.
func (s *ModerationService) UpdateExam(ctx context.Context, examID string, patch model.ExamPatch) (*model.Exam, error) {
	patch, err := checkPatch(s.validate, patch)
	if err != nil {
		return nil, err
	}
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	return applyPatch(ctx, s.exams, s.logger, exam, patch)
}

// DeleteExam removes any exam, with the same cascade as the owner path.
func (s *ModerationService) DeleteExam(ctx context.Context, examID string) error {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return err
	}
	if err := purgeExam(ctx, s.exams, s.files, s.logger, exam); err != nil {
		return err
	}
	s.logger.Info("exam deleted by moderator", slog.String("examID", examID))
	return nil
}

// ClearReports resets the report counter. The history is kept.
func (s *ModerationService) ClearReports(ctx context.Context, examID string) error {
	if err := s.engagement.ClearReports(ctx, examID); err != nil {
		return storeError("clearing reports", err)
	}
	s.logger.Info("reports cleared", slog.String("examID", examID))
	return nil
}

// AddFile attaches a new file to the end of the exam's list.
func (s *ModerationService) AddFile(ctx context.Context, examID string, fileType model.FileType, up model.UploadFile) (*model.ExamFile, error) {
	if !model.ValidFileType(fileType) {
		return nil, apperror.ValidationFailed("fileType", "fileType must be one of: question official unofficial")
	}
	if _, err := loadExam(ctx, s.exams, examID); err != nil {
		return nil, err
	}

	obj, err := s.files.Store(ctx, up.Content, up.Name, up.MimeType)
	if err != nil {
		return nil, apperror.DependencyFailed("storing file", err)
	}

	file := &model.ExamFile{
		Type:       fileType,
		Name:       up.Name,
		URL:        obj.ViewURL,
		MimeType:   up.MimeType,
		ExternalID: obj.ExternalID,
	}
	if err := s.exams.AddFile(ctx, examID, file); err != nil {
		discardBlobs(ctx, s.files, s.logger, examID, obj.ExternalID)
		return nil, storeError("adding file", err)
	}

	s.logger.Info("file added",
		slog.String("examID", examID),
		slog.String("fileID", file.ID),
	)
	return file, nil
}

// ReplaceFile swaps the blob behind a file entry. The entry keeps its id,
// type and position; the old blob is deleted best-effort once the new one
// is recorded.
func (s *ModerationService) ReplaceFile(ctx context.Context, examID, fileID string, up model.UploadFile) (*model.ExamFile, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	old, err := findFile(exam, fileID)
	if err != nil {
		return nil, err
	}

	obj, err := s.files.Store(ctx, up.Content, up.Name, up.MimeType)
	if err != nil {
		return nil, apperror.DependencyFailed("storing file", err)
	}

	file := &model.ExamFile{
		ID:         old.ID,
		Type:       old.Type,
		Name:       up.Name,
		URL:        obj.ViewURL,
		MimeType:   up.MimeType,
		ExternalID: obj.ExternalID,
	}
	if err := s.exams.ReplaceFile(ctx, examID, file); err != nil {
		discardBlobs(ctx, s.files, s.logger, examID, obj.ExternalID)
		return nil, storeError("replacing file", err)
	}
	discardBlobs(ctx, s.files, s.logger, examID, old.ExternalID)

	s.logger.Info("file replaced",
		slog.String("examID", examID),
		slog.String("fileID", fileID),
	)
	return file, nil
}

// RemoveFile drops a file entry and deletes its blob best-effort.
func (s *ModerationService) RemoveFile(ctx context.Context, examID, fileID string) error {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return err
	}
	old, err := findFile(exam, fileID)
	if err != nil {
		return err
	}

	if err := s.exams.DeleteFile(ctx, examID, fileID); err != nil {
		return storeError("removing file", err)
	}
	discardBlobs(ctx, s.files, s.logger, examID, old.ExternalID)

	s.logger.Info("file removed",
		slog.String("examID", examID),
		slog.String("fileID", fileID),
	)
	return nil
}

func findFile(exam *model.Exam, fileID string) (*model.ExamFile, error) {
	for i := range exam.Files {
		if exam.Files[i].ID == fileID {
			return &exam.Files[i], nil
		}
	}
	return nil, apperror.NotFound("file", fileID)
}
