package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
	"github.com/sakif/exam-archive/internal/storage"
)

// ExamService handles uploads, the exam page, owner edits, lightning and
// reports, and the profile page.
type ExamService struct {
	users       repository.UserRepository
	exams       repository.ExamRepository
	engagement  repository.EngagementRepository
	collections repository.CollectionRepository
	files       storage.Provider
	owner       *CollectionService
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewExamService(
	users repository.UserRepository,
	exams repository.ExamRepository,
	engagement repository.EngagementRepository,
	collections repository.CollectionRepository,
	files storage.Provider,
	owner *CollectionService,
	logger *slog.Logger,
) *ExamService {
	return &ExamService{
		users:       users,
		exams:       exams,
		engagement:  engagement,
		collections: collections,
		files:       files,
		owner:       owner,
		validate:    newValidator(),
		logger:      logger,
	}
}

// Upload stores the attachments and creates the exam.
//
// Every attachment type is checked before anything is stored. A file the
// provider fails to store is logged and left out; the exam is still created
// with the rest. If the record itself cannot be written, the blobs stored
// for it are deleted again.
func (s *ExamService) Upload(ctx context.Context, userID string, in model.ExamInput, uploads []model.UploadFile) (*model.Exam, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}

	in = trimInput(in)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	for _, u := range uploads {
		if !model.ValidFileType(u.Type) {
			return nil, apperror.ValidationFailed("type", "file type must be one of: question official unofficial")
		}
	}

	stored := make([]model.ExamFile, 0, len(uploads))
	for _, u := range uploads {
		obj, err := s.files.Store(ctx, u.Content, u.Name, u.MimeType)
		if err != nil {
			s.logger.Warn("failed to store uploaded file",
				slog.String("userID", userID),
				slog.String("name", u.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored = append(stored, model.ExamFile{
			Type:       u.Type,
			Name:       u.Name,
			URL:        obj.ViewURL,
			MimeType:   u.MimeType,
			ExternalID: obj.ExternalID,
		})
	}

	exam := &model.Exam{
		Title:       in.Title,
		CourseName:  in.CourseName,
		Instructor:  in.Instructor,
		Department:  in.Department,
		Semester:    in.Semester,
		ExamType:    model.ExamType(in.ExamType),
		HasAnswers:  model.AnswerAvailability(in.HasAnswers),
		Description: in.Description,
		Files:       stored,
		UploadedBy:  userID,
	}
	if exam.HasAnswers == "" {
		exam.HasAnswers = answersFromFiles(stored)
	}

	if err := s.exams.CreateExam(ctx, exam); err != nil {
		ids := make([]string, 0, len(stored))
		for _, f := range stored {
			ids = append(ids, f.ExternalID)
		}
		discardBlobs(ctx, s.files, s.logger, "", ids...)
		return nil, storeError("creating exam", err)
	}

	s.logger.Info("exam uploaded",
		slog.String("examID", exam.ID),
		slog.String("userID", userID),
		slog.Int("files", len(stored)),
		slog.Int("skipped", len(uploads)-len(stored)),
	)
	return exam, nil
}

// Get returns the exam page. For a signed-in viewer the personal fields are
// filled in; viewerID may be empty.
func (s *ExamService) Get(ctx context.Context, examID, viewerID string) (*model.ExamDetail, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}

	detail := &model.ExamDetail{Exam: *exam, SavedInFolders: []string{}}
	if viewerID == "" {
		return detail, nil
	}

	bm, err := s.collections.GetBookmark(ctx, viewerID, examID)
	if err != nil {
		return nil, storeError("loading bookmark", err)
	}
	if bm != nil {
		detail.IsSaved = true
		detail.SavedInFolders = bm.FolderIDs
	}

	detail.IsFlashed, err = s.engagement.IsFlashed(ctx, viewerID, examID)
	if err != nil {
		return nil, storeError("loading lightning", err)
	}
	return detail, nil
}

// Update applies an owner's edit. Fields absent from the patch are left alone.
func (s *ExamService) Update(ctx context.Context, examID, requesterID string, patch model.ExamPatch) (*model.Exam, error) {
	if _, err := requireUser(ctx, s.users, requesterID); err != nil {
		return nil, err
	}
	patch, err := checkPatch(s.validate, patch)
	if err != nil {
		return nil, err
	}

	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if exam.UploadedBy != requesterID {
		return nil, apperror.Forbidden("only the uploader can edit this exam")
	}

	return applyPatch(ctx, s.exams, s.logger, exam, patch)
}

// Delete removes the exam on behalf of its uploader.
func (s *ExamService) Delete(ctx context.Context, examID, requesterID string) error {
	return s.owner.DeleteExam(ctx, examID, requesterID)
}

// ToggleLightning flips the user's lightning on the exam and returns the
// new state and counter.
func (s *ExamService) ToggleLightning(ctx context.Context, userID, examID string) (bool, int, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return false, 0, err
	}
	flashed, lightning, err := s.engagement.ToggleFlash(ctx, userID, examID)
	if err != nil {
		return false, 0, storeError("toggling lightning", err)
	}
	return flashed, lightning, nil
}

// Report flags the exam for moderation. The note is optional; it is trimmed
// and cut to MaxReportNoteLength characters.
func (s *ExamService) Report(ctx context.Context, userID, examID, note string) (*model.ReportReceipt, error) {
	if _, err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(examID) == "" {
		return nil, apperror.ValidationFailed("examId", "exam id is required")
	}

	note = strings.TrimSpace(note)
	if r := []rune(note); len(r) > model.MaxReportNoteLength {
		note = strings.TrimSpace(string(r[:model.MaxReportNoteLength]))
	}

	receipt, err := s.engagement.AddReport(ctx, &model.Report{
		ExamID:     examID,
		ReportedBy: userID,
		Note:       note,
	})
	if err != nil {
		return nil, storeError("reporting exam", err)
	}

	s.logger.Info("exam reported",
		slog.String("examID", examID),
		slog.String("userID", userID),
		slog.Int("reportCount", receipt.ReportCount),
	)
	return receipt, nil
}

// Profile collects the user's uploads, saved exams and folders.
func (s *ExamService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	user, err := requireUser(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.exams.ListByUploader(ctx, userID)
	if err != nil {
		return nil, storeError("listing uploads", err)
	}
	saved, err := s.collections.ListSaved(ctx, userID)
	if err != nil {
		return nil, storeError("listing saved exams", err)
	}
	folders, err := s.collections.ListFolders(ctx, userID)
	if err != nil {
		return nil, storeError("listing folders", err)
	}

	return &model.Profile{User: user, Uploaded: uploaded, Saved: saved, Folders: folders}, nil
}

// checkPatch trims the patch and validates it. Title and course name may be
// changed but not blanked.
func checkPatch(v *validator.Validate, p model.ExamPatch) (model.ExamPatch, error) {
	for _, f := range []**string{&p.Title, &p.CourseName, &p.Instructor, &p.Department,
		&p.Semester, &p.ExamType, &p.HasAnswers, &p.Description} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}

	if p.Empty() {
		return p, apperror.ValidationFailed("", "nothing to update")
	}
	if p.Title != nil && *p.Title == "" {
		return p, apperror.ValidationFailed("title", "title is required")
	}
	if p.CourseName != nil && *p.CourseName == "" {
		return p, apperror.ValidationFailed("courseName", "courseName is required")
	}
	if err := v.Struct(p); err != nil {
		return p, validationError(err)
	}
	return p, nil
}

func applyPatch(ctx context.Context, exams repository.ExamRepository, logger *slog.Logger, exam *model.Exam, patch model.ExamPatch) (*model.Exam, error) {
	patch.Apply(exam)
	if err := exams.UpdateExam(ctx, exam); err != nil {
		return nil, storeError("updating exam", err)
	}
	logger.Info("exam updated", slog.String("examID", exam.ID))
	return exam, nil
}

func trimInput(in model.ExamInput) model.ExamInput {
	in.Title = strings.TrimSpace(in.Title)
	in.CourseName = strings.TrimSpace(in.CourseName)
	in.Instructor = strings.TrimSpace(in.Instructor)
	in.Department = strings.TrimSpace(in.Department)
	in.Semester = strings.TrimSpace(in.Semester)
	in.ExamType = strings.TrimSpace(in.ExamType)
	in.HasAnswers = strings.TrimSpace(in.HasAnswers)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// answersFromFiles picks the availability when the uploader left it blank:
// official answers win over unofficial ones.
func answersFromFiles(files []model.ExamFile) model.AnswerAvailability {
	has := model.AnswersNone
	for _, f := range files {
		switch f.Type {
		case model.FileTypeOfficial:
			return model.AnswersOfficial
		case model.FileTypeUnofficial:
			has = model.AnswersUnofficial
		}
	}
	return has
}
