// Package service contains the business rules of the exam archive.
//
//	Handler (HTTP) → Service (rules, ownership, orchestration) → Repository (SQL)
//	                                                          ↘ storage.Provider (blobs)
//
// Services take repository interfaces and a storage.Provider, never concrete
// types, and speak only in apperror kinds. Store failures that are not
// already an *apperror.AppError come back as ErrDependency.
package service

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
	"github.com/sakif/exam-archive/internal/storage"
)

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into ErrValidation.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", "invalid input")
	}
	fe := fieldErrs[0]
	field := fe.Field()

	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "max":
		msg = field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		msg = field + " must be one of: " + fe.Param()
	default:
		msg = field + " is invalid"
	}
	return apperror.ValidationFailed(field, msg)
}

// storeError leaves apperror values alone and turns everything else into a
// dependency failure for op.
func storeError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.DependencyFailed(op, err)
}

// requireUser maps an empty or unknown user id to ErrUnauthenticated. A
// token can outlive its user, so the id is always checked against the store.
func requireUser(ctx context.Context, users repository.UserRepository, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated()
	}
	u, err := users.GetUserByID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthenticated()
	}
	if err != nil {
		return nil, apperror.DependencyFailed("loading user", err)
	}
	return u, nil
}

// discardBlobs deletes stored objects best-effort. Failures are logged at
// Warn with the external id and otherwise ignored.
func discardBlobs(ctx context.Context, files storage.Provider, logger *slog.Logger, examID string, externalIDs ...string) {
	for _, id := range externalIDs {
		if id == "" {
			continue
		}
		if err := files.Delete(ctx, id); err != nil {
			logger.Warn("failed to delete stored file",
				slog.String("examID", examID),
				slog.String("externalID", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// purgeExam deletes the exam row, which cascades to files, bookmarks, folder
// edges, flashes and reports, then drops its blobs. Blobs are only touched
// once the row is gone.
func purgeExam(ctx context.Context, exams repository.ExamRepository, files storage.Provider, logger *slog.Logger, exam *model.Exam) error {
	if err := exams.DeleteExam(ctx, exam.ID); err != nil {
		return storeError("deleting exam", err)
	}

	ids := make([]string, 0, len(exam.Files))
	for _, f := range exam.Files {
		ids = append(ids, f.ExternalID)
	}
	discardBlobs(ctx, files, logger, exam.ID, ids...)
	return nil
}

// loadExam fetches an exam, passing NotFound through.
func loadExam(ctx context.Context, exams repository.ExamRepository, examID string) (*model.Exam, error) {
	if strings.TrimSpace(examID) == "" {
		return nil, apperror.ValidationFailed("examId", "exam id is required")
	}
	exam, err := exams.GetExam(ctx, examID)
	if err != nil {
		return nil, storeError("loading exam", err)
	}
	return exam, nil
}
