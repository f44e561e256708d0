package model

import (
	"io"
	"time"
)

// ExamType is the kind of assessment an archived exam came from.
type ExamType string

const (
	ExamTypeMidterm ExamType = "midterm"
	ExamTypeFinal   ExamType = "final"
	ExamTypeQuiz    ExamType = "quiz"
)

// AnswerAvailability says whether an exam ships with answers, and whose.
type AnswerAvailability string

const (
	AnswersNone       AnswerAvailability = "none"
	AnswersOfficial   AnswerAvailability = "official"
	AnswersUnofficial AnswerAvailability = "unofficial"
)

// FileType classifies an attachment: the question sheet or one of the answer sets.
type FileType string

const (
	FileTypeQuestion   FileType = "question"
	FileTypeOfficial   FileType = "official"
	FileTypeUnofficial FileType = "unofficial"
)

// ExamFile is one attachment of an exam. The blob itself lives with the
// storage provider; we only keep the handle (ExternalID) and a view URL.
type ExamFile struct {
	ID         string   `json:"id"`
	Type       FileType `json:"type"`
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	MimeType   string   `json:"mimeType,omitempty"`
	ExternalID string   `json:"fileId,omitempty"`
}

// Exam is a single uploaded past-exam entry.
//
// INVARIANTS:
//   - Lightning >= 0 (toggles never push it below zero)
//   - ReportCount >= 0
//   - CreatedAt is set once by the repository and never changes
//   - Files may be empty
//
// Semester is free text ("112-1", "113 spring", ...). The search engine pulls
// a year out of it on the fly; it is never parsed on write.
type Exam struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	CourseName     string             `json:"courseName"`
	Instructor     string             `json:"instructor,omitempty"`
	Department     string             `json:"department,omitempty"`
	Semester       string             `json:"semester,omitempty"`
	ExamType       ExamType           `json:"examType,omitempty"`
	HasAnswers     AnswerAvailability `json:"hasAnswers,omitempty"`
	Description    string             `json:"description,omitempty"`
	Lightning      int                `json:"lightning"`
	ReportCount    int                `json:"reportCount"`
	LastReportedAt *time.Time         `json:"lastReportedAt"`
	Files          []ExamFile         `json:"files"`
	UploadedBy     string             `json:"uploadedBy"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Summary projects an exam down to the fields that are safe to show in lists.
// File URLs, the description, and moderation data are deliberately absent.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:         e.ID,
		Title:      e.Title,
		CourseName: e.CourseName,
		Instructor: e.Instructor,
		Department: e.Department,
		Semester:   e.Semester,
		ExamType:   e.ExamType,
		HasAnswers: e.HasAnswers,
		Lightning:  e.Lightning,
		CreatedAt:  e.CreatedAt,
	}
}

// ExamSummary is the list/search view of an exam.
type ExamSummary struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	CourseName string             `json:"courseName"`
	Instructor string             `json:"instructor,omitempty"`
	Department string             `json:"department,omitempty"`
	Semester   string             `json:"semester,omitempty"`
	ExamType   ExamType           `json:"examType,omitempty"`
	HasAnswers AnswerAvailability `json:"hasAnswers,omitempty"`
	Lightning  int                `json:"lightning"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// ExamDetail is what the exam page shows: the full record plus the
// viewer's personal state. The personal fields stay zero for anonymous viewers.
type ExamDetail struct {
	Exam
	IsSaved        bool     `json:"isSaved"`
	IsFlashed      bool     `json:"isFlashed"`
	SavedInFolders []string `json:"savedInFolders"`
}

// ExamInput carries the metadata of a new upload.
// Struct tags are checked by go-playground/validator in the service layer.
type ExamInput struct {
	Title       string `json:"title"       validate:"required,max=200"`
	CourseName  string `json:"courseName"  validate:"required,max=200"`
	Instructor  string `json:"instructor"  validate:"max=100"`
	Department  string `json:"department"  validate:"max=100"`
	Semester    string `json:"semester"    validate:"max=50"`
	ExamType    string `json:"examType"    validate:"omitempty,oneof=midterm final quiz"`
	HasAnswers  string `json:"hasAnswers"  validate:"omitempty,oneof=none official unofficial"`
	Description string `json:"description" validate:"max=2000"`
}

// ExamPatch is a partial edit. A nil field means "leave as is".
type ExamPatch struct {
	Title       *string `json:"title,omitempty"       validate:"omitempty,max=200"`
	CourseName  *string `json:"courseName,omitempty"  validate:"omitempty,max=200"`
	Instructor  *string `json:"instructor,omitempty"  validate:"omitempty,max=100"`
	Department  *string `json:"department,omitempty"  validate:"omitempty,max=100"`
	Semester    *string `json:"semester,omitempty"    validate:"omitempty,max=50"`
	ExamType    *string `json:"examType,omitempty"    validate:"omitempty,oneof=midterm final quiz"`
	HasAnswers  *string `json:"hasAnswers,omitempty"  validate:"omitempty,oneof=none official unofficial"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// Empty reports whether the patch changes nothing.
func (p ExamPatch) Empty() bool {
	return p.Title == nil && p.CourseName == nil && p.Instructor == nil &&
		p.Department == nil && p.Semester == nil && p.ExamType == nil &&
		p.HasAnswers == nil && p.Description == nil
}

// Apply copies every non-nil field of the patch onto the exam.
func (p ExamPatch) Apply(e *Exam) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.CourseName != nil {
		e.CourseName = *p.CourseName
	}
	if p.Instructor != nil {
		e.Instructor = *p.Instructor
	}
	if p.Department != nil {
		e.Department = *p.Department
	}
	if p.Semester != nil {
		e.Semester = *p.Semester
	}
	if p.ExamType != nil {
		e.ExamType = ExamType(*p.ExamType)
	}
	if p.HasAnswers != nil {
		e.HasAnswers = AnswerAvailability(*p.HasAnswers)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
}

// UploadFile is an attachment on its way to the storage provider.
type UploadFile struct {
	Type     FileType
	Name     string
	MimeType string
	Content  io.Reader
}

// ValidFileType reports whether t is one of the known attachment kinds.
func ValidFileType(t FileType) bool {
	switch t {
	case FileTypeQuestion, FileTypeOfficial, FileTypeUnofficial:
		return true
	}
	return false
}
