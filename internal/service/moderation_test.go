package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
)

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestModerationLogin(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.moderation.Login("moderator", testAdminPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	id, err := env.tokens.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id.Role != auth.RoleAdmin || id.Subject != "moderator" {
		t.Errorf("identity = %+v, want moderator/admin", id)
	}

	cases := []struct{ user, pass string }{
		{"moderator", "wrong"},
		{"someone", testAdminPassword},
		{"", ""},
	}
	for _, c := range cases {
		_, err := env.moderation.Login(c.user, c.pass)
		wantKind(t, err, apperror.ErrUnauthenticated)
	}
}

func TestModerationLogin_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	svc := NewModerationService(env.db, env.db, env.files, env.tokens,
		auth.NewPasswordServiceWithCost(4), AdminAccount{}, testLogger())

	_, err := svc.Login("", "")
	wantKind(t, err, apperror.ErrUnauthenticated)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestReportedExams_OrderAndClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	reporter := env.user(t, "reporter")

	quiet := env.upload(t, owner, "Quiet")
	first := env.upload(t, owner, "First")
	second := env.upload(t, owner, "Second")

	env.exams.Report(ctx, reporter.ID, first.ID, "")
	time.Sleep(5 * time.Millisecond)
	env.exams.Report(ctx, reporter.ID, second.ID, "")

	got, err := env.moderation.ReportedExams(ctx)
	if err != nil {
		t.Fatalf("ReportedExams() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("ReportedExams() = %v, want [second first]", examTitles(got))
	}
	for _, e := range got {
		if e.ID == quiet.ID {
			t.Error("unreported exam listed")
		}
	}

	if err := env.moderation.ClearReports(ctx, second.ID); err != nil {
		t.Fatalf("ClearReports() error = %v", err)
	}
	got, _ = env.moderation.ReportedExams(ctx)
	if len(got) != 1 || got[0].ID != first.ID {
		t.Errorf("after clear = %v, want [first]", examTitles(got))
	}

	detail, err := env.moderation.ExamForAdmin(ctx, second.ID)
	if err != nil {
		t.Fatalf("ExamForAdmin() error = %v", err)
	}
	if detail.ReportCount != 0 || detail.LastReportedAt != nil {
		t.Errorf("counters not reset: count=%d last=%v", detail.ReportCount, detail.LastReportedAt)
	}
	if len(detail.Reports) != 1 {
		t.Errorf("history = %d entries, want 1 (kept after clear)", len(detail.Reports))
	}

	wantKind(t, env.moderation.ClearReports(ctx, "missing"), apperror.ErrNotFound)
}

func TestRecentExams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")

	old := &model.Exam{Title: "Old", CourseName: "c", UploadedBy: owner.ID,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -10)}
	if err := env.db.CreateExam(ctx, old); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	fresh := env.upload(t, owner, "Fresh")

	week, err := env.moderation.RecentExams(ctx, model.RangeWeek)
	if err != nil {
		t.Fatalf("RecentExams(week) error = %v", err)
	}
	if len(week) != 1 || week[0].ID != fresh.ID {
		t.Errorf("week = %v, want [Fresh]", examTitles(week))
	}

	all, err := env.moderation.RecentExams(ctx, "")
	if err != nil {
		t.Fatalf("RecentExams(all) error = %v", err)
	}
	if len(all) != 2 || all[0].ID != fresh.ID || all[1].ID != old.ID {
		t.Errorf("all = %v, want [Fresh Old]", examTitles(all))
	}

	_, err = env.moderation.RecentExams(ctx, "fortnight")
	wantKind(t, err, apperror.ErrValidation)
}

// =========================================================================
// EDIT / DELETE TESTS
// =========================================================================

func TestModerationUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	fan := env.user(t, "fan")
	exam := env.upload(t, owner, "Typo Titel", pdf(model.FileTypeQuestion, "q.pdf"))
	env.collections.ToggleBookmark(ctx, fan.ID, exam.ID)

	got, err := env.moderation.UpdateExam(ctx, exam.ID, model.ExamPatch{Title: strPtr("Typo Title")})
	if err != nil {
		t.Fatalf("UpdateExam() error = %v", err)
	}
	if got.Title != "Typo Title" {
		t.Errorf("Title = %q", got.Title)
	}

	_, err = env.moderation.UpdateExam(ctx, exam.ID, model.ExamPatch{CourseName: strPtr("")})
	wantKind(t, err, apperror.ErrValidation)

	if err := env.moderation.DeleteExam(ctx, exam.ID); err != nil {
		t.Fatalf("DeleteExam() error = %v", err)
	}
	if len(savedIDs(t, env, fan.ID)) != 0 {
		t.Error("moderator delete should cascade to bookmarks")
	}
	if env.files.has(exam.Files[0].ExternalID) {
		t.Error("moderator delete should remove blobs")
	}

	wantKind(t, env.moderation.DeleteExam(ctx, exam.ID), apperror.ErrNotFound)
}

// =========================================================================
// FILE TESTS
// =========================================================================

func TestModerationFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	exam := env.upload(t, owner, "Exam", pdf(model.FileTypeQuestion, "q.pdf"))
	original := exam.Files[0]

	added, err := env.moderation.AddFile(ctx, exam.ID, model.FileTypeOfficial, pdf("", "answers.pdf"))
	if err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}
	if added.ID == "" || added.Type != model.FileTypeOfficial {
		t.Errorf("AddFile() = %+v", added)
	}

	replaced, err := env.moderation.ReplaceFile(ctx, exam.ID, original.ID, pdf("", "q-v2.pdf"))
	if err != nil {
		t.Fatalf("ReplaceFile() error = %v", err)
	}
	if replaced.ID != original.ID || replaced.Type != model.FileTypeQuestion || replaced.Name != "q-v2.pdf" {
		t.Errorf("ReplaceFile() = %+v", replaced)
	}
	if env.files.has(original.ExternalID) {
		t.Error("old blob should be deleted after replace")
	}

	detail, _ := env.exams.Get(ctx, exam.ID, "")
	if len(detail.Files) != 2 {
		t.Fatalf("files = %+v, want 2", detail.Files)
	}
	if detail.Files[0].ID != original.ID || detail.Files[0].Name != "q-v2.pdf" {
		t.Errorf("replaced file should keep its position: %+v", detail.Files[0])
	}
	if detail.Files[1].ID != added.ID {
		t.Errorf("added file should be last: %+v", detail.Files[1])
	}

	if err := env.moderation.RemoveFile(ctx, exam.ID, added.ID); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if env.files.has(added.ExternalID) {
		t.Error("removed file's blob should be deleted")
	}
	detail, _ = env.exams.Get(ctx, exam.ID, "")
	if len(detail.Files) != 1 {
		t.Errorf("files after remove = %+v", detail.Files)
	}
}

func TestModerationFiles_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	exam := env.upload(t, owner, "Exam")

	_, err := env.moderation.AddFile(ctx, exam.ID, "notes", pdf("", "n.pdf"))
	wantKind(t, err, apperror.ErrValidation)

	_, err = env.moderation.AddFile(ctx, "missing", model.FileTypeQuestion, pdf("", "n.pdf"))
	wantKind(t, err, apperror.ErrNotFound)

	_, err = env.moderation.ReplaceFile(ctx, exam.ID, "no-such-file", pdf("", "n.pdf"))
	wantKind(t, err, apperror.ErrNotFound)

	wantKind(t, env.moderation.RemoveFile(ctx, exam.ID, "no-such-file"), apperror.ErrNotFound)

	env.files.failStore["n.pdf"] = true
	_, err = env.moderation.AddFile(ctx, exam.ID, model.FileTypeQuestion, pdf("", "n.pdf"))
	wantKind(t, err, apperror.ErrDependency)

	if len(env.files.blobs) != 0 {
		t.Errorf("failed operations left blobs behind: %v", env.files.blobs)
	}
}

func examTitles(exams []model.Exam) string {
	titles := make([]string, 0, len(exams))
	for _, e := range exams {
		titles = append(titles, e.Title)
	}
	return strings.Join(titles, ",")
}
