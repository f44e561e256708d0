package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

var _ repository.ExamRepository = (*DB)(nil)

var examColumns = []string{
	"id", "title", "course_name", "instructor", "department", "semester",
	"exam_type", "has_answers", "description", "lightning", "report_count",
	"last_reported_at", "uploaded_by", "created_at",
}

var summaryColumns = []string{
	"id", "title", "course_name", "instructor", "department", "semester",
	"exam_type", "has_answers", "lightning", "created_at",
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	var (
		e            model.Exam
		examType     string
		hasAnswers   string
		lastReported sql.NullTime
	)
	if err := row.Scan(
		&e.ID, &e.Title, &e.CourseName, &e.Instructor, &e.Department, &e.Semester,
		&examType, &hasAnswers, &e.Description, &e.Lightning, &e.ReportCount,
		&lastReported, &e.UploadedBy, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.ExamType = model.ExamType(examType)
	e.HasAnswers = model.AnswerAvailability(hasAnswers)
	if lastReported.Valid {
		t := lastReported.Time
		e.LastReportedAt = &t
	}
	e.Files = []model.ExamFile{}
	return &e, nil
}

func scanSummary(row rowScanner) (model.ExamSummary, error) {
	var (
		s          model.ExamSummary
		examType   string
		hasAnswers string
	)
	err := row.Scan(
		&s.ID, &s.Title, &s.CourseName, &s.Instructor, &s.Department, &s.Semester,
		&examType, &hasAnswers, &s.Lightning, &s.CreatedAt,
	)
	s.ExamType = model.ExamType(examType)
	s.HasAnswers = model.AnswerAvailability(hasAnswers)
	return s, err
}

// querySummaries runs a query selecting summaryColumns and drains the rows.
func querySummaries(ctx context.Context, q querier, query string, args ...any) ([]model.ExamSummary, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ExamSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning exam row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateExam inserts the exam and its files in one transaction.
func (db *DB) CreateExam(ctx context.Context, exam *model.Exam) error {
	exam.ID = xid.New().String()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = db.now()
	}
	if exam.Files == nil {
		exam.Files = []model.ExamFile{}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exams (id, title, course_name, instructor, department, semester,
				exam_type, has_answers, description, lightning, report_count, uploaded_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			exam.ID, exam.Title, exam.CourseName, exam.Instructor, exam.Department,
			exam.Semester, string(exam.ExamType), string(exam.HasAnswers), exam.Description,
			exam.UploadedBy, exam.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating exam: %w", err)
		}

		for i := range exam.Files {
			if err := insertFile(ctx, tx, exam.ID, i, &exam.Files[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertFile(ctx context.Context, q querier, examID string, position int, f *model.ExamFile) error {
	f.ID = xid.New().String()
	_, err := q.ExecContext(ctx,
		`INSERT INTO exam_files (id, exam_id, position, type, name, url, mime_type, external_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, examID, position, string(f.Type), f.Name, f.URL, f.MimeType, f.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding file to exam %s: %w", examID, err)
	}
	return nil
}

// GetExam returns the exam with its files in upload order.
func (db *DB) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+strings.Join(examColumns, ", ")+` FROM exams WHERE id = ?`, id)
	exam, err := scanExam(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("exam", id)
		}
		return nil, fmt.Errorf("sqlite: getting exam %s: %w", id, err)
	}

	if err := db.attachFiles(ctx, []*model.Exam{exam}); err != nil {
		return nil, err
	}
	return exam, nil
}

// attachFiles loads the files of every given exam with one query.
func (db *DB) attachFiles(ctx context.Context, exams []*model.Exam) error {
	if len(exams) == 0 {
		return nil
	}
	byID := make(map[string]*model.Exam, len(exams))
	ids := make([]string, 0, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args, err := sq.Select("exam_id", "id", "type", "name", "url", "mime_type", "external_id").
		From("exam_files").
		Where(sq.Eq{"exam_id": ids}).
		OrderBy("exam_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building file query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: loading exam files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			examID   string
			f        model.ExamFile
			fileType string
		)
		if err := rows.Scan(&examID, &f.ID, &fileType, &f.Name, &f.URL, &f.MimeType, &f.ExternalID); err != nil {
			return fmt.Errorf("sqlite: scanning exam file: %w", err)
		}
		f.Type = model.FileType(fileType)
		if e, ok := byID[examID]; ok {
			e.Files = append(e.Files, f)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating exam files: %w", err)
	}
	return nil
}

// UpdateExam writes the descriptive fields of the exam.
func (db *DB) UpdateExam(ctx context.Context, exam *model.Exam) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE exams
		 SET title = ?, course_name = ?, instructor = ?, department = ?, semester = ?,
		     exam_type = ?, has_answers = ?, description = ?
		 WHERE id = ?`,
		exam.Title, exam.CourseName, exam.Instructor, exam.Department, exam.Semester,
		string(exam.ExamType), string(exam.HasAnswers), exam.Description,
		exam.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating exam %s: %w", exam.ID, err)
	}
	return expectOneRow(result, "exam", exam.ID)
}

// DeleteExam removes the exam; the schema cascades every reference to it.
func (db *DB) DeleteExam(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting exam %s: %w", id, err)
	}
	return expectOneRow(result, "exam", id)
}

// ListByUploader returns the user's uploads in upload order.
func (db *DB) ListByUploader(ctx context.Context, userID string) ([]model.ExamSummary, error) {
	out, err := querySummaries(ctx, db.conn,
		`SELECT `+strings.Join(summaryColumns, ", ")+`
		 FROM exams WHERE uploaded_by = ?
		 ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing uploads of %s: %w", userID, err)
	}
	return out, nil
}

func (db *DB) ListTrending(ctx context.Context, limit int) ([]model.ExamSummary, error) {
	out, err := querySummaries(ctx, db.conn,
		`SELECT `+strings.Join(summaryColumns, ", ")+`
		 FROM exams ORDER BY lightning DESC, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing trending exams: %w", err)
	}
	return out, nil
}

// ListReported returns exams with at least one open report, most recently
// reported first.
func (db *DB) ListReported(ctx context.Context, limit int) ([]model.Exam, error) {
	b := sq.Select(examColumns...).
		From("exams").
		Where(sq.Gt{"report_count": 0}).
		OrderBy("last_reported_at DESC", "created_at DESC").
		Limit(uint64(limit))
	return db.listExams(ctx, b)
}

// ListRecent returns exams created at or after since (all exams when nil),
// newest first.
func (db *DB) ListRecent(ctx context.Context, since *time.Time, limit int) ([]model.Exam, error) {
	b := sq.Select(examColumns...).
		From("exams").
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit))
	if since != nil {
		b = b.Where(sq.GtOrEq{"created_at": since.UTC()})
	}
	return db.listExams(ctx, b)
}

func (db *DB) listExams(ctx context.Context, b sq.SelectBuilder) ([]model.Exam, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building exam query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing exams: %w", err)
	}
	var ptrs []*model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning exam row: %w", err)
		}
		ptrs = append(ptrs, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating exams: %w", err)
	}

	// rows is closed before the file query runs; see New.
	if err := db.attachFiles(ctx, ptrs); err != nil {
		return nil, err
	}

	out := make([]model.Exam, 0, len(ptrs))
	for _, e := range ptrs {
		out = append(out, *e)
	}
	return out, nil
}

// AddFile appends a file to the end of the exam's file list.
func (db *DB) AddFile(ctx context.Context, examID string, file *model.ExamFile) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var next sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT MAX(position) FROM exam_files WHERE exam_id = ?) + 1
			 FROM exams WHERE id = ?`,
			examID, examID,
		).Scan(&next)
		if err == sql.ErrNoRows {
			return apperror.NotFound("exam", examID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: locating exam %s: %w", examID, err)
		}
		return insertFile(ctx, tx, examID, int(next.Int64), file)
	})
}

// ReplaceFile swaps the stored blob behind an existing file entry, keeping
// its position and id.
func (db *DB) ReplaceFile(ctx context.Context, examID string, file *model.ExamFile) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE exam_files SET type = ?, name = ?, url = ?, mime_type = ?, external_id = ?
		 WHERE id = ? AND exam_id = ?`,
		string(file.Type), file.Name, file.URL, file.MimeType, file.ExternalID,
		file.ID, examID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: replacing file %s: %w", file.ID, err)
	}
	return expectOneRow(result, "file", file.ID)
}

func (db *DB) DeleteFile(ctx context.Context, examID, fileID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM exam_files WHERE id = ? AND exam_id = ?`, fileID, examID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting file %s: %w", fileID, err)
	}
	return expectOneRow(result, "file", fileID)
}

// expectOneRow turns "no rows affected" into NotFound.
func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
