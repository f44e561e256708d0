package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

var _ repository.EngagementRepository = (*DB)(nil)

// ToggleFlash flips the (user, exam) flash row and moves the exam's
// lightning counter with it. The counter is floored at zero.
func (db *DB) ToggleFlash(ctx context.Context, userID, examID string) (bool, int, error) {
	var (
		flashed   bool
		lightning int
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireExam(ctx, tx, examID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM flashes WHERE user_id = ? AND exam_id = ?`, userID, examID)
		if err != nil {
			return fmt.Errorf("sqlite: removing flash: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		if removed > 0 {
			_, err = tx.ExecContext(ctx,
				`UPDATE exams SET lightning = MAX(lightning - 1, 0) WHERE id = ?`, examID)
		} else {
			flashed = true
			_, err = tx.ExecContext(ctx,
				`INSERT INTO flashes (user_id, exam_id, flashed_at) VALUES (?, ?, ?)`,
				userID, examID, db.now())
			if err == nil {
				_, err = tx.ExecContext(ctx,
					`UPDATE exams SET lightning = lightning + 1 WHERE id = ?`, examID)
			}
		}
		if err != nil {
			return fmt.Errorf("sqlite: toggling flash on %s: %w", examID, err)
		}

		return tx.QueryRowContext(ctx,
			`SELECT lightning FROM exams WHERE id = ?`, examID,
		).Scan(&lightning)
	})
	if err != nil {
		return false, 0, err
	}
	return flashed, lightning, nil
}

func (db *DB) IsFlashed(ctx context.Context, userID, examID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flashes WHERE user_id = ? AND exam_id = ?`, userID, examID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking flash: %w", err)
	}
	return n > 0, nil
}

// AddReport records one report and bumps the exam's moderation counters.
func (db *DB) AddReport(ctx context.Context, report *model.Report) (*model.ReportReceipt, error) {
	report.ID = xid.New().String()
	if report.ReportedAt.IsZero() {
		report.ReportedAt = db.now()
	}

	var receipt model.ReportReceipt
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE exams SET report_count = report_count + 1, last_reported_at = ?
			 WHERE id = ?`,
			report.ReportedAt, report.ExamID)
		if err != nil {
			return fmt.Errorf("sqlite: reporting exam %s: %w", report.ExamID, err)
		}
		if err := expectOneRow(res, "exam", report.ExamID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO reports (id, exam_id, reported_by, note, reported_at)
			 VALUES (?, ?, ?, ?, ?)`,
			report.ID, report.ExamID, report.ReportedBy, report.Note, report.ReportedAt)
		if err != nil {
			return fmt.Errorf("sqlite: inserting report: %w", err)
		}

		receipt.LastReportedAt = report.ReportedAt
		return tx.QueryRowContext(ctx,
			`SELECT report_count FROM exams WHERE id = ?`, report.ExamID,
		).Scan(&receipt.ReportCount)
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListReports returns the report history of an exam, oldest first.
func (db *DB) ListReports(ctx context.Context, examID string) ([]model.Report, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, exam_id, reported_by, note, reported_at
		 FROM reports WHERE exam_id = ? ORDER BY reported_at, rowid`, examID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reports: %w", err)
	}
	defer rows.Close()

	out := []model.Report{}
	for rows.Next() {
		var r model.Report
		if err := rows.Scan(&r.ID, &r.ExamID, &r.ReportedBy, &r.Note, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reports: %w", err)
	}
	return out, nil
}

// ClearReports resets the counters. The history rows are kept.
func (db *DB) ClearReports(ctx context.Context, examID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE exams SET report_count = 0, last_reported_at = NULL WHERE id = ?`, examID)
	if err != nil {
		return fmt.Errorf("sqlite: clearing reports of %s: %w", examID, err)
	}
	return expectOneRow(res, "exam", examID)
}

func requireExam(ctx context.Context, q querier, examID string) error {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exams WHERE id = ?`, examID,
	).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: checking exam %s: %w", examID, err)
	}
	if n == 0 {
		return apperror.NotFound("exam", examID)
	}
	return nil
}
