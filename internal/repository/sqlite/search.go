package sqlite

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

var _ repository.SearchRepository = (*DB)(nil)

// ListForSearch applies the keyword and categorical filters of q and sorts by
// its single key. The keyword matches as a literal, Unicode case-insensitive
// substring. Rows with equal sort keys come back in insertion order (rowid
// ascending) whatever the direction, so paging over ties is stable.
//
// q is expected to be normalised already (see search.Normalize).
func (db *DB) ListForSearch(ctx context.Context, q model.SearchQuery) ([]model.ExamSummary, error) {
	conds := sq.And{}

	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		column := "course_name"
		if q.KeywordType == model.KeywordProfessor {
			column = "instructor"
		}
		conds = append(conds, sq.Expr("instr("+foldFunc+"("+column+"), ?) > 0", strings.ToLower(kw)))
	}
	if len(q.Departments) > 0 {
		conds = append(conds, sq.Eq{"department": q.Departments})
	}
	if len(q.ExamTypes) > 0 {
		conds = append(conds, sq.Eq{"exam_type": q.ExamTypes})
	}
	if len(q.AnswerTypes) > 0 {
		conds = append(conds, sq.Eq{"has_answers": q.AnswerTypes})
	}

	sortColumn := "lightning"
	if q.SortBy == model.SortByCreatedAt {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if q.SortOrder == model.SortAsc {
		direction = "ASC"
	}

	b := sq.Select(summaryColumns...).
		From("exams").
		OrderBy(sortColumn+" "+direction, "rowid ASC")
	if len(conds) > 0 {
		b = b.Where(conds)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building search query: %w", err)
	}

	out, err := querySummaries(ctx, db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching exams: %w", err)
	}
	return out, nil
}
