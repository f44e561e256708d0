// Package search implements exam search: keyword, year range and categorical
// filters, a single-key sort, and page slicing with a total count.
//
// The work is split between the store and the engine. The store applies the
// filters it can index (keyword, department, exam type, answer type) and the
// sort. The year bound cannot be pushed down because the year lives inside
// the free-text semester field, so the engine filters the sorted list by year
// and only then counts and slices it; total therefore always reflects every
// filter.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

const (
	DefaultLimit         = 50
	DefaultTrendingLimit = 10
	MaxTrendingLimit     = 50
)

// TrendingLister is the store dependency of Trending.
type TrendingLister interface {
	ListTrending(ctx context.Context, limit int) ([]model.ExamSummary, error)
}

// Engine runs searches against a SearchRepository.
type Engine struct {
	repo     repository.SearchRepository
	trending TrendingLister
	logger   *slog.Logger
}

func NewEngine(repo repository.SearchRepository, trending TrendingLister, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, trending: trending, logger: logger}
}

// Search never fails on odd input; Normalize maps it to defaults first. The
// only error is a store failure, returned as apperror.ErrDependency.
func (e *Engine) Search(ctx context.Context, q model.SearchQuery) (*model.SearchResult, error) {
	q = Normalize(q)

	exams, err := e.repo.ListForSearch(ctx, q)
	if err != nil {
		e.logger.Error("search query failed", slog.String("error", err.Error()))
		return nil, apperror.DependencyFailed("search", err)
	}

	if q.HasYearBound() {
		exams = filterByYear(exams, q.YearStart, q.YearEnd)
	}

	return &model.SearchResult{
		Exams: paginate(exams, q.Page, *q.Limit),
		Total: len(exams),
	}, nil
}

// Trending returns the most-lightninged exams. limit < 1 means the default.
func (e *Engine) Trending(ctx context.Context, limit int) ([]model.ExamSummary, error) {
	if limit < 1 {
		limit = DefaultTrendingLimit
	}
	if limit > MaxTrendingLimit {
		limit = MaxTrendingLimit
	}
	exams, err := e.trending.ListTrending(ctx, limit)
	if err != nil {
		e.logger.Error("trending query failed", slog.String("error", err.Error()))
		return nil, apperror.DependencyFailed("trending", err)
	}
	return exams, nil
}

// Normalize fills defaults and drops values outside the known enums. An
// absent limit becomes DefaultLimit; a given one is raised to at least 1.
// After Normalize, Limit is never nil.
func Normalize(q model.SearchQuery) model.SearchQuery {
	q.Keyword = strings.TrimSpace(q.Keyword)
	if q.KeywordType != model.KeywordProfessor {
		q.KeywordType = model.KeywordCourse
	}
	if q.SortBy != model.SortByCreatedAt {
		q.SortBy = model.SortByLightning
	}
	if q.SortOrder != model.SortAsc {
		q.SortOrder = model.SortDesc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	limit := DefaultLimit
	if q.Limit != nil {
		limit = max(*q.Limit, 1)
	}
	q.Limit = &limit
	q.Departments = compact(q.Departments)
	q.ExamTypes = compact(q.ExamTypes)
	q.AnswerTypes = compact(q.AnswerTypes)
	return q
}

// compact trims items and drops the empty ones. A nil or all-blank list
// stays empty, which means "no filter".
func compact(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExtractYear returns the first run of ASCII digits in semester as an
// integer. ok is false when there is no digit at all, and also when the run
// does not fit in an int, so such a record never matches a year bound.
func ExtractYear(semester string) (year int, ok bool) {
	start := strings.IndexFunc(semester, isDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(semester) && isDigit(rune(semester[end])) {
		end++
	}
	n, err := strconv.Atoi(semester[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// filterByYear keeps exams whose semester year lies in [start, end]. Either
// bound may be nil. Exams without a year are dropped.
func filterByYear(exams []model.ExamSummary, start, end *int) []model.ExamSummary {
	out := exams[:0:0]
	for _, ex := range exams {
		year, ok := ExtractYear(ex.Semester)
		if !ok {
			continue
		}
		if start != nil && year < *start {
			continue
		}
		if end != nil && year > *end {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// paginate returns the page-th slice of size limit (page is 1-based). Pages
// past the end are empty, never nil. page and limit must be >= 1; the page
// is range-checked before the offset is computed, so (page-1)*limit cannot
// overflow.
func paginate(exams []model.ExamSummary, page, limit int) []model.ExamSummary {
	if len(exams) == 0 || page-1 > (len(exams)-1)/limit {
		return []model.ExamSummary{}
	}
	start := (page - 1) * limit
	end := len(exams)
	if limit < end-start {
		end = start + limit
	}
	return exams[start:end]
}
