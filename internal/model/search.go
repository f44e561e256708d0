package model

// KeywordType selects which field a keyword is matched against.
type KeywordType string

const (
	KeywordCourse    KeywordType = "course"
	KeywordProfessor KeywordType = "professor"
)

// SortBy is the single sort key of a search.
type SortBy string

const (
	SortByLightning SortBy = "lightning"
	SortByCreatedAt SortBy = "createdAt"
)

// SortOrder is the direction of the sort key.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// SearchQuery describes one search. Every field is optional; the zero value
// means "no constraint" (or the default, for sorting and paging).
//
// YearStart and YearEnd are pointers because 0 is a legal bound and we need
// to tell "not given" apart from it. Limit is a pointer for the same reason:
// an absent limit means the default, a given one is raised to at least 1.
type SearchQuery struct {
	Keyword     string      `json:"keyword,omitempty"`
	KeywordType KeywordType `json:"keywordType,omitempty"`
	YearStart   *int        `json:"yearStart,omitempty"`
	YearEnd     *int        `json:"yearEnd,omitempty"`
	Departments []string    `json:"departments,omitempty"`
	ExamTypes   []string    `json:"examTypes,omitempty"`
	AnswerTypes []string    `json:"answerTypes,omitempty"`
	SortBy      SortBy      `json:"sortBy,omitempty"`
	SortOrder   SortOrder   `json:"sortOrder,omitempty"`
	Page        int         `json:"page,omitempty"`
	Limit       *int        `json:"limit,omitempty"`
}

// HasYearBound reports whether either end of the year range is set.
func (q SearchQuery) HasYearBound() bool {
	return q.YearStart != nil || q.YearEnd != nil
}

// SearchResult is one page of results plus the size of the whole filtered set.
type SearchResult struct {
	Exams []ExamSummary `json:"exams"`
	Total int           `json:"total"`
}
