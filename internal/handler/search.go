package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/search"
)

// SearchHandler serves the public search and trending endpoints.
type SearchHandler struct {
	engine *search.Engine
	logger *slog.Logger
}

func NewSearchHandler(engine *search.Engine, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, logger: logger}
}

// HandleSearch runs a filtered, sorted, paginated search.
//
// HTTP: POST /api/exams/search
//
// REQUEST FORMAT (every field optional, loose types tolerated):
//
//	{"keyword":"calc","keywordType":"course","yearStart":"110","yearEnd":112,
//	 "departments":["EE"],"examTypes":"final","sortBy":"createdAt","page":2}
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Search(r.Context(), req.query())
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleTrending returns the most-lightninged exams.
//
// HTTP: GET /api/exams/trending?limit=10
func (h *SearchHandler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = search.DefaultTrendingLimit
	}

	exams, err := h.engine.Trending(r.Context(), limit)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.ExamSummary{"exams": exams})
}

// searchRequest is the wire form of model.SearchQuery. Its fields accept
// whatever the browser sends; values of the wrong shape decode as absent.
type searchRequest struct {
	Keyword     looseString  `json:"keyword"`
	KeywordType looseString  `json:"keywordType"`
	YearStart   looseYear    `json:"yearStart"`
	YearEnd     looseYear    `json:"yearEnd"`
	Departments looseStrings `json:"departments"`
	ExamTypes   looseStrings `json:"examTypes"`
	AnswerTypes looseStrings `json:"answerTypes"`
	SortBy      looseString  `json:"sortBy"`
	SortOrder   looseString  `json:"sortOrder"`
	Page        looseNumber  `json:"page"`
	Limit       looseNumber  `json:"limit"`
}

func (s searchRequest) query() model.SearchQuery {
	return model.SearchQuery{
		Keyword:     string(s.Keyword),
		KeywordType: model.KeywordType(s.KeywordType),
		YearStart:   s.YearStart.v,
		YearEnd:     s.YearEnd.v,
		Departments: s.Departments,
		ExamTypes:   s.ExamTypes,
		AnswerTypes: s.AnswerTypes,
		SortBy:      model.SortBy(s.SortBy),
		SortOrder:   model.SortOrder(s.SortOrder),
		Page:        s.Page.value(),
		Limit:       s.Limit.v,
	}
}

// looseString keeps JSON strings and drops everything else.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	if json.Unmarshal(b, &v) == nil {
		*s = looseString(v)
	}
	return nil
}

// looseYear accepts 112 or "112-1"; from a string the first run of digits
// is taken.
type looseYear struct{ v *int }

func (y *looseYear) UnmarshalJSON(b []byte) error {
	var f float64
	if json.Unmarshal(b, &f) == nil && !bytes.Equal(b, []byte("null")) {
		year := clampInt(f)
		y.v = &year
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		if year, ok := search.ExtractYear(s); ok {
			y.v = &year
		}
	}
	return nil
}

// looseStrings accepts ["a","b"] or "a". Items are trimmed and empty ones
// dropped. Numbers, booleans and null inside an array are kept in their
// text form ([3] filters on "3"); nested objects and arrays are dropped.
type looseStrings []string

func (ls *looseStrings) UnmarshalJSON(b []byte) error {
	var one string
	if json.Unmarshal(b, &one) == nil {
		*ls = appendTrimmed(nil, one)
		return nil
	}
	var many []any
	if json.Unmarshal(b, &many) != nil {
		return nil
	}
	var out []string
	for _, item := range many {
		switch v := item.(type) {
		case string:
			out = appendTrimmed(out, v)
		case float64:
			out = append(out, formatNumber(v))
		case bool:
			out = append(out, strconv.FormatBool(v))
		case nil:
			out = append(out, "null")
		}
	}
	*ls = out
	return nil
}

// formatNumber renders v the way a browser prints a number: 3 not 3.0,
// exponent form only from 1e21 up.
func formatNumber(v float64) string {
	if math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func appendTrimmed(dst []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		dst = append(dst, s)
	}
	return dst
}

// looseNumber accepts JSON numbers only; "2" is treated as absent.
// Fractions are truncated and values outside ±maxLooseNumber are clamped.
type looseNumber struct{ v *int }

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	var f float64
	if json.Unmarshal(b, &f) == nil && !bytes.Equal(b, []byte("null")) {
		i := clampInt(f)
		n.v = &i
	}
	return nil
}

func (n looseNumber) value() int {
	if n.v == nil {
		return 0
	}
	return *n.v
}

// maxLooseNumber bounds numbers taken from the search body, far above any
// page, limit or year a client can mean.
const maxLooseNumber = math.MaxInt32

func clampInt(f float64) int {
	switch {
	case f > maxLooseNumber:
		return maxLooseNumber
	case f < -maxLooseNumber:
		return -maxLooseNumber
	default:
		return int(f)
	}
}
