package sqlite

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/sakif/exam-archive/internal/model"
)

func searchIDs(t *testing.T, db *DB, q model.SearchQuery) []string {
	t.Helper()
	got, err := db.ListForSearch(context.Background(), q)
	if err != nil {
		t.Fatalf("ListForSearch() error = %v", err)
	}
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListForSearch_KeywordIsCaseInsensitiveSubstring(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "u")
	calc := createTestExam(t, db, u, model.Exam{CourseName: "Calculus", Instructor: "Chen"})
	calc2 := createTestExam(t, db, u, model.Exam{CourseName: "Advanced CALCULUS", Instructor: "Wang"})
	createTestExam(t, db, u, model.Exam{CourseName: "Physics", Instructor: "Chen Li"})

	got := searchIDs(t, db, model.SearchQuery{Keyword: "  calc ", KeywordType: model.KeywordCourse})
	if !equalIDs(got, []string{calc.ID, calc2.ID}) {
		t.Errorf("course keyword = %v", got)
	}

	got = searchIDs(t, db, model.SearchQuery{Keyword: "wang", KeywordType: model.KeywordProfessor})
	if !equalIDs(got, []string{calc2.ID}) {
		t.Errorf("professor keyword = %v", got)
	}

	if got := searchIDs(t, db, model.SearchQuery{Keyword: "   "}); len(got) != 3 {
		t.Errorf("blank keyword matched %d, want all 3", len(got))
	}
}

func TestListForSearch_KeywordFoldsNonASCII(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "u")
	elast := createTestExam(t, db, u, model.Exam{CourseName: "Élasticité", Instructor: "Ørsted"})
	greek := createTestExam(t, db, u, model.Exam{CourseName: "ΦΥΣΙΚΗ", Instructor: "Müller"})
	createTestExam(t, db, u, model.Exam{CourseName: "Elasticity", Instructor: "Orsted"})

	tests := []struct {
		keyword string
		kind    model.KeywordType
		want    []string
	}{
		{"élast", model.KeywordCourse, []string{elast.ID}},
		{"ÉLASTICITÉ", model.KeywordCourse, []string{elast.ID}},
		{"φυσ", model.KeywordCourse, []string{greek.ID}},
		{"MÜLL", model.KeywordProfessor, []string{greek.ID}},
		{"ørs", model.KeywordProfessor, []string{elast.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got := searchIDs(t, db, model.SearchQuery{Keyword: tt.keyword, KeywordType: tt.kind})
			if !equalIDs(got, tt.want) {
				t.Errorf("keyword %q = %v, want %v", tt.keyword, got, tt.want)
			}
		})
	}
}

func TestFoldCase(t *testing.T) {
	tests := []struct {
		in   driver.Value
		want driver.Value
	}{
		{"Élasticité", "élasticité"},
		{[]byte("ABC"), "abc"},
		{nil, nil},
		{int64(7), int64(7)},
	}
	for _, tt := range tests {
		got, err := foldCase(nil, []driver.Value{tt.in})
		if err != nil {
			t.Fatalf("foldCase(%v) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("foldCase(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestListForSearch_WildcardsAreLiteral(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "u")
	pct := createTestExam(t, db, u, model.Exam{CourseName: "100% Chemistry"})
	createTestExam(t, db, u, model.Exam{CourseName: "1000 Chemistry"})
	under := createTestExam(t, db, u, model.Exam{CourseName: "Data_Structures"})
	createTestExam(t, db, u, model.Exam{CourseName: "DataXStructures"})

	if got := searchIDs(t, db, model.SearchQuery{Keyword: "0%"}); !equalIDs(got, []string{pct.ID}) {
		t.Errorf("%% keyword = %v", got)
	}
	if got := searchIDs(t, db, model.SearchQuery{Keyword: "a_S"}); !equalIDs(got, []string{under.ID}) {
		t.Errorf("_ keyword = %v", got)
	}
}

func TestListForSearch_SetFilters(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "u")
	a := createTestExam(t, db, u, model.Exam{Department: "EE", ExamType: model.ExamTypeMidterm, HasAnswers: model.AnswersNone})
	b := createTestExam(t, db, u, model.Exam{Department: "CS", ExamType: model.ExamTypeFinal, HasAnswers: model.AnswersOfficial})
	c := createTestExam(t, db, u, model.Exam{Department: "CS", ExamType: model.ExamTypeMidterm, HasAnswers: model.AnswersOfficial})

	tests := []struct {
		name string
		q    model.SearchQuery
		want []string
	}{
		{"no filters", model.SearchQuery{}, []string{a.ID, b.ID, c.ID}},
		{"departments IN", model.SearchQuery{Departments: []string{"CS", "ME"}}, []string{b.ID, c.ID}},
		{"examTypes IN", model.SearchQuery{ExamTypes: []string{"midterm"}}, []string{a.ID, c.ID}},
		{"AND across categories", model.SearchQuery{
			Departments: []string{"CS"},
			ExamTypes:   []string{"midterm"},
			AnswerTypes: []string{"official"},
		}, []string{c.ID}},
		{"nothing matches", model.SearchQuery{AnswerTypes: []string{"unofficial"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := searchIDs(t, db, tt.q); !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListForSearch_SortAndTies(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "u")
	base := time.Now().UTC().Add(-time.Hour)

	first := createTestExam(t, db, u, model.Exam{Title: "first", CreatedAt: base})
	second := createTestExam(t, db, u, model.Exam{Title: "second", CreatedAt: base.Add(time.Minute)})
	third := createTestExam(t, db, u, model.Exam{Title: "third", CreatedAt: base.Add(2 * time.Minute)})
	setLightning(t, db, first.ID, 5)
	setLightning(t, db, second.ID, 7)
	setLightning(t, db, third.ID, 5)

	tests := []struct {
		name string
		q    model.SearchQuery
		want []string
	}{
		// Ties keep insertion order in both directions.
		{"lightning desc", model.SearchQuery{SortBy: model.SortByLightning, SortOrder: model.SortDesc},
			[]string{second.ID, first.ID, third.ID}},
		{"lightning asc", model.SearchQuery{SortBy: model.SortByLightning, SortOrder: model.SortAsc},
			[]string{first.ID, third.ID, second.ID}},
		{"createdAt desc", model.SearchQuery{SortBy: model.SortByCreatedAt, SortOrder: model.SortDesc},
			[]string{third.ID, second.ID, first.ID}},
		{"createdAt asc", model.SearchQuery{SortBy: model.SortByCreatedAt, SortOrder: model.SortAsc},
			[]string{first.ID, second.ID, third.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := searchIDs(t, db, tt.q); !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
