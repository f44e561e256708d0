package model

import "time"

// MaxReportNoteLength caps the free-text note attached to a report (in characters).
const MaxReportNoteLength = 200

// Report is one entry of an exam's report history.
type Report struct {
	ID         string    `json:"id"`
	ExamID     string    `json:"examId"`
	ReportedBy string    `json:"reportedBy"`
	Note       string    `json:"note,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// ReportReceipt is returned to the reporter.
type ReportReceipt struct {
	ReportCount    int       `json:"reportCount"`
	LastReportedAt time.Time `json:"lastReportedAt"`
}

// MonitorRange is the time window of the moderation panel's "recent uploads" view.
type MonitorRange string

const (
	RangeToday     MonitorRange = "today"
	RangeThreeDays MonitorRange = "3days"
	RangeWeek      MonitorRange = "week"
	RangeMonth     MonitorRange = "month"
	RangeAll       MonitorRange = "all"
)

// Since returns the start of the window relative to now, or nil for RangeAll
// and anything unrecognised.
func (r MonitorRange) Since(now time.Time) *time.Time {
	var t time.Time
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		t = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case RangeThreeDays:
		t = now.AddDate(0, 0, -3)
	case RangeWeek:
		t = now.AddDate(0, 0, -7)
	case RangeMonth:
		t = now.AddDate(0, -1, 0)
	default:
		return nil
	}
	return &t
}

// ModeratedExam is the moderation panel's view of one exam.
type ModeratedExam struct {
	Exam
	Reports []Report `json:"reportHistory"`
}
